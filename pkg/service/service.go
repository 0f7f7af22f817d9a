// Package service composes the orchestrator, the ledger and the authorization store
// into the authorize, execute and confirm flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/decoder"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/metrics"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

var (
	// ErrNoSubmitter is returned by Execute when the service only hands out authorizations.
	ErrNoSubmitter = errors.New("no transaction submitter configured")

	// ErrTransactionFailed is returned by Confirm for a transaction that aborted on chain.
	ErrTransactionFailed = errors.New("transaction failed on chain")

	// ErrAlreadyConfirmed is returned when an authorization is confirmed with a second digest.
	ErrAlreadyConfirmed = errors.New("authorization already confirmed by another transaction")
)

// ISubmitter executes a prepared operation on the ledger.
type ISubmitter interface {
	Submit(ctx context.Context, op *types.PreparedOperation) (*types.TransactionResult, error)
}

// ITransactionReader fetches an executed transaction by digest.
type ITransactionReader interface {
	GetTransactionResult(ctx context.Context, digest string) (*types.TransactionResult, error)
}

// IObjectReader fetches the content fields of a ledger object.
type IObjectReader interface {
	GetObjectState(ctx context.Context, id string) (map[string]any, error)
}

// Ledger groups the ledger capabilities the service uses. Submitter may be nil.
type Ledger struct {
	Submitter    ISubmitter
	Transactions ITransactionReader
	Objects      IObjectReader
}

// ExecutionResult is the outcome of Execute.
type ExecutionResult struct {
	Operation *types.PreparedOperation `json:"operation"`
	Result    *types.TransactionResult `json:"result"`
	Event     types.TypedEvent         `json:"event,omitempty"`
	VaultId   string                   `json:"vaultId,omitempty"`
}

type VaultService struct {
	orchestrator *vault.Orchestrator
	store        persistence.IAuthorizationStore
	ledger       *Ledger
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

func NewVaultService(
	orchestrator *vault.Orchestrator,
	store persistence.IAuthorizationStore,
	ledger *Ledger,
	m *metrics.Metrics,
	logger *zap.Logger,
) *VaultService {
	if ledger == nil {
		ledger = &Ledger{}
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &VaultService{
		orchestrator: orchestrator,
		store:        store,
		ledger:       ledger,
		metrics:      m,
		logger:       logger,
	}
}

func (s *VaultService) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *VaultService) SignerAddress() common.Address {
	return s.orchestrator.SignerAddress()
}

func (s *VaultService) VaultId() string {
	return s.orchestrator.VaultId()
}

// RequestFromAuthorize converts the wire form of an authorization request.
func RequestFromAuthorize(req *types.AuthorizeRequest) (vault.OperationRequest, error) {
	kind, err := types.ParseOperationKind(req.Kind)
	if err != nil {
		return vault.OperationRequest{}, err
	}

	signers := make([]common.Address, 0, len(req.Signers))
	for _, signer := range req.Signers {
		if !common.IsHexAddress(signer) {
			return vault.OperationRequest{}, fmt.Errorf("invalid signer address %q", signer)
		}
		signers = append(signers, common.HexToAddress(signer))
	}

	return vault.OperationRequest{
		Kind:      kind,
		Account:   strings.TrimSpace(req.Account),
		AssetType: strings.TrimSpace(req.AssetType),
		Amount:    req.Amount,
		ProjectId: req.ProjectId,
		Signers:   signers,
	}, nil
}

// Authorize prepares and signs req and records the authorization as pending.
// The caller submits the returned operation itself.
func (s *VaultService) Authorize(ctx context.Context, req vault.OperationRequest, caller string) (*types.PreparedOperation, error) {
	start := time.Now()
	op, err := s.orchestrator.Prepare(ctx, req)
	s.metrics.ObservePrepare(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, types.ErrSigning) {
			s.metrics.IncSigningFailure()
		}
		s.metrics.IncAuthorization(req.Kind.String(), metrics.ResultFailure)
		return nil, err
	}

	if err := s.store.SaveAuthorization(ctx, persistence.NewAuthorizationRecord(op, caller)); err != nil {
		s.metrics.IncAuthorization(req.Kind.String(), metrics.ResultFailure)
		return nil, fmt.Errorf("failed to record authorization: %w", err)
	}

	s.metrics.IncAuthorization(req.Kind.String(), metrics.ResultSuccess)
	s.logger.Sugar().Infow("Authorization issued",
		"id", op.Id,
		"kind", op.Kind.String(),
		"payment_id", op.Payload.PaymentId,
		"project_id", op.Payload.ProjectId,
		"caller", caller,
	)
	return op, nil
}

// Execute authorizes req, submits it and confirms it from the execution result.
// Submission errors are returned as the submitter reported them.
func (s *VaultService) Execute(ctx context.Context, req vault.OperationRequest, caller string) (*ExecutionResult, error) {
	if s.ledger.Submitter == nil {
		return nil, ErrNoSubmitter
	}

	op, err := s.Authorize(ctx, req, caller)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.Submitter.Submit(ctx, op)
	if err != nil {
		s.fail(ctx, op, err.Error())
		return nil, err
	}

	return s.confirmResult(ctx, op, result)
}

// Confirm looks up the transaction digest reported for authorization id and marks the
// authorization confirmed once the transaction carries its event.
func (s *VaultService) Confirm(ctx context.Context, id, digest string) (*ExecutionResult, error) {
	if s.ledger.Transactions == nil {
		return nil, errors.New("no transaction reader configured")
	}

	record, err := s.store.LoadAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", persistence.ErrNotFound, id)
	}
	if record.Status == persistence.StatusConfirmed && record.TransactionDigest != digest {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConfirmed, record.TransactionDigest)
	}

	result, err := s.ledger.Transactions.GetTransactionResult(ctx, digest)
	if err != nil {
		return nil, err
	}
	return s.confirmResult(ctx, record.Operation, result)
}

func (s *VaultService) confirmResult(ctx context.Context, op *types.PreparedOperation, result *types.TransactionResult) (*ExecutionResult, error) {
	kind := op.Kind.String()
	if result == nil {
		s.fail(ctx, op, "no transaction result")
		s.metrics.IncConfirmation(kind, metrics.ResultFailure)
		return nil, fmt.Errorf("%w: no transaction result for %s", types.ErrSchemaMismatch, op.Id)
	}
	if result.Status != types.TransactionStatusSuccess {
		s.fail(ctx, op, result.Error)
		s.metrics.IncConfirmation(kind, metrics.ResultFailure)
		return nil, fmt.Errorf("%w: %s: %s", ErrTransactionFailed, result.Digest, result.Error)
	}

	execution := &ExecutionResult{Operation: op, Result: result}
	if op.Kind == types.OperationKindCreateVault {
		vaultId, err := vault.CreatedVaultId(result)
		if err != nil {
			s.metrics.IncConfirmation(kind, metrics.ResultFailure)
			return nil, err
		}
		execution.VaultId = vaultId
	} else {
		event, err := vault.ExtractEventFor(result, op)
		if err != nil {
			s.metrics.IncConfirmation(kind, metrics.ResultFailure)
			return nil, err
		}
		execution.Event = event
	}

	if err := s.store.MarkConfirmed(ctx, op.Id, result.Digest); err != nil {
		s.metrics.IncConfirmation(kind, metrics.ResultFailure)
		return nil, fmt.Errorf("failed to record confirmation: %w", err)
	}
	s.metrics.IncConfirmation(kind, metrics.ResultSuccess)
	s.logger.Sugar().Infow("Authorization confirmed", "id", op.Id, "kind", kind, "digest", result.Digest)
	return execution, nil
}

func (s *VaultService) fail(ctx context.Context, op *types.PreparedOperation, reason string) {
	if err := s.store.MarkFailed(ctx, op.Id, reason); err != nil {
		s.logger.Sugar().Warnw("Failed to record failed authorization", "id", op.Id, "error", err)
	}
	s.logger.Sugar().Warnw("Authorization failed", "id", op.Id, "kind", op.Kind.String(), "reason", reason)
}

// Authorization returns the stored record of id, or nil.
func (s *VaultService) Authorization(ctx context.Context, id string) (*persistence.AuthorizationRecord, error) {
	return s.store.LoadAuthorization(ctx, id)
}

// VaultState reads and decodes the vault object id, defaulting to the configured vault.
func (s *VaultService) VaultState(ctx context.Context, id string) (*types.RewardVaultState, error) {
	if s.ledger.Objects == nil {
		return nil, errors.New("no object reader configured")
	}
	if id == "" {
		id = s.VaultId()
	}
	if id == "" {
		return nil, errors.New("no vault id configured")
	}

	fields, err := s.ledger.Objects.GetObjectState(ctx, id)
	if err != nil {
		return nil, err
	}
	return decoder.DecodeVaultState(fields)
}

func (s *VaultService) HealthCheck() error {
	return s.store.HealthCheck()
}
