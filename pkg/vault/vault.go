// Package vault turns a requested vault operation into a signed, ready to submit
// entry point call, and extracts the confirmation event from its execution result.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/decoder"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/encoding"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

const (
	// DefaultModule is the Move module exposing the vault entry points
	DefaultModule = "reward_vault_sui"

	// ClockObjectId is the shared clock object passed to every time-checked entry point
	ClockObjectId = "0x6"
)

// Move argument types as they appear in the prepared call
const (
	ArgTypeObject       = "object"
	ArgTypeU64          = "u64"
	ArgTypeAddress      = "address"
	ArgTypeCoin         = "coin"
	ArgTypeBytes        = "vector<u8>"
	ArgTypeSignerVector = "vector<vector<u8>>"
)

// IDeadlineSource yields the deadline to embed in a signed payload
type IDeadlineSource interface {
	Deadline(ctx context.Context) (uint64, error)
}

// OrchestratorConfig describes the deployed vault the orchestrator prepares calls for
type OrchestratorConfig struct {
	PackageId string
	VaultId   string
	Module    string    // defaults to DefaultModule
	ProjectId uint64    // used when a request does not carry its own project id
	Random    io.Reader // payment id entropy, defaults to crypto/rand
}

// OperationRequest is the caller's intent before ids, deadline and signature are attached.
// Account is the depositor for deposits and the recipient for claims and withdrawals.
type OperationRequest struct {
	Kind      types.OperationKind
	Account   string
	AssetType string
	Amount    uint64
	ProjectId *uint64
	Signers   []common.Address
}

type argumentBuilder func(op *types.PreparedOperation) []types.MoveArgument

type operationHandler struct {
	signed    bool
	arguments argumentBuilder
}

// Orchestrator prepares vault operations
type Orchestrator struct {
	config     OrchestratorConfig
	vaultMu    sync.RWMutex
	vaultId    string
	authorizer authorizer.IAuthorizer
	deadlines  IDeadlineSource
	logger     *zap.Logger
	handlers   map[types.OperationKind]operationHandler
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator from a copy of cfg. deadlines may be nil
// only if no signed operation is ever prepared.
func NewOrchestrator(cfg *OrchestratorConfig, auth authorizer.IAuthorizer, deadlines IDeadlineSource, logger *zap.Logger) *Orchestrator {
	config := *cfg
	if config.Module == "" {
		config.Module = DefaultModule
	}
	if config.Random == nil {
		config.Random = rand.Reader
	}
	return &Orchestrator{
		config:     config,
		vaultId:    config.VaultId,
		authorizer: auth,
		deadlines:  deadlines,
		logger:     logger,
		now:        time.Now,
		handlers: map[types.OperationKind]operationHandler{
			types.OperationKindCreateVault: {signed: false, arguments: createVaultArguments},
			types.OperationKindDeposit:     {signed: true, arguments: depositArguments},
			types.OperationKindClaim:       {signed: true, arguments: payoutArguments},
			types.OperationKindWithdraw:    {signed: true, arguments: payoutArguments},
		},
	}
}

// Config returns a copy of the orchestrator's configuration with the current vault id
func (o *Orchestrator) Config() OrchestratorConfig {
	config := o.config
	config.VaultId = o.VaultId()
	return config
}

// VaultId is the vault that signed operations are prepared for
func (o *Orchestrator) VaultId() string {
	o.vaultMu.RLock()
	defer o.vaultMu.RUnlock()
	return o.vaultId
}

// SetVaultId points later operations at another vault, typically the one a
// create_reward_vault call just produced.
func (o *Orchestrator) SetVaultId(id string) {
	o.vaultMu.Lock()
	defer o.vaultMu.Unlock()
	o.vaultId = id
}

// SignerAddress is the EVM address the authorizer signs with
func (o *Orchestrator) SignerAddress() common.Address {
	return o.authorizer.Address()
}

// Target returns <package>::<module>::<entry point> for kind
func (o *Orchestrator) Target(kind types.OperationKind) string {
	return strings.Join([]string{o.config.PackageId, o.config.Module, kind.EntryPoint()}, types.TypeNameSeparator)
}

// Prepare validates the request, attaches a fresh payment id and deadline, signs the
// canonical payload and lays out the entry point arguments. Nothing is returned on error.
func (o *Orchestrator) Prepare(ctx context.Context, req OperationRequest) (*types.PreparedOperation, error) {
	handler, ok := o.handlers[req.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported operation kind %s", req.Kind)
	}

	op := &types.PreparedOperation{
		Id:        uuid.New().String(),
		Kind:      req.Kind,
		Target:    o.Target(req.Kind),
		VaultId:   o.VaultId(),
		CreatedAt: o.now().UTC(),
	}

	if !handler.signed {
		if len(req.Signers) == 0 {
			return nil, fmt.Errorf("%s requires at least one signer", req.Kind)
		}
		op.Signers = append([]common.Address(nil), req.Signers...)
		op.VaultId = ""
		op.Arguments = handler.arguments(op)
		o.logger.Sugar().Infow("Prepared vault operation",
			"id", op.Id,
			"kind", op.Kind.String(),
			"signers", len(op.Signers),
		)
		return op, nil
	}

	if op.VaultId == "" {
		return nil, fmt.Errorf("%s requires a vault id", req.Kind)
	}
	account, err := types.ParseAddress(req.Account)
	if err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}
	assetType, err := types.ParseAssetTypeName(req.AssetType)
	if err != nil {
		return nil, err
	}

	paymentId, err := NewPaymentId(o.config.Random)
	if err != nil {
		return nil, err
	}
	projectId := o.config.ProjectId
	if req.ProjectId != nil {
		projectId = *req.ProjectId
	}
	if o.deadlines == nil {
		return nil, fmt.Errorf("%w: no deadline source configured", types.ErrDeadlineUnavailable)
	}
	deadline, err := o.deadlines.Deadline(ctx)
	if err != nil {
		return nil, err
	}

	op.Payload = types.OperationPayload{
		PaymentId: paymentId,
		ProjectId: projectId,
		Account:   account,
		AssetType: assetType,
		Amount:    req.Amount,
		Deadline:  deadline,
	}
	op.CanonicalBytes = encoding.Encode(&op.Payload)

	signed, err := o.authorizer.Sign(ctx, op.CanonicalBytes)
	if err != nil {
		return nil, err
	}
	op.Digest = signed.Digest
	op.Signature = signed.Signature
	op.Signer = o.authorizer.Address()
	op.TypeArguments = []string{assetType.String()}
	op.Arguments = handler.arguments(op)

	o.logger.Sugar().Infow("Prepared vault operation",
		"id", op.Id,
		"kind", op.Kind.String(),
		"paymentId", paymentId,
		"projectId", projectId,
		"amount", req.Amount,
		"deadline", deadline,
		"digest", op.Digest.Hex(),
	)
	return op, nil
}

// PrepareCreateVault prepares create_reward_vault for the given EVM signer set
func (o *Orchestrator) PrepareCreateVault(ctx context.Context, signers []common.Address) (*types.PreparedOperation, error) {
	return o.Prepare(ctx, OperationRequest{Kind: types.OperationKindCreateVault, Signers: signers})
}

// PrepareDeposit prepares a deposit of amount from account
func (o *Orchestrator) PrepareDeposit(ctx context.Context, account, assetType string, amount uint64) (*types.PreparedOperation, error) {
	return o.Prepare(ctx, OperationRequest{Kind: types.OperationKindDeposit, Account: account, AssetType: assetType, Amount: amount})
}

// PrepareClaim prepares a reward claim paid to recipient
func (o *Orchestrator) PrepareClaim(ctx context.Context, recipient, assetType string, amount uint64) (*types.PreparedOperation, error) {
	return o.Prepare(ctx, OperationRequest{Kind: types.OperationKindClaim, Account: recipient, AssetType: assetType, Amount: amount})
}

// PrepareWithdraw prepares a withdrawal paid to recipient
func (o *Orchestrator) PrepareWithdraw(ctx context.Context, recipient, assetType string, amount uint64) (*types.PreparedOperation, error) {
	return o.Prepare(ctx, OperationRequest{Kind: types.OperationKindWithdraw, Account: recipient, AssetType: assetType, Amount: amount})
}

func createVaultArguments(op *types.PreparedOperation) []types.MoveArgument {
	signers := make([][]byte, len(op.Signers))
	for i, s := range op.Signers {
		signers[i] = s.Bytes()
	}
	return []types.MoveArgument{
		{Name: "signers", Type: ArgTypeSignerVector, Value: hexutil.Encode(encoding.EncodeSignerSet(signers))},
	}
}

// deposit(vault, payment_id, project_id, coin, deadline, signature, clock)
func depositArguments(op *types.PreparedOperation) []types.MoveArgument {
	p := op.Payload
	return []types.MoveArgument{
		{Name: "vault", Type: ArgTypeObject, Value: op.VaultId},
		u64Argument("payment_id", p.PaymentId),
		u64Argument("project_id", p.ProjectId),
		{Name: "coin", Type: ArgTypeCoin, Value: strconv.FormatUint(p.Amount, 10)},
		u64Argument("deadline", p.Deadline),
		{Name: "signature", Type: ArgTypeBytes, Value: op.Signature.String()},
		{Name: "clock", Type: ArgTypeObject, Value: ClockObjectId},
	}
}

// claim|withdraw(vault, payment_id, project_id, recipient, amount, deadline, signature, clock)
func payoutArguments(op *types.PreparedOperation) []types.MoveArgument {
	p := op.Payload
	return []types.MoveArgument{
		{Name: "vault", Type: ArgTypeObject, Value: op.VaultId},
		u64Argument("payment_id", p.PaymentId),
		u64Argument("project_id", p.ProjectId),
		{Name: "recipient", Type: ArgTypeAddress, Value: p.Account.String()},
		u64Argument("amount", p.Amount),
		u64Argument("deadline", p.Deadline),
		{Name: "signature", Type: ArgTypeBytes, Value: op.Signature.String()},
		{Name: "clock", Type: ArgTypeObject, Value: ClockObjectId},
	}
}

func u64Argument(name string, v uint64) types.MoveArgument {
	return types.MoveArgument{Name: name, Type: ArgTypeU64, Value: strconv.FormatUint(v, 10)}
}

// NewPaymentId draws a uniformly random u64 from r
func NewPaymentId(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read payment id entropy: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ExtractEvents decodes every event of result whose type carries kind's event tag
func ExtractEvents(result *types.TransactionResult, kind types.OperationKind) ([]types.TypedEvent, error) {
	tag := kind.EventType()
	if tag == "" {
		return nil, fmt.Errorf("operation kind %s emits no event", kind)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no transaction result", types.ErrEventNotFound)
	}

	var events []types.TypedEvent
	for _, raw := range result.Events {
		if !strings.Contains(raw.Type, tag) {
			continue
		}
		ev, err := decoder.DecodeEvent(raw, kind)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no %s event in transaction %s", types.ErrEventNotFound, tag, result.Digest)
	}
	return events, nil
}

// ExtractEvent returns the first confirmation event of kind in result
func ExtractEvent(result *types.TransactionResult, kind types.OperationKind) (types.TypedEvent, error) {
	events, err := ExtractEvents(result, kind)
	if err != nil {
		return nil, err
	}
	return events[0], nil
}

// ExtractEventFor returns the confirmation event of op, matched on its payment id
func ExtractEventFor(result *types.TransactionResult, op *types.PreparedOperation) (types.TypedEvent, error) {
	events, err := ExtractEvents(result, op.Kind)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.GetPaymentId() == op.Payload.PaymentId && ev.GetProjectId() == op.Payload.ProjectId {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s event for payment %d", types.ErrEventNotFound, op.Kind, op.Payload.PaymentId)
}

// CreatedVaultId returns the vault object created by a create_reward_vault transaction
func CreatedVaultId(result *types.TransactionResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: no transaction result", types.ErrSchemaMismatch)
	}
	return decoder.CreatedObjectId(result.ObjectChanges)
}

// PublishedPackageId returns the package published by result
func PublishedPackageId(result *types.TransactionResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: no transaction result", types.ErrSchemaMismatch)
	}
	return decoder.PublishedPackageId(result.ObjectChanges)
}
