package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/chain/mockChain"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/deadline"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/metrics"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/memory"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/service"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

// Simulated ledger accounts
var (
	simulatedDepositor = types.MustParseAddress("0xd3d0517000000000000000000000000000000000000000000000000000000001")
	simulatedRecipient = types.MustParseAddress("0x4ec1913700000000000000000000000000000000000000000000000000000002")
)

const simulatedEpochDuration = 24 * time.Hour

type simulationStep struct {
	Kind      string           `json:"kind"`
	Id        string           `json:"id"`
	PaymentId uint64           `json:"paymentId,omitempty"`
	Digest    string           `json:"digest"`
	Event     types.TypedEvent `json:"event,omitempty"`
}

type simulationReport struct {
	Signer         common.Address   `json:"signer"`
	VaultId        string           `json:"vaultId"`
	Steps          []simulationStep `json:"steps"`
	TamperRejected string           `json:"tamperRejected"`
	ReplayRejected string           `json:"replayRejected"`
	FinalBalance   uint64           `json:"finalBalance"`
}

// runSimulation drives create, deposit, claim and withdraw through an in-memory vault
// whose only signer is signer, then checks that a tampered signature and a replayed
// payment are both rejected.
func runSimulation(ctx context.Context, signer authorizer.IAuthorizer, amount uint64, l *zap.Logger) (*simulationReport, error) {
	if amount < 4 {
		return nil, fmt.Errorf("amount must be at least 4, got %d", amount)
	}

	now := time.Now()
	chain := mockChain.NewMockChain(&mockChain.Config{
		Sender: simulatedDepositor,
		Epoch: types.EpochInfo{
			Epoch:           1,
			EpochStartMs:    uint64(now.Add(-time.Hour).UnixMilli()),
			EpochDurationMs: uint64(simulatedEpochDuration.Milliseconds()),
		},
	}, l)

	policy := deadline.NewPolicy(chain, deadline.DefaultMargin, l)
	orchestrator := vault.NewOrchestrator(&vault.OrchestratorConfig{PackageId: chain.PackageId()}, signer, policy, l)
	store := memory.NewMemoryPersistence()
	defer func() { _ = store.Close() }()

	svc := service.NewVaultService(orchestrator, store, &service.Ledger{
		Submitter:    chain,
		Transactions: chain,
		Objects:      chain,
	}, metrics.NewMetrics(), l)

	report := &simulationReport{Signer: signer.Address()}

	created, err := svc.Execute(ctx, vault.OperationRequest{
		Kind:    types.OperationKindCreateVault,
		Signers: []common.Address{signer.Address()},
	}, "simulate")
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	orchestrator.SetVaultId(created.VaultId)
	report.VaultId = created.VaultId
	report.Steps = append(report.Steps, stepFrom(created))

	requests := []vault.OperationRequest{
		{Kind: types.OperationKindDeposit, Account: simulatedDepositor.String(), AssetType: types.SuiTypeArg, Amount: amount},
		{Kind: types.OperationKindClaim, Account: simulatedRecipient.String(), AssetType: types.SuiTypeArg, Amount: amount / 2},
		{Kind: types.OperationKindWithdraw, Account: simulatedRecipient.String(), AssetType: types.SuiTypeArg, Amount: amount / 4},
	}
	var lastPayout *types.PreparedOperation
	for _, req := range requests {
		res, err := svc.Execute(ctx, req, "simulate")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Kind, err)
		}
		report.Steps = append(report.Steps, stepFrom(res))
		if req.Kind != types.OperationKindDeposit {
			lastPayout = res.Operation
		}
	}

	tampered, err := orchestrator.PrepareDeposit(ctx, simulatedDepositor.String(), types.SuiTypeArg, 1)
	if err != nil {
		return nil, err
	}
	tampered.Signature[10] ^= 0x01
	for i := range tampered.Arguments {
		if tampered.Arguments[i].Name == "signature" {
			tampered.Arguments[i].Value = tampered.Signature.String()
		}
	}
	_, err = chain.Submit(ctx, tampered)
	if err == nil {
		return nil, errors.New("tampered signature was accepted")
	}
	report.TamperRejected = err.Error()

	_, err = chain.Submit(ctx, lastPayout)
	if err == nil {
		return nil, errors.New("replayed payment was accepted")
	}
	report.ReplayRejected = err.Error()

	report.FinalBalance = chain.Balance(created.VaultId, types.SuiTypeArg)
	return report, nil
}

func stepFrom(res *service.ExecutionResult) simulationStep {
	return simulationStep{
		Kind:      res.Operation.Kind.String(),
		Id:        res.Operation.Id,
		PaymentId: res.Operation.Payload.PaymentId,
		Digest:    res.Result.Digest,
		Event:     res.Event,
	}
}
