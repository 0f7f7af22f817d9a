package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/authorizer"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/chain/mockChain"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/deadline"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

// Epoch timing of the test ledger: the clock sits halfway through the epoch
const (
	EpochStartMs    = 1_700_000_000_000
	EpochDurationMs = 86_400_000
)

// TestVault is a mock chain with a deployed vault and an orchestrator pointed at it
type TestVault struct {
	Chain        *mockChain.MockChain
	Orchestrator *vault.Orchestrator
	Policy       *deadline.Policy
	Authorizer   authorizer.IAuthorizer
	VaultId      string
	Now          time.Time
	Logger       *zap.Logger
}

// NewTestVault deploys a vault whose signer set is signers and prepares operations
// signed by auth
func NewTestVault(t *testing.T, auth authorizer.IAuthorizer, signers ...string) *TestVault {
	t.Helper()
	l := NewTestLogger(t)
	now := time.UnixMilli(EpochStartMs + EpochDurationMs/2)

	chain := mockChain.NewMockChain(&mockChain.Config{
		Sender: AccountAlice,
		Epoch:  types.EpochInfo{Epoch: 42, EpochStartMs: EpochStartMs, EpochDurationMs: EpochDurationMs},
		Clock:  func() time.Time { return now },
	}, l)

	policy := deadline.NewPolicy(chain, deadline.DefaultMargin, l)
	orchestrator := vault.NewOrchestrator(&vault.OrchestratorConfig{PackageId: chain.PackageId()}, auth, policy, l)

	ctx := context.Background()
	create, err := orchestrator.PrepareCreateVault(ctx, SignerSet(signers...))
	require.NoError(t, err)
	result, err := chain.Submit(ctx, create)
	require.NoError(t, err)
	vaultId, err := vault.CreatedVaultId(result)
	require.NoError(t, err)
	orchestrator.SetVaultId(vaultId)

	return &TestVault{
		Chain:        chain,
		Orchestrator: orchestrator,
		Policy:       policy,
		Authorizer:   auth,
		VaultId:      vaultId,
		Now:          now,
		Logger:       l,
	}
}

// Fund deposits amount of assetType from AccountAlice
func (tv *TestVault) Fund(t *testing.T, assetType string, amount uint64) {
	t.Helper()
	ctx := context.Background()
	op, err := tv.Orchestrator.PrepareDeposit(ctx, AccountAlice.String(), assetType, amount)
	require.NoError(t, err)
	_, err = tv.Chain.Submit(ctx, op)
	require.NoError(t, err)
}
