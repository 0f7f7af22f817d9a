package mockChain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/chain/mockChain"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/decoder"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/testutil"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/vault"
)

func newVault(t *testing.T) *testutil.TestVault {
	t.Helper()
	return testutil.NewTestVault(t, testutil.NewTestAuthorizer(t, testutil.SignerPrivateKey), testutil.SignerAddress)
}

func TestCreateVault(t *testing.T) {
	tv := newVault(t)

	fields, err := tv.Chain.GetObjectState(context.Background(), tv.VaultId)
	require.NoError(t, err)

	state, err := decoder.DecodeVaultState(fields)
	require.NoError(t, err)
	assert.Equal(t, tv.VaultId, state.Id)
	assert.Equal(t, testutil.AccountAlice, state.Owner)
	assert.Equal(t, testutil.SignerSet(testutil.SignerAddress), state.Signers)
}

func TestDepositClaimWithdraw(t *testing.T) {
	tv := newVault(t)
	ctx := context.Background()

	deposit, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 100)
	require.NoError(t, err)
	result, err := tv.Chain.Submit(ctx, deposit)
	require.NoError(t, err)
	assert.Equal(t, types.TransactionStatusSuccess, result.Status)

	ev, err := vault.ExtractEventFor(result, deposit)
	require.NoError(t, err)
	deposited := ev.(*types.TokenDeposited)
	assert.Equal(t, uint64(100), deposited.Amount)
	assert.Equal(t, deposit.Payload.Deadline, deposited.Deadline)
	assert.Equal(t, uint64(100), tv.Chain.Balance(tv.VaultId, types.SuiTypeArg))

	claim, err := tv.Orchestrator.PrepareClaim(ctx, testutil.AccountBob.String(), types.SuiTypeArg, 60)
	require.NoError(t, err)
	result, err = tv.Chain.Submit(ctx, claim)
	require.NoError(t, err)
	ev, err = vault.ExtractEvent(result, types.OperationKindClaim)
	require.NoError(t, err)
	claimed := ev.(*types.RewardsClaimed)
	assert.Equal(t, testutil.AccountBob, claimed.Recipient)
	assert.Equal(t, claim.Payload.PaymentId, claimed.PaymentId)

	withdraw, err := tv.Orchestrator.PrepareWithdraw(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 40)
	require.NoError(t, err)
	result, err = tv.Chain.Submit(ctx, withdraw)
	require.NoError(t, err)
	_, err = vault.ExtractEvent(result, types.OperationKindWithdraw)
	require.NoError(t, err)
	assert.Zero(t, tv.Chain.Balance(tv.VaultId, types.SuiTypeArg))

	fetched, err := tv.Chain.GetTransactionResult(ctx, result.Digest)
	require.NoError(t, err)
	assert.Equal(t, result, fetched)
}

func TestVerify_ByteFlip(t *testing.T) {
	tv := newVault(t)
	op, err := tv.Orchestrator.PrepareClaim(context.Background(), testutil.AccountBob.String(), types.SuiTypeArg, 60)
	require.NoError(t, err)

	require.NoError(t, tv.Chain.Verify(tv.VaultId, op.CanonicalBytes, op.Signature))

	for i := range op.CanonicalBytes {
		flipped := append([]byte(nil), op.CanonicalBytes...)
		flipped[i] ^= 0x01
		require.Error(t, tv.Chain.Verify(tv.VaultId, flipped, op.Signature), "flip at byte %d", i)
	}
	for i := 0; i < 64; i++ {
		sig := op.Signature
		sig[i] ^= 0x01
		require.Error(t, tv.Chain.Verify(tv.VaultId, op.CanonicalBytes, sig), "flip at signature byte %d", i)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown signer", func(t *testing.T) {
		tv := testutil.NewTestVault(t, testutil.NewTestAuthorizer(t, testutil.OtherPrivateKey), testutil.SignerAddress)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		result, err := tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrAborted)
		require.ErrorIs(t, err, mockChain.ErrUnknownSigner)
		assert.Equal(t, types.TransactionStatusFailure, result.Status)
		assert.Empty(t, result.Events)
	})

	t.Run("replayed payment id", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		_, err = tv.Chain.Submit(ctx, op)
		require.NoError(t, err)
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrPaymentIdConsumed)
		assert.Equal(t, uint64(10), tv.Chain.Balance(tv.VaultId, types.SuiTypeArg))
	})

	t.Run("expired deadline", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		late := time.UnixMilli(int64(op.Payload.Deadline) + 1)
		tv.Chain.SetClock(func() time.Time { return late })
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrDeadlineExpired)
	})

	t.Run("tampered amount", func(t *testing.T) {
		tv := newVault(t)
		tv.Fund(t, types.SuiTypeArg, 1000)
		op, err := tv.Orchestrator.PrepareClaim(ctx, testutil.AccountBob.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		op.Arguments[4].Value = "999"
		op.CanonicalBytes = nil
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrUnknownSigner)
	})

	t.Run("canonical bytes disagree with arguments", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		op.CanonicalBytes[0] ^= 0xff
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrPayloadMismatch)
	})

	t.Run("operation signature differs from argument", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		op.Signature[10] ^= 0x01
		result, err := tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrAborted)
		require.ErrorIs(t, err, mockChain.ErrInvalidSignature)
		assert.Equal(t, types.TransactionStatusFailure, result.Status)
		assert.Zero(t, tv.Chain.Balance(tv.VaultId, types.SuiTypeArg))
	})

	t.Run("tampered signature argument", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareDeposit(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 10)
		require.NoError(t, err)

		op.Signature[10] ^= 0x01
		op.Arguments[5].Value = op.Signature.String()
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrAborted)
		assert.Zero(t, tv.Chain.Balance(tv.VaultId, types.SuiTypeArg))
	})

	t.Run("signer count larger than argument", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareCreateVault(ctx, testutil.SignerSet(testutil.SignerAddress))
		require.NoError(t, err)

		op.Arguments[0].Value = "0xffffffffffffffffff01"
		require.NotPanics(t, func() {
			_, err = tv.Chain.Submit(ctx, op)
		})
		require.ErrorIs(t, err, mockChain.ErrAborted)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		tv := newVault(t)
		op, err := tv.Orchestrator.PrepareWithdraw(ctx, testutil.AccountAlice.String(), types.SuiTypeArg, 1)
		require.NoError(t, err)
		_, err = tv.Chain.Submit(ctx, op)
		require.ErrorIs(t, err, mockChain.ErrInsufficientFunds)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		tv := newVault(t)
		_, err := tv.Chain.GetTransactionResult(ctx, "0xdead")
		require.ErrorIs(t, err, mockChain.ErrTransactionUnknown)
	})
}
