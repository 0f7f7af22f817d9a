// Package storetest holds the behavior every persistence backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

// NewRecord builds a pending record for a signed operation with unique id
func NewRecord(t *testing.T, kind types.OperationKind, projectId, paymentId uint64) *persistence.AuthorizationRecord {
	t.Helper()
	asset, err := types.ParseAssetTypeName(types.SuiTypeArg)
	require.NoError(t, err)

	op := &types.PreparedOperation{
		Id:     fmt.Sprintf("%s-%d-%d-%d", kind, projectId, paymentId, time.Now().UnixNano()),
		Kind:   kind,
		Target: "0x1234::reward_vault_sui::" + kind.EntryPoint(),
		Payload: types.OperationPayload{
			PaymentId: paymentId,
			ProjectId: projectId,
			Account:   types.MustParseAddress("0xa11ce"),
			AssetType: asset,
			Amount:    100,
			Deadline:  1700086460000,
		},
		CreatedAt: time.Now().UTC(),
	}
	return persistence.NewAuthorizationRecord(op, "test")
}

// UniquePaymentId spreads payment ids so shared backends don't collide between runs
func UniquePaymentId(offset uint64) uint64 {
	return uint64(time.Now().UnixNano()) + offset
}

// Run exercises store through the whole IAuthorizationStore contract. newStore must
// return a fresh, open store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.IAuthorizationStore) {
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		record := NewRecord(t, types.OperationKindDeposit, 0, UniquePaymentId(1))
		require.NoError(t, s.SaveAuthorization(ctx, record))

		loaded, err := s.LoadAuthorization(ctx, record.Id())
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, record.Id(), loaded.Id())
		assert.Equal(t, persistence.StatusPending, loaded.Status)
		assert.Equal(t, record.Operation.Payload, loaded.Operation.Payload)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		loaded, err := s.LoadAuthorization(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveNil", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()
		require.Error(t, s.SaveAuthorization(ctx, nil))
	})

	t.Run("FindByPaymentId", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		paymentId := UniquePaymentId(2)
		record := NewRecord(t, types.OperationKindClaim, 7, paymentId)
		require.NoError(t, s.SaveAuthorization(ctx, record))

		found, err := s.FindByPaymentId(ctx, 7, paymentId)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, record.Id(), found.Id())

		found, err = s.FindByPaymentId(ctx, 8, paymentId)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("DuplicatePayment", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		paymentId := UniquePaymentId(3)
		first := NewRecord(t, types.OperationKindDeposit, 1, paymentId)
		require.NoError(t, s.SaveAuthorization(ctx, first))

		// overwriting the same record is allowed
		first.Fail("retry")
		require.NoError(t, s.SaveAuthorization(ctx, first))

		second := NewRecord(t, types.OperationKindWithdraw, 1, paymentId)
		second.Operation.Id = first.Id() + "-other"
		require.ErrorIs(t, s.SaveAuthorization(ctx, second), persistence.ErrDuplicatePayment)
	})

	t.Run("MarkConfirmedAndFailed", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		record := NewRecord(t, types.OperationKindWithdraw, 0, UniquePaymentId(4))
		require.NoError(t, s.SaveAuthorization(ctx, record))

		require.NoError(t, s.MarkFailed(ctx, record.Id(), "MoveAbort(3)"))
		loaded, err := s.LoadAuthorization(ctx, record.Id())
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusFailed, loaded.Status)
		assert.Equal(t, "MoveAbort(3)", loaded.Error)

		require.NoError(t, s.MarkConfirmed(ctx, record.Id(), "9Xv1"))
		loaded, err = s.LoadAuthorization(ctx, record.Id())
		require.NoError(t, err)
		assert.Equal(t, persistence.StatusConfirmed, loaded.Status)
		assert.Equal(t, "9Xv1", loaded.TransactionDigest)

		require.ErrorIs(t, s.MarkConfirmed(ctx, "missing", "x"), persistence.ErrNotFound)
		require.ErrorIs(t, s.MarkFailed(ctx, "missing", "x"), persistence.ErrNotFound)
	})

	t.Run("ListSorted", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		base := UniquePaymentId(5)
		var ids []string
		for i := uint64(0); i < 3; i++ {
			r := NewRecord(t, types.OperationKindDeposit, 0, base+i)
			r.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
			require.NoError(t, s.SaveAuthorization(ctx, r))
			ids = append(ids, r.Id())
		}

		list, err := s.ListAuthorizations(ctx)
		require.NoError(t, err)
		var got []string
		for i, r := range list {
			if i > 0 {
				assert.False(t, r.CreatedAt.Before(list[i-1].CreatedAt))
			}
			for _, id := range ids {
				if r.Id() == id {
					got = append(got, id)
				}
			}
		}
		assert.Equal(t, ids, got)
	})

	t.Run("CloseIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.HealthCheck())
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		require.ErrorIs(t, s.SaveAuthorization(ctx, NewRecord(t, types.OperationKindDeposit, 0, 1)), persistence.ErrClosed)
		_, err := s.LoadAuthorization(ctx, "x")
		require.ErrorIs(t, err, persistence.ErrClosed)
		_, err = s.ListAuthorizations(ctx)
		require.ErrorIs(t, err, persistence.ErrClosed)
		require.Error(t, s.HealthCheck())
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		defer func() { _ = s.Close() }()

		base := UniquePaymentId(100)
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := NewRecord(t, types.OperationKindDeposit, 0, base+uint64(i))
				r.Operation.Id = fmt.Sprintf("%s-%d", r.Operation.Id, i)
				if err := s.SaveAuthorization(ctx, r); err != nil {
					errs <- err
					return
				}
				if _, err := s.LoadAuthorization(ctx, r.Id()); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	})
}
