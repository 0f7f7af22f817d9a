package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/storetest"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

func TestMemoryPersistence(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.IAuthorizationStore {
		return NewMemoryPersistence()
	})
}

func TestMemoryPersistence_NoAliasing(t *testing.T) {
	mp := NewMemoryPersistence()
	defer func() { _ = mp.Close() }()
	ctx := context.Background()

	record := storetest.NewRecord(t, types.OperationKindDeposit, 0, 1)
	require.NoError(t, mp.SaveAuthorization(ctx, record))

	record.Operation.Payload.Amount = 999
	loaded, err := mp.LoadAuthorization(ctx, record.Id())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), loaded.Operation.Payload.Amount)

	loaded.Status = persistence.StatusConfirmed
	again, err := mp.LoadAuthorization(ctx, record.Id())
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusPending, again.Status)
}
