package badger

import (
	"context"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/storetest"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/types"
)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	storetest.Run(t, func(t *testing.T) persistence.IAuthorizationStore {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	ctx := context.Background()

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	record := storetest.NewRecord(t, types.OperationKindDeposit, 2, 77)
	require.NoError(t, bp.SaveAuthorization(ctx, record))
	require.NoError(t, bp.MarkConfirmed(ctx, record.Id(), "9Xv1"))
	require.NoError(t, bp.Close())

	bp, err = NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	loaded, err := bp.FindByPaymentId(ctx, 2, 77)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, record.Id(), loaded.Id())
	assert.Equal(t, persistence.StatusConfirmed, loaded.Status)
	assert.Equal(t, "9Xv1", loaded.TransactionDigest)
}

func TestBadgerPersistence_SchemaMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	require.NoError(t, bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, bp.Close())

	_, err = NewBadgerPersistence(tmpDir, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}
