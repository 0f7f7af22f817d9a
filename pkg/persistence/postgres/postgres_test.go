package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/storetest"
)

func TestPostgresPersistence(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	storetest.Run(t, func(t *testing.T) persistence.IAuthorizationStore {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		store, err := NewPostgresPersistence(ctx, dsn, testLogger)
		require.NoError(t, err)
		return store
	})
}

func TestNewPostgresPersistence_EmptyDSN(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	_, err := NewPostgresPersistence(context.Background(), "", testLogger)
	require.Error(t, err)
}
