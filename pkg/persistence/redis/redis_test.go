package redis

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/logger"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence/storetest"
)

// requireRedis connects to REDIS_TEST_ADDRESS, skipping when it is not set.
// Every store gets its own key prefix so runs never see each other's records.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	rp, err := NewRedisPersistence(&RedisConfig{
		Address:   addr,
		DB:        15,
		KeyPrefix: fmt.Sprintf("test-%d:", time.Now().UnixNano()),
	}, testLogger)
	require.NoError(t, err, "Redis not available at %s", addr)
	return rp
}

func TestRedisPersistence(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.IAuthorizationStore {
		return requireRedis(t)
	})
}

func TestNewRedisPersistence_Validation(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, testLogger)
	require.Error(t, err)
}
