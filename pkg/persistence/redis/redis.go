package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixAuthorization = "vault:authorization:"
	keyPrefixPayment       = "vault:payment:"
	keySchemaVersion       = "vault:metadata:schema_version"
	currentSchemaVersion   = "v1"

	// Sorted set of authorization ids scored by creation time, for listing
	keyIndexAuthorizations = "vault:authorizations:index"
)

// RedisPersistence is a shared authorization store for multi-instance deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IAuthorizationStore = (*RedisPersistence)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "staging:" gives "staging:vault:authorization:<id>"
	KeyPrefix string
}

// NewRedisPersistence connects, pings and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)
	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) authorizationKey(id string) string {
	return r.prefixKey(keyPrefixAuthorization + id)
}

func (r *RedisPersistence) paymentKey(projectId, paymentId uint64) string {
	return r.prefixKey(keyPrefixPayment + persistence.PaymentKey(projectId, paymentId))
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

func (r *RedisPersistence) SaveAuthorization(ctx context.Context, record *persistence.AuthorizationRecord) error {
	data, err := persistence.MarshalAuthorizationRecord(record)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	if record.HasPayment() {
		key := r.paymentKey(record.Operation.Payload.ProjectId, record.Operation.Payload.PaymentId)
		claimed, err := r.client.SetNX(ctx, key, record.Id(), 0).Result()
		if err != nil {
			return fmt.Errorf("failed to index payment: %w", err)
		}
		if !claimed {
			owner, err := r.client.Get(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("failed to read payment index: %w", err)
			}
			if owner != record.Id() {
				return fmt.Errorf("%w: %s held by %s", persistence.ErrDuplicatePayment, key, owner)
			}
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.authorizationKey(record.Id()), data, 0)
	pipe.ZAdd(ctx, r.prefixKey(keyIndexAuthorizations), redis.Z{
		Score:  float64(record.CreatedAt.UnixNano()),
		Member: record.Id(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	return nil
}

func (r *RedisPersistence) LoadAuthorization(ctx context.Context, id string) (*persistence.AuthorizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}
	return r.load(ctx, id)
}

func (r *RedisPersistence) FindByPaymentId(ctx context.Context, projectId, paymentId uint64) (*persistence.AuthorizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	id, err := r.client.Get(ctx, r.paymentKey(projectId, paymentId)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payment index: %w", err)
	}
	return r.load(ctx, id)
}

func (r *RedisPersistence) ListAuthorizations(ctx context.Context) ([]*persistence.AuthorizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ids, err := r.client.ZRange(ctx, r.prefixKey(keyIndexAuthorizations), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization index: %w", err)
	}

	records := make([]*persistence.AuthorizationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.load(ctx, id)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to load indexed authorization, skipping", "id", id, "error", err)
			continue
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *RedisPersistence) MarkConfirmed(ctx context.Context, id, digest string) error {
	return r.update(ctx, id, func(rec *persistence.AuthorizationRecord) { rec.Confirm(digest) })
}

func (r *RedisPersistence) MarkFailed(ctx context.Context, id, reason string) error {
	return r.update(ctx, id, func(rec *persistence.AuthorizationRecord) { rec.Fail(reason) })
}

// update applies fn under WATCH so concurrent updates of one record don't interleave
func (r *RedisPersistence) update(ctx context.Context, id string, apply func(rec *persistence.AuthorizationRecord)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	key := r.authorizationKey(id)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", persistence.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		rec, err := persistence.UnmarshalAuthorizationRecord(data)
		if err != nil {
			return err
		}
		apply(rec)
		updated, err := persistence.MarshalAuthorizationRecord(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)
}

func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}

func (r *RedisPersistence) load(ctx context.Context, id string) (*persistence.AuthorizationRecord, error) {
	data, err := r.client.Get(ctx, r.authorizationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization: %w", err)
	}
	return persistence.UnmarshalAuthorizationRecord(data)
}
