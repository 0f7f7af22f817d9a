package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixAuthorization = "authorization:"
	keyPrefixPayment       = "payment:"
	keySchemaVersion       = "metadata:schema_version"
	currentSchemaVersion   = "v1"
)

// BadgerPersistence is a durable, disk-based authorization store.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IAuthorizationStore = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens the database at dataPath with SyncWrites enabled and
// starts background value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newStoreLogger(logger, absPath)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open badger database at %s", absPath)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)
	return bp, nil
}

func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		if err := item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}
		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func authorizationKey(id string) []byte {
	return []byte(keyPrefixAuthorization + id)
}

func paymentKey(projectId, paymentId uint64) []byte {
	return []byte(keyPrefixPayment + persistence.PaymentKey(projectId, paymentId))
}

func (b *BadgerPersistence) SaveAuthorization(_ context.Context, record *persistence.AuthorizationRecord) error {
	data, err := persistence.MarshalAuthorizationRecord(record)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if record.HasPayment() {
			key := paymentKey(record.Operation.Payload.ProjectId, record.Operation.Payload.PaymentId)
			owner, err := getValue(txn, key)
			if err != nil {
				return err
			}
			if owner != nil && string(owner) != record.Id() {
				return fmt.Errorf("%w: %s held by %s", persistence.ErrDuplicatePayment, key, owner)
			}
			if err := txn.Set(key, []byte(record.Id())); err != nil {
				return err
			}
		}
		return txn.Set(authorizationKey(record.Id()), data)
	})
}

func (b *BadgerPersistence) LoadAuthorization(_ context.Context, id string) (*persistence.AuthorizationRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var record *persistence.AuthorizationRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		record, err = loadRecord(txn, id)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load authorization %s", id)
	}
	return record, nil
}

func (b *BadgerPersistence) FindByPaymentId(_ context.Context, projectId, paymentId uint64) (*persistence.AuthorizationRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var record *persistence.AuthorizationRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		id, err := getValue(txn, paymentKey(projectId, paymentId))
		if err != nil || id == nil {
			return err
		}
		record, err = loadRecord(txn, string(id))
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to find payment %d/%d", projectId, paymentId)
	}
	return record, nil
}

func (b *BadgerPersistence) ListAuthorizations(_ context.Context) ([]*persistence.AuthorizationRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var records []*persistence.AuthorizationRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixAuthorization)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}
			r, err := persistence.UnmarshalAuthorizationRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal AuthorizationRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list authorizations: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (b *BadgerPersistence) MarkConfirmed(_ context.Context, id, digest string) error {
	return b.update(id, func(r *persistence.AuthorizationRecord) { r.Confirm(digest) })
}

func (b *BadgerPersistence) MarkFailed(_ context.Context, id, reason string) error {
	return b.update(id, func(r *persistence.AuthorizationRecord) { r.Fail(reason) })
}

func (b *BadgerPersistence) update(id string, apply func(r *persistence.AuthorizationRecord)) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		r, err := loadRecord(txn, id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: %s", persistence.ErrNotFound, id)
		}
		apply(r)
		data, err := persistence.MarshalAuthorizationRecord(r)
		if err != nil {
			return err
		}
		return txn.Set(authorizationKey(id), data)
	})
}

func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}

// getValue returns nil for a missing key
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func loadRecord(txn *badgerdb.Txn, id string) (*persistence.AuthorizationRecord, error) {
	data, err := getValue(txn, authorizationKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return persistence.UnmarshalAuthorizationRecord(data)
}
