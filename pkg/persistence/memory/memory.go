package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IAuthorizationStore.
// Intended for tests and local simulation.
//
// All data is lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Records are stored serialized so callers never share memory with the store.
type MemoryPersistence struct {
	mu sync.RWMutex

	// id -> serialized record
	records map[string][]byte

	// payment key -> id
	payments map[string]string

	closed bool
}

var _ persistence.IAuthorizationStore = (*MemoryPersistence)(nil)

// NewMemoryPersistence creates a new in-memory store.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		records:  make(map[string][]byte),
		payments: make(map[string]string),
	}
}

func (m *MemoryPersistence) SaveAuthorization(_ context.Context, record *persistence.AuthorizationRecord) error {
	data, err := persistence.MarshalAuthorizationRecord(record)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	if record.HasPayment() {
		key := persistence.PaymentKey(record.Operation.Payload.ProjectId, record.Operation.Payload.PaymentId)
		if owner, ok := m.payments[key]; ok && owner != record.Id() {
			return fmt.Errorf("%w: %s held by %s", persistence.ErrDuplicatePayment, key, owner)
		}
		m.payments[key] = record.Id()
	}
	m.records[record.Id()] = data
	return nil
}

func (m *MemoryPersistence) LoadAuthorization(_ context.Context, id string) (*persistence.AuthorizationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	return m.load(id)
}

func (m *MemoryPersistence) FindByPaymentId(_ context.Context, projectId, paymentId uint64) (*persistence.AuthorizationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}
	id, ok := m.payments[persistence.PaymentKey(projectId, paymentId)]
	if !ok {
		return nil, nil
	}
	return m.load(id)
}

func (m *MemoryPersistence) ListAuthorizations(_ context.Context) ([]*persistence.AuthorizationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	records := make([]*persistence.AuthorizationRecord, 0, len(m.records))
	for _, data := range m.records {
		r, err := persistence.UnmarshalAuthorizationRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryPersistence) MarkConfirmed(_ context.Context, id, digest string) error {
	return m.update(id, func(r *persistence.AuthorizationRecord) { r.Confirm(digest) })
}

func (m *MemoryPersistence) MarkFailed(_ context.Context, id, reason string) error {
	return m.update(id, func(r *persistence.AuthorizationRecord) { r.Fail(reason) })
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.payments = nil
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}

func (m *MemoryPersistence) update(id string, apply func(r *persistence.AuthorizationRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	r, err := m.load(id)
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
	m.records[id] = data
	return nil
}

// load expects the lock to be held
func (m *MemoryPersistence) load(id string) (*persistence.AuthorizationRecord, error) {
	data, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return persistence.UnmarshalAuthorizationRecord(data)
}
