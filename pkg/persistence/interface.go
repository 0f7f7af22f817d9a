package persistence

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by updates addressed to an unknown authorization.
	ErrNotFound = errors.New("authorization not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("persistence layer is closed")

	// ErrDuplicatePayment is returned when a second authorization claims an
	// existing (project id, payment id) pair.
	ErrDuplicatePayment = errors.New("payment id already authorized")
)

// IAuthorizationStore keeps an audit record of every issued authorization and its
// confirmation. All implementations must be thread-safe.
//
// The interface supports:
// - Saving and loading authorization records by id
// - Lookup by (project id, payment id), the pair the vault consumes on chain
// - Confirmation and failure updates
// - Lifecycle management (close, health check)
type IAuthorizationStore interface {
	// SaveAuthorization persists a new record, or overwrites the record with the same id.
	// Fails with ErrDuplicatePayment if a different record holds the same payment.
	SaveAuthorization(ctx context.Context, record *AuthorizationRecord) error

	// LoadAuthorization retrieves a record by id.
	// Returns nil if the record doesn't exist, error only on storage failure.
	LoadAuthorization(ctx context.Context, id string) (*AuthorizationRecord, error)

	// FindByPaymentId retrieves the record that authorized a payment.
	// Returns nil if no record exists, error only on storage failure.
	FindByPaymentId(ctx context.Context, projectId, paymentId uint64) (*AuthorizationRecord, error)

	// ListAuthorizations returns all records sorted by creation time (ascending).
	ListAuthorizations(ctx context.Context) ([]*AuthorizationRecord, error)

	// MarkConfirmed records the transaction that executed the authorization.
	// Returns ErrNotFound if the id is unknown.
	MarkConfirmed(ctx context.Context, id, digest string) error

	// MarkFailed records why the authorization could not be executed.
	// Returns ErrNotFound if the id is unknown.
	MarkFailed(ctx context.Context, id, reason string) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
