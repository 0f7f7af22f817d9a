package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/reward-vault-authorizer/pkg/persistence"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS vault_authorizations (
    id TEXT PRIMARY KEY,
    project_id NUMERIC(20, 0),
    payment_id NUMERIC(20, 0),
    status TEXT NOT NULL,
    record JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (project_id, payment_id)
);
`

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// PostgresPersistence stores authorization records in a PostgreSQL table.
type PostgresPersistence struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

var _ persistence.IAuthorizationStore = (*PostgresPersistence)(nil)

// NewPostgresPersistence connects using dsn and ensures the table exists.
func NewPostgresPersistence(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresPersistence, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "failed to connect to postgres")
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "failed to create vault_authorizations table")
	}

	logger.Sugar().Infow("Postgres persistence initialized")
	return &PostgresPersistence{pool: pool, logger: logger}, nil
}

// paymentColumns returns NULLs for records without a payment so the unique
// constraint ignores them
func paymentColumns(record *persistence.AuthorizationRecord) (any, any) {
	if !record.HasPayment() {
		return nil, nil
	}
	p := record.Operation.Payload
	return fmt.Sprint(p.ProjectId), fmt.Sprint(p.PaymentId)
}

func (p *PostgresPersistence) SaveAuthorization(ctx context.Context, record *persistence.AuthorizationRecord) error {
	data, err := persistence.MarshalAuthorizationRecord(record)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	projectId, paymentId := paymentColumns(record)
	_, err = p.pool.Exec(ctx, `
INSERT INTO vault_authorizations (id, project_id, payment_id, status, record, created_at, updated_at)
VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET project_id = EXCLUDED.project_id,
    payment_id = EXCLUDED.payment_id,
    status = EXCLUDED.status,
    record = EXCLUDED.record,
    updated_at = EXCLUDED.updated_at
`, record.Id(), projectId, paymentId, string(record.Status), data, record.CreatedAt, record.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicatePayment, pgErr.Detail)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to save authorization %s", record.Id())
	}
	return nil
}

func (p *PostgresPersistence) LoadAuthorization(ctx context.Context, id string) (*persistence.AuthorizationRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.ErrClosed
	}
	return p.queryOne(ctx, `SELECT record FROM vault_authorizations WHERE id = $1`, id)
}

func (p *PostgresPersistence) FindByPaymentId(ctx context.Context, projectId, paymentId uint64) (*persistence.AuthorizationRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.ErrClosed
	}
	return p.queryOne(ctx, `
SELECT record FROM vault_authorizations
WHERE project_id = $1::numeric AND payment_id = $2::numeric
`, fmt.Sprint(projectId), fmt.Sprint(paymentId))
}

func (p *PostgresPersistence) ListAuthorizations(ctx context.Context) ([]*persistence.AuthorizationRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.ErrClosed
	}

	rows, err := p.pool.Query(ctx, `SELECT record FROM vault_authorizations ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list authorizations")
	}
	defer rows.Close()

	var records []*persistence.AuthorizationRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		r, err := persistence.UnmarshalAuthorizationRecord(data)
		if err != nil {
			p.logger.Sugar().Warnw("Failed to unmarshal AuthorizationRecord, skipping", "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (p *PostgresPersistence) MarkConfirmed(ctx context.Context, id, digest string) error {
	return p.update(ctx, id, func(r *persistence.AuthorizationRecord) { r.Confirm(digest) })
}

func (p *PostgresPersistence) MarkFailed(ctx context.Context, id, reason string) error {
	return p.update(ctx, id, func(r *persistence.AuthorizationRecord) { r.Fail(reason) })
}

// update reads the row FOR UPDATE and rewrites it in one transaction
func (p *PostgresPersistence) update(ctx context.Context, id string, apply func(r *persistence.AuthorizationRecord)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var data []byte
		err := tx.QueryRow(ctx, `SELECT record FROM vault_authorizations WHERE id = $1 FOR UPDATE`, id).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", persistence.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		r, err := persistence.UnmarshalAuthorizationRecord(data)
		if err != nil {
			return err
		}
		apply(r)
		updated, err := persistence.MarshalAuthorizationRecord(r)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE vault_authorizations SET status = $2, record = $3, updated_at = $4 WHERE id = $1
`, id, string(r.Status), updated, r.UpdatedAt)
		return err
	})
}

func (p *PostgresPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.pool.Close()
	p.logger.Sugar().Info("Postgres persistence closed")
	return nil
}

func (p *PostgresPersistence) HealthCheck() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func (p *PostgresPersistence) queryOne(ctx context.Context, sql string, args ...any) (*persistence.AuthorizationRecord, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, sql, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to query authorization")
	}
	return persistence.UnmarshalAuthorizationRecord(data)
}
