package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to queries and transaction scoping. Services depend
// on this interface; the Postgres store backs deployments and the in-memory
// store backs tests.
type Store interface {
	Queries() Queries
	RunInTx(ctx context.Context, fn func(q Queries) error) error
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	db      *pgxpool.Pool
	queries Queries
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the non-transactional query set.
func (s *PgStore) Queries() Queries {
	return s.queries
}

// RunInTx executes fn within a database transaction.
func (s *PgStore) RunInTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newTxQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IdempotencyKeyRow mirrors one row of the idempotency_keys table.
type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

type FinalizeIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
}

const idempotencyColumns = `idempotency_key, request_hash, method, path,
	response_status, response_body, content_type, in_progress, created_at, updated_at`

// GetIdempotencyKey fetches a stored idempotency record by key.
func (s *PgStore) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := s.db.QueryRow(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE idempotency_key = $1`, key,
	).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress,
		&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return IdempotencyKeyRow{}, mapPgError(err, "get idempotency key")
	}
	return row, nil
}

// ReserveIdempotencyKey claims a key for an in-flight request. The insert
// is a no-op when the key already exists, in which case no row is returned
// and the caller treats the key as taken.
func (s *PgStore) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := s.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path,
			response_status, response_body, content_type, in_progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NULL, '', TRUE, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING `+idempotencyColumns,
		arg.IdempotencyKey, arg.RequestHash, arg.Method, arg.Path,
	).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress,
		&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return IdempotencyKeyRow{}, mapPgError(err, "reserve idempotency key")
	}
	return row, nil
}

// FinalizeIdempotencyKey records the response for a reserved key.
func (s *PgStore) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := s.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $3,
		    response_body   = $4,
		    content_type    = $5,
		    in_progress     = FALSE,
		    updated_at      = NOW()
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING `+idempotencyColumns,
		arg.IdempotencyKey, arg.RequestHash, arg.ResponseStatus, arg.ResponseBody, arg.ContentType,
	).Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
		&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress,
		&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return IdempotencyKeyRow{}, mapPgError(err, "finalize idempotency key")
	}
	return row, nil
}
