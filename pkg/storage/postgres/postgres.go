// Package postgres provides a PostgreSQL implementation of transport.JobStore.
// It uses pgx/v5 for connection pooling and a JSONB array for the job's
// output batches.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akessl/schleuse/pkg/storage"
	"github.com/akessl/schleuse/pkg/transport"
)

// Store is a PostgreSQL-backed JobStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements transport.JobStore at compile time.
var _ transport.JobStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateJob records a new job.
func (s *Store) CreateJob(ctx context.Context, rec *transport.JobRecord) error {
	status := rec.Status
	if status == "" {
		status = transport.JobStatusInQueue
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	batchesJSON, err := json.Marshal(rec.Batches)
	if err != nil {
		return fmt.Errorf("marshaling batches: %w", err)
	}
	if rec.Batches == nil {
		batchesJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, batches, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		rec.ID, string(status), batchesJSON, nullString(rec.Error), createdAt, rec.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// AppendBatch appends one output batch to the job's JSONB batch array.
func (s *Store) AppendBatch(ctx context.Context, id string, batch any) error {
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}

	// jsonb_build_array keeps the append element-wise even when the batch
	// itself is an array.
	result, err := s.pool.Exec(ctx, `
		UPDATE jobs SET batches = batches || jsonb_build_array($1::jsonb)
		WHERE id = $2
	`, batchJSON, id)
	if err != nil {
		return fmt.Errorf("appending batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetStatus transitions a job's lifecycle state. Terminal states record a
// completion timestamp; a failure message is stored only for FAILED.
func (s *Store) SetStatus(ctx context.Context, id string, status transport.JobStatus, errMsg string) error {
	var completedAt *time.Time
	switch status {
	case transport.JobStatusCompleted, transport.JobStatusFailed, transport.JobStatusCancelled:
		now := time.Now()
		completedAt = &now
	}
	if status != transport.JobStatusFailed {
		errMsg = ""
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, error = $2,
		       completed_at = COALESCE($3, completed_at)
		WHERE id = $4
	`, string(status), nullString(errMsg), completedAt, id)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*transport.JobRecord, error) {
	var rec transport.JobRecord
	var status string
	var batchesJSON []byte
	var errMsg *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, status, batches, error, created_at, completed_at
		FROM jobs
		WHERE id = $1
	`, id).Scan(&rec.ID, &status, &batchesJSON, &errMsg, &rec.CreatedAt, &rec.CompletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}

	rec.Status = transport.JobStatus(status)
	if errMsg != nil {
		rec.Error = *errMsg
	}
	if err := json.Unmarshal(batchesJSON, &rec.Batches); err != nil {
		return nil, fmt.Errorf("unmarshaling batches: %w", err)
	}
	return &rec, nil
}

// DeleteJob removes a job and its stored output.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
