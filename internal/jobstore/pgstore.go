package jobstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"posterforge/internal/pkg/errors"
)

// Schema is the jobs table used by PGStore.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    cache_key  TEXT NOT NULL,
    message    TEXT NOT NULL DEFAULT '',
    result     TEXT NOT NULL DEFAULT ''
);`

// PGStore keeps one row per job. Overwrite is a single upsert statement, so
// row-level atomicity gives readers a consistent full record.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the jobs table when it does not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PGStore) Create(ctx context.Context, id string, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, created_at, cache_key, message, result)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		id, rec.Status, rec.CreatedAt, rec.CacheKey, rec.Message, rec.Result,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.AlreadyExists("job", id)
		}
		return errors.Wrap(err, "jobstore.create", "insert job record")
	}
	return nil
}

func (s *PGStore) Overwrite(ctx context.Context, id string, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, created_at, cache_key, message, result)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE
		 SET status=$2, created_at=$3, cache_key=$4, message=$5, result=$6`,
		id, rec.Status, rec.CreatedAt, rec.CacheKey, rec.Message, rec.Result,
	)
	if err != nil {
		return errors.Wrap(err, "jobstore.overwrite", "upsert job record")
	}
	return nil
}

func (s *PGStore) Read(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, created_at, cache_key, message, result
		 FROM jobs WHERE id=$1`,
		id,
	).Scan(&rec.JobID, &rec.Status, &rec.CreatedAt, &rec.CacheKey, &rec.Message, &rec.Result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, errors.NotFound("job", id)
		}
		return Record{}, errors.Wrap(err, "jobstore.read", "select job record")
	}
	return rec, nil
}

// isUniqueViolation reports a PostgreSQL unique constraint violation.
// 23505 = unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
