package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists compiled trees in a single table so they survive
// process restarts. The compiled tree is stored as JSONB; Put upserts on
// fingerprint so concurrent compilations of the same pair simply overwrite
// each other with identical content.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Schema is the DDL for the cache table, applied by the migrate command.
const Schema = `
CREATE TABLE IF NOT EXISTS compiled_criteria (
	id             UUID PRIMARY KEY,
	fingerprint    TEXT NOT NULL UNIQUE,
	trial_id       TEXT NOT NULL,
	criteria_text  TEXT NOT NULL,
	compiled_tree  JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ttl_seconds    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compiled_criteria_trial ON compiled_criteria (trial_id);
`

// Migrate creates the cache table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create compiled_criteria table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint, trial_id, criteria_text, compiled_tree, created_at, ttl_seconds
		FROM compiled_criteria WHERE fingerprint = $1`, fingerprint)

	var e Entry
	var treeJSON []byte
	var ttlSeconds int64
	err := row.Scan(&e.ID, &e.Fingerprint, &e.TrialID, &e.CriteriaText, &treeJSON, &e.CreatedAt, &ttlSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	e.TTL = time.Duration(ttlSeconds) * time.Second

	if e.Expired(time.Now()) {
		// Lazy expiry: drop the stale row and report a miss. A delete
		// failure is non-fatal since the row stays unreadable anyway.
		_ = s.Delete(ctx, fingerprint)
		return nil, nil
	}

	if err := json.Unmarshal(treeJSON, &e.CompiledTree); err != nil {
		return nil, fmt.Errorf("decode cached tree: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	treeJSON, err := json.Marshal(entry.CompiledTree)
	if err != nil {
		return fmt.Errorf("encode compiled tree: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO compiled_criteria (id, fingerprint, trial_id, criteria_text, compiled_tree, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (fingerprint) DO UPDATE SET
			trial_id = EXCLUDED.trial_id,
			criteria_text = EXCLUDED.criteria_text,
			compiled_tree = EXCLUDED.compiled_tree,
			created_at = EXCLUDED.created_at,
			ttl_seconds = EXCLUDED.ttl_seconds`,
		entry.ID, entry.Fingerprint, entry.TrialID, entry.CriteriaText,
		treeJSON, entry.CreatedAt, int64(entry.TTL/time.Second))
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM compiled_criteria WHERE fingerprint = $1`, fingerprint); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
