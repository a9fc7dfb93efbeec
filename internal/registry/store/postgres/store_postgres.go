// Package postgres provides the PostgreSQL-backed registry slot. Metadata
// is stored as jsonb so the scalar kinds survive a round trip.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"regcast/internal/metadata"
	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	"regcast/pkg/platform/sentinel"
)

// Schema creates the identities table. Applied by EnsureSchema; kept as a
// constant so deployments with their own migration tooling can lift it.
const Schema = `
CREATE TABLE IF NOT EXISTS regcast_identities (
    id            TEXT PRIMARY KEY,
    address       TEXT NOT NULL,
    metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
    registered_at TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ,
    ttl_ns        BIGINT NOT NULL DEFAULT 0
);
`

// Store persists identity records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ ports.RegistryStore = (*Store)(nil)

// New constructs a PostgreSQL-backed registry store. The pool lifecycle is
// managed externally.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema applies the table definition. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, rec models.Identity, replace bool) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", rec.ID, err)
	}
	var expiresAt *time.Time
	if !rec.ExpiresAt.IsZero() {
		expiresAt = &rec.ExpiresAt
	}

	if replace {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO regcast_identities (id, address, metadata, registered_at, expires_at, ttl_ns)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				address = EXCLUDED.address,
				metadata = EXCLUDED.metadata,
				registered_at = EXCLUDED.registered_at,
				expires_at = EXCLUDED.expires_at,
				ttl_ns = EXCLUDED.ttl_ns`,
			rec.ID, rec.Address, meta, rec.RegisteredAt, expiresAt, int64(rec.TTL))
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO regcast_identities (id, address, metadata, registered_at, expires_at, ttl_ns)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Address, meta, rec.RegisteredAt, expiresAt, int64(rec.TTL))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Identity, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, address, metadata, registered_at, expires_at, ttl_ns
		FROM regcast_identities WHERE id = $1`, id)
	rec, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, err
	}
	return rec, true, nil
}

// List returns every record. The filter hint is ignored; metadata
// predicates are evaluated client-side by the coordinator.
func (s *Store) List(ctx context.Context, _ *ports.ListHint) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, address, metadata, registered_at, expires_at, ttl_ns
		FROM regcast_identities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM regcast_identities WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM regcast_identities`).Scan(&count)
	return count, err
}

func scanIdentity(row pgx.Row) (models.Identity, error) {
	var (
		rec       models.Identity
		meta      []byte
		expiresAt *time.Time
		ttlNanos  int64
	)
	if err := row.Scan(&rec.ID, &rec.Address, &meta, &rec.RegisteredAt, &expiresAt, &ttlNanos); err != nil {
		return models.Identity{}, err
	}
	if len(meta) > 0 {
		var m metadata.Map
		if err := json.Unmarshal(meta, &m); err != nil {
			return models.Identity{}, fmt.Errorf("unmarshal metadata for %s: %w", rec.ID, err)
		}
		rec.Metadata = m
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}
	rec.TTL = time.Duration(ttlNanos)
	return rec, nil
}
