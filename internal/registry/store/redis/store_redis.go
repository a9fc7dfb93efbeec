// Package redis provides the Redis-backed registry slot. This is the
// production-recommended store for distributed deployments where multiple
// coordinators share registry state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	"regcast/pkg/platform/sentinel"
)

const (
	// Key prefix for identity records.
	identityKeyPrefix = "regcast:identity:"

	// Keys are expired by Redis one grace period after the record's own
	// expiry. The coordinator's eviction scan stays the authority (and
	// emits the durability event); Redis expiry is a safety net for
	// coordinators that died mid-scan.
	expiryGrace = time.Minute

	scanBatch = 256
)

// Store persists identity records as JSON values keyed by id.
type Store struct {
	client *redis.Client
}

var _ ports.RegistryStore = (*Store)(nil)

// New constructs a Redis-backed registry store. The client lifecycle is
// managed externally.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put stores a record. With replace=false it uses SETNX for atomic
// create-or-reject; with replace=true a plain SET supersedes any existing
// record.
func (s *Store) Put(ctx context.Context, rec models.Identity, replace bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal identity %s: %w", rec.ID, err)
	}

	key := identityKeyPrefix + rec.ID
	ttl := recordRetention(rec)

	if replace {
		return s.client.Set(ctx, key, data, ttl).Err()
	}
	created, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (models.Identity, bool, error) {
	data, err := s.client.Get(ctx, identityKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Identity{}, false, nil
	}
	if err != nil {
		return models.Identity{}, false, err
	}
	var rec models.Identity
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Identity{}, false, fmt.Errorf("unmarshal identity %s: %w", id, err)
	}
	return rec, true, nil
}

// List scans all identity keys and fetches records in batches. The filter
// hint is ignored; Redis has no native metadata filtering, so the
// coordinator filters client-side.
func (s *Store) List(ctx context.Context, _ *ports.ListHint) ([]models.Identity, error) {
	var out []models.Identity

	iter := s.client.Scan(ctx, 0, identityKeyPrefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		values, err := s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return err
		}
		for i, raw := range values {
			if raw == nil {
				// Key expired between SCAN and MGET.
				continue
			}
			str, ok := raw.(string)
			if !ok {
				return fmt.Errorf("unexpected value type %T for %s", raw, batch[i])
			}
			var rec models.Identity
			if err := json.Unmarshal([]byte(str), &rec); err != nil {
				return fmt.Errorf("unmarshal %s: %w", batch[i], err)
			}
			out = append(out, rec)
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := s.client.Del(ctx, identityKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, identityKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func recordRetention(rec models.Identity) time.Duration {
	if rec.ExpiresAt.IsZero() {
		return 0
	}
	return time.Until(rec.ExpiresAt) + expiryGrace
}
