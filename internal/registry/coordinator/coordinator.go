// Package coordinator owns the multicast registry operation surface:
// Register, Enumerate, Multicast and Unregister, plus the background TTL
// eviction task. It holds no registry state of its own; all records live
// behind the RegistryStore slot, and the coordinator never holds a lock
// across a slot call.
package coordinator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"regcast/internal/filter"
	"regcast/internal/registry/metrics"
	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	dErrors "regcast/pkg/domain-errors"
	"regcast/pkg/platform/sentinel"
)

// Config tunes the coordinator. Zero fields fall back to the defaults
// below.
type Config struct {
	// EvictionInterval is the period of the background TTL scan.
	EvictionInterval time.Duration

	// DefaultTTL applies to registrations that do not specify one.
	// Zero means registrations never expire by default.
	DefaultTTL time.Duration

	// MaxIdentities caps the registry size. Zero means unlimited. The
	// cap is advisory under concurrent registration; id uniqueness is
	// the slot's atomic guarantee, the cap is not.
	MaxIdentities int

	// TopicPrefix derives a delivery address for identities registered
	// without one.
	TopicPrefix string

	// MaxConcurrency sizes the delivery pool shared across all
	// Multicast calls.
	MaxConcurrency int

	// DefaultTimeout bounds each delivery attempt when the call does
	// not specify a per-target timeout.
	DefaultTimeout time.Duration

	// RetryAttempts is the default number of delivery retries after the
	// first attempt.
	RetryAttempts int

	// RetryBackoff is the default initial backoff between attempts.
	RetryBackoff time.Duration
}

const (
	defaultEvictionInterval = 5 * time.Second
	defaultTopicPrefix      = "regcast.identity."
	defaultMaxConcurrency   = 64
	defaultTimeout          = 5 * time.Second
	defaultRetryAttempts    = 2
	defaultRetryBackoff     = 100 * time.Millisecond
	defaultPageSize         = 100
)

func (c Config) withDefaults() Config {
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = defaultEvictionInterval
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	} else if c.RetryAttempts == 0 {
		c.RetryAttempts = defaultRetryAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Coordinator is the multicast registry entry point. Safe for concurrent
// use by multiple callers.
type Coordinator struct {
	cfg        Config
	store      ports.RegistryStore
	messenger  ports.Messenger
	durability ports.DurabilityLog

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// pool bounds in-flight deliveries across all Multicast calls so
	// fan-out size never dictates backend connection pressure.
	pool *semaphore.Weighted

	now func() time.Time

	evictMu   sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures optional collaborators.
type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithDurability attaches the optional durability slot. Append failures
// are logged, never propagated; the log is an audit trail, not a
// correctness dependency.
func WithDurability(log ports.DurabilityLog) Option {
	return func(c *Coordinator) { c.durability = log }
}

// New constructs a coordinator and starts its eviction task. The caller
// owns the lifecycle and must Close it.
func New(cfg Config, store ports.RegistryStore, messenger ports.Messenger, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("registry store is required")
	}
	if messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}

	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:       cfg,
		store:     store,
		messenger: messenger,
		tracer:    otel.Tracer("regcast/registry"),
		pool:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.runEviction(ctx)

	return c, nil
}

// Close stops the eviction task and waits for it to exit. Idempotent.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

// Register stores a new identity. Duplicate ids are rejected unless the
// request sets Replace, in which case the new record fully supersedes the
// old one (last writer wins at the slot boundary).
func (c *Coordinator) Register(ctx context.Context, req models.RegisterRequest) (models.Identity, error) {
	ctx, span := c.tracer.Start(ctx, "registry.Register")
	defer span.End()

	if req.ID == "" {
		return models.Identity{}, dErrors.New(dErrors.CodeBadRequest, "identity id is required")
	}
	if req.TTL < 0 {
		return models.Identity{}, dErrors.New(dErrors.CodeBadRequest, "ttl must not be negative")
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	if c.cfg.MaxIdentities > 0 {
		count, err := c.store.Count(ctx)
		if err != nil {
			return models.Identity{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "count identities")
		}
		if count >= c.cfg.MaxIdentities {
			return models.Identity{}, dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("registry is full (%d identities)", c.cfg.MaxIdentities))
		}
	}

	now := c.now()
	rec := models.Identity{
		ID:           req.ID,
		Address:      req.Address,
		Metadata:     req.Metadata.Clone(),
		RegisteredAt: now,
		TTL:          ttl,
	}
	if rec.Address == "" {
		rec.Address = c.cfg.TopicPrefix + req.ID
	}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}

	if err := c.store.Put(ctx, rec, req.Replace); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return models.Identity{}, dErrors.Wrap(err, dErrors.CodeConflict, "identity already registered")
		}
		return models.Identity{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "store identity")
	}

	kind := models.ChangeRegistered
	if req.Replace {
		kind = models.ChangeReplaced
	}
	c.appendChange(ctx, kind, rec.ID)
	c.metrics.IncRegistered()

	if c.logger != nil {
		c.logger.DebugContext(ctx, "identity registered",
			"identity", rec.ID,
			"address", rec.Address,
			"ttl", ttl,
		)
	}
	span.SetAttributes(attribute.String("identity.id", rec.ID))

	return rec, nil
}

// Unregister deletes the record for id. Idempotent: a missing id is a
// no-op reporting zero removals, never an error.
func (c *Coordinator) Unregister(ctx context.Context, id string) (int, error) {
	ctx, span := c.tracer.Start(ctx, "registry.Unregister")
	defer span.End()

	if id == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "identity id is required")
	}

	removed, err := c.store.Delete(ctx, id)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "delete identity")
	}
	if !removed {
		return 0, nil
	}

	c.appendChange(ctx, models.ChangeUnregistered, id)
	c.metrics.IncUnregistered()
	if c.logger != nil {
		c.logger.DebugContext(ctx, "identity unregistered", "identity", id)
	}
	return 1, nil
}

// Enumerate returns one page of live identities matching f, in stable
// (registered_at, id) order. Pagination is deterministic for a static
// registry; no cross-page consistency is guaranteed for a changing one.
func (c *Coordinator) Enumerate(ctx context.Context, f filter.Node, pageSize int, pageToken string) (models.Page, error) {
	ctx, span := c.tracer.Start(ctx, "registry.Enumerate")
	defer span.End()

	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	live, err := c.liveSnapshot(ctx, f)
	if err != nil {
		return models.Page{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "list identities")
	}

	start := 0
	if pageToken != "" {
		at, id, err := decodePageToken(pageToken)
		if err != nil {
			return models.Page{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid page token")
		}
		start = sort.Search(len(live), func(i int) bool {
			return sortsAfter(live[i], at, id)
		})
	}

	end := min(start+pageSize, len(live))
	page := models.Page{
		Identities: append([]models.Identity(nil), live[start:end]...),
	}
	if end < len(live) && end > 0 {
		last := live[end-1]
		page.NextToken = encodePageToken(last.RegisteredAt, last.ID)
	}
	span.SetAttributes(attribute.Int("enumerate.matches", len(page.Identities)))
	return page, nil
}

// liveSnapshot reads the registry once, drops expired records, applies the
// filter client-side and sorts. The store may have narrowed the result via
// the hint already; re-applying the filter is always correct.
func (c *Coordinator) liveSnapshot(ctx context.Context, f filter.Node) ([]models.Identity, error) {
	recs, err := c.store.List(ctx, &ports.ListHint{Filter: f})
	if err != nil {
		return nil, err
	}
	now := c.now()
	live := make([]models.Identity, 0, len(recs))
	for _, rec := range recs {
		if rec.Expired(now) {
			continue
		}
		if !filter.Match(f, rec.Metadata) {
			continue
		}
		live = append(live, rec)
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].RegisteredAt.Equal(live[j].RegisteredAt) {
			return live[i].RegisteredAt.Before(live[j].RegisteredAt)
		}
		return live[i].ID < live[j].ID
	})
	return live, nil
}

func (c *Coordinator) appendChange(ctx context.Context, kind models.ChangeKind, id string) {
	if c.durability == nil {
		return
	}
	event := models.ChangeEvent{
		EventID:  uuid.NewString(),
		Kind:     kind,
		Identity: id,
		At:       c.now(),
	}
	if err := c.durability.Append(ctx, event); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "durability append failed",
			"kind", kind,
			"identity", id,
			"error", err,
		)
	}
}

// Page tokens are the sort key of the last record returned, so they stay
// valid across evictions between page reads.

func encodePageToken(at time.Time, id string) string {
	raw := strconv.FormatInt(at.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodePageToken(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode page token: %w", err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("page token missing separator")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("page token timestamp: %w", err)
	}
	return time.Unix(0, n), id, nil
}

func sortsAfter(rec models.Identity, at time.Time, id string) bool {
	if !rec.RegisteredAt.Equal(at) {
		return rec.RegisteredAt.After(at)
	}
	return rec.ID > id
}
