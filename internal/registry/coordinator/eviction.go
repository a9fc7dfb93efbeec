package coordinator

import (
	"context"
	"time"

	"regcast/internal/registry/models"
	dErrors "regcast/pkg/domain-errors"
)

// runEviction is the single background TTL task. It lives for the
// coordinator's lifetime and is stopped by Close; it is never detached.
func (c *Coordinator) runEviction(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.EvictNow(ctx); err != nil && c.logger != nil {
				c.logger.WarnContext(ctx, "eviction scan failed", "error", err)
			}
		}
	}
}

// EvictNow runs one eviction scan, removing every identity whose expiry
// has passed exactly as Unregister would. At most one scan runs at a time;
// a scan requested while another is active is skipped, not queued.
func (c *Coordinator) EvictNow(ctx context.Context) (int, error) {
	if !c.evictMu.TryLock() {
		return 0, nil
	}
	defer c.evictMu.Unlock()

	recs, err := c.store.List(ctx, nil)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "list identities")
	}

	now := c.now()
	evicted := 0
	for _, rec := range recs {
		if !rec.Expired(now) {
			continue
		}
		removed, err := c.store.Delete(ctx, rec.ID)
		if err != nil {
			if c.logger != nil {
				c.logger.WarnContext(ctx, "evict delete failed", "identity", rec.ID, "error", err)
			}
			continue
		}
		if removed {
			evicted++
			c.appendChange(ctx, models.ChangeExpired, rec.ID)
			c.metrics.IncEvicted()
		}
	}

	if evicted > 0 && c.logger != nil {
		c.logger.DebugContext(ctx, "evicted expired identities", "count", evicted)
	}
	return evicted, nil
}
