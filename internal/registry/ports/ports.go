// Package ports defines the backend slot contracts the coordinator
// consumes. Drivers live under internal/registry/{store,messenger,
// durability}; anything satisfying these interfaces can be slotted in.
package ports

import (
	"context"

	"regcast/internal/filter"
	"regcast/internal/registry/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// ListHint is advisory. A store that can evaluate the filter natively may
// return a narrowed result set; the coordinator re-applies the filter
// client-side either way, so ignoring the hint is always correct.
type ListHint struct {
	Filter filter.Node
}

// RegistryStore is the registry slot: keyed storage of identity records.
// Implementations must make a Put atomically visible before returning and
// must enforce create-or-reject atomically when replace is false,
// returning sentinel.ErrDuplicate for an existing id.
type RegistryStore interface {
	Put(ctx context.Context, rec models.Identity, replace bool) error
	Get(ctx context.Context, id string) (models.Identity, bool, error)
	List(ctx context.Context, hint *ListHint) ([]models.Identity, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Messenger is the messaging slot: at-most-once, fire-and-forget publish
// to an identity's delivery address. No end-subscriber acknowledgement is
// assumed.
type Messenger interface {
	Publish(ctx context.Context, address string, payload []byte) error
}

// DurabilityLog is the optional durability slot: an append-only record of
// registry mutations for audit or replay. Its absence never affects the
// correctness of the other slots.
type DurabilityLog interface {
	Append(ctx context.Context, event models.ChangeEvent) error
}
