// Package models holds the registry domain records shared by the
// coordinator and the backend slots.
package models

import (
	"time"

	"regcast/internal/metadata"
)

// Identity is the unit of registration: an addressable entity with scalar
// metadata and an optional expiry. Records are immutable once stored;
// re-registration with Replace supersedes the whole record.
type Identity struct {
	ID           string        `json:"id"`
	Address      string        `json:"address"`
	Metadata     metadata.Map  `json:"metadata,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
	ExpiresAt    time.Time     `json:"expires_at,omitempty"` // zero = never expires
	TTL          time.Duration `json:"ttl,omitempty"`
}

// Expired reports whether the identity's TTL has elapsed at now. Identities
// without an expiry never expire.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// RegisterRequest carries the inputs of a Register call.
type RegisterRequest struct {
	ID       string
	Address  string // empty = derive from the configured topic prefix
	Metadata metadata.Map
	TTL      time.Duration // 0 = use the configured default
	Replace  bool          // supersede an existing record instead of rejecting
}

// ChangeKind classifies a registry mutation for the durability log.
type ChangeKind string

const (
	ChangeRegistered   ChangeKind = "registered"
	ChangeReplaced     ChangeKind = "replaced"
	ChangeUnregistered ChangeKind = "unregistered"
	ChangeExpired      ChangeKind = "expired"
)

// ChangeEvent is one append-only record of a registry mutation.
type ChangeEvent struct {
	EventID  string     `json:"event_id"`
	Kind     ChangeKind `json:"kind"`
	Identity string     `json:"identity"`
	At       time.Time  `json:"at"`
}

// DeliveryStatus is the terminal outcome of one fan-out delivery.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryTimedOut  DeliveryStatus = "timed_out"
)

// DeliveryResult records the outcome of delivering to one target.
type DeliveryResult struct {
	Identity string         `json:"identity"`
	Address  string         `json:"address"`
	Status   DeliveryStatus `json:"status"`
	Attempts int            `json:"attempts"`
	Latency  time.Duration  `json:"latency"`
	Err      error          `json:"-"`
}

// MulticastReport aggregates one multicast operation. The counts always
// satisfy Targets == Delivered + Failed + TimedOut; a fully failed
// multicast is still a successful call.
type MulticastReport struct {
	OperationID string           `json:"operation_id"`
	Targets     int              `json:"targets"`
	Delivered   int              `json:"delivered"`
	Failed      int              `json:"failed"`
	TimedOut    int              `json:"timed_out"`
	Results     []DeliveryResult `json:"results"`
}

// MulticastOptions tune one multicast call. Zero fields fall back to the
// coordinator configuration.
type MulticastOptions struct {
	// MaxConcurrency caps in-flight deliveries for this call. The
	// coordinator-wide pool still applies; the effective bound is the
	// smaller of the two.
	MaxConcurrency int

	// PerTargetTimeout bounds each delivery attempt.
	PerTargetTimeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int

	// RetryBackoff is the initial backoff between attempts; it grows
	// exponentially per attempt.
	RetryBackoff time.Duration

	// Deadline bounds the whole operation. Targets unresolved when it
	// elapses are reported timed_out.
	Deadline time.Duration
}

// Page is one Enumerate result page. NextToken is empty when the snapshot
// is exhausted.
type Page struct {
	Identities []Identity `json:"identities"`
	NextToken  string     `json:"next_token,omitempty"`
}
