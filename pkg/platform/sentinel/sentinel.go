package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Backend slots return these
// (optionally wrapped) so the coordinator can translate them into domain
// errors without knowing which driver produced them.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the registry slot
// - ErrDuplicate: a create-or-reject Put found an existing record
// - ErrUnavailable: backend temporarily unreachable
//
// For validation errors (bad input, malformed filters), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate")
	ErrUnavailable = errors.New("unavailable")
)
