// Package memory provides an in-memory durability log for tests and
// wiring without a broker.
package memory

import (
	"context"
	"sync"

	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
)

// Log records change events in order of arrival.
type Log struct {
	mu     sync.RWMutex
	events []models.ChangeEvent
}

var _ ports.DurabilityLog = (*Log)(nil)

func New() *Log {
	return &Log{}
}

func (l *Log) Append(_ context.Context, event models.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (l *Log) Events() []models.ChangeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.ChangeEvent(nil), l.events...)
}
