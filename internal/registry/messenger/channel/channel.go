// Package channel provides an in-process messenger. Subscribers receive
// payloads on buffered channels; a full buffer drops the message, matching
// the slot's at-most-once contract. Used by tests and single-process
// wiring.
package channel

import (
	"context"
	"sync"

	"regcast/internal/registry/ports"
)

const defaultBuffer = 64

// Messenger fans published payloads out to per-address subscriber
// channels.
type Messenger struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

var _ ports.Messenger = (*Messenger)(nil)

func New() *Messenger {
	return &Messenger{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every subscriber of address. Addresses with
// no subscribers swallow the message; fire-and-forget means nobody is told.
func (m *Messenger) Publish(ctx context.Context, address string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs[address] {
		select {
		case ch <- payload:
		default:
			// Subscriber buffer full: at-most-once, drop.
		}
	}
	return nil
}

// Subscribe returns a channel receiving payloads published to address.
func (m *Messenger) Subscribe(address string) <-chan []byte {
	ch := make(chan []byte, defaultBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[address] = append(m.subs[address], ch)
	return ch
}

// Close closes all subscriber channels.
func (m *Messenger) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subs = make(map[string][]chan []byte)
}
