// Package kafka provides the Kafka-backed durability slot: every registry
// mutation is appended to a topic, keyed by identity so per-identity
// history stays ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
)

// Log appends change events to a Kafka topic.
type Log struct {
	client *kgo.Client
	topic  string
}

var _ ports.DurabilityLog = (*Log)(nil)

// New constructs a Kafka durability log. The client lifecycle is managed
// externally.
func New(client *kgo.Client, topic string) *Log {
	return &Log{client: client, topic: topic}
}

// Append produces one change event synchronously. The coordinator treats
// failures as log-and-continue, so a slow broker delays mutations only by
// the produce timeout, never fails them.
func (l *Log) Append(ctx context.Context, event models.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event %s: %w", event.EventID, err)
	}

	record := &kgo.Record{
		Topic: l.topic,
		Key:   []byte(event.Identity),
		Value: data,
	}
	if err := l.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce change event %s: %w", event.EventID, err)
	}
	return nil
}
