//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RedpandaContainer wraps a testcontainers Redpanda broker for Kafka
// protocol tests.
type RedpandaContainer struct {
	Container testcontainers.Container
	Broker    string
	Client    *kgo.Client
	Admin     *kadm.Client
}

// NewRedpandaContainer starts a new Redpanda container and connects a
// franz-go client to it.
func NewRedpandaContainer(t *testing.T, opts ...kgo.Opt) *RedpandaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "redpandadata/redpanda:v24.2.4")
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}

	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redpanda broker address: %v", err)
	}

	client, err := kgo.NewClient(append(opts, kgo.SeedBrokers(broker))...)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect kafka client: %v", err)
	}

	rc := &RedpandaContainer{
		Container: container,
		Broker:    broker,
		Client:    client,
		Admin:     kadm.NewClient(client),
	}

	t.Cleanup(func() {
		client.Close()
		_ = container.Terminate(context.Background())
	})

	return rc
}

// CreateTopic creates a topic with a single partition.
func (r *RedpandaContainer) CreateTopic(ctx context.Context, topic string) error {
	_, err := r.Admin.CreateTopic(ctx, 1, 1, nil, topic)
	return err
}
