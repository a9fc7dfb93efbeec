package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close()

	sub := m.Subscribe("topic.a")
	other := m.Subscribe("topic.b")

	require.NoError(t, m.Publish(ctx, "topic.a", []byte("hello")))

	select {
	case got := <-sub:
		assert.Equal(t, []byte("hello"), got)
	default:
		t.Fatal("expected a buffered message on topic.a")
	}
	select {
	case <-other:
		t.Fatal("topic.b must not receive topic.a publishes")
	default:
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	m := New()
	defer m.Close()

	assert.NoError(t, m.Publish(context.Background(), "nobody.listens", []byte("x")))
}

func TestPublishFullBufferDrops(t *testing.T) {
	ctx := context.Background()
	m := New()
	defer m.Close()

	sub := m.Subscribe("topic.full")
	for i := 0; i < defaultBuffer+10; i++ {
		require.NoError(t, m.Publish(ctx, "topic.full", []byte("x")))
	}

	assert.Len(t, sub, defaultBuffer, "overflow is dropped, not blocked on")
}

func TestPublishCancelledContext(t *testing.T) {
	m := New()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, m.Publish(ctx, "topic.a", []byte("x")))
}

func TestCloseClosesSubscribers(t *testing.T) {
	m := New()
	sub := m.Subscribe("topic.a")
	m.Close()

	_, open := <-sub
	assert.False(t, open)
}
