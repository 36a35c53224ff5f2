package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/broadcast"
)

func TestMemoryBroadcaster_DeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[string](4)
	defer b.Close()

	ctx := context.Background()
	sub1 := b.Subscribe(ctx)
	sub2 := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"}))

	for _, sub := range []broadcast.Subscriber[string]{sub1, sub2} {
		select {
		case msg := <-sub.Receive(ctx):
			assert.Equal(t, "hello", msg.Data)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestMemoryBroadcaster_DropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx := context.Background()
	sub := b.Subscribe(ctx)

	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 1}))
	// Buffer is full now; this one is dropped instead of blocking.
	require.NoError(t, b.Broadcast(ctx, broadcast.Message[int]{Data: 2}))

	select {
	case msg := <-sub.Receive(ctx):
		assert.Equal(t, 1, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first message")
	}
}

func TestMemoryBroadcaster_SubscribeAfterClose(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	require.NoError(t, b.Close())

	sub := b.Subscribe(context.Background())
	_, ok := <-sub.Receive(context.Background())
	assert.False(t, ok, "subscriber channel must be closed")
}

func TestMemoryBroadcaster_ContextCancelCleansUp(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[int](1)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := b.Subscribe(ctx)
	cancel()

	// The subscription goroutine closes the channel once ctx is done.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Receive(context.Background()):
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
