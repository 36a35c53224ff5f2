package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/notification"
	"github.com/notifyhub/notifyq/pkg/queue"
)

// eventCollector drains a subscription into a slice for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []queue.Event
}

func collectEvents(t *testing.T, events queue.Events) *eventCollector {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub := events.Subscribe(ctx)
	c := &eventCollector{}
	go func() {
		for msg := range sub.Receive(ctx) {
			c.mu.Lock()
			c.events = append(c.events, msg.Data)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *eventCollector) types() []queue.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]queue.EventType, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func (c *eventCollector) find(typ queue.EventType) (queue.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, evt := range c.events {
		if evt.Type == typ {
			return evt, true
		}
	}
	return queue.Event{}, false
}

func TestEvents_SuccessfulDeliveryLifecycle(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	events := queue.NewEvents(64)
	t.Cleanup(func() { _ = events.Close() })
	collector := collectEvents(t, events)

	registry := newTestRegistry(notification.NoopDeliverer{})

	enqueuer, err := queue.NewEnqueuer(storage, queue.WithEnqueuerEvents(events))
	require.NoError(t, err)

	worker, err := queue.NewWorker(storage, registry,
		fastWorkerOptions(queue.WithWorkerEvents(events))...)
	require.NoError(t, err)
	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := enqueuer.Enqueue(context.Background(), validPayload())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := collector.find(queue.EventCompleted)
		return ok
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t,
		[]queue.EventType{queue.EventEnqueued, queue.EventActive, queue.EventCompleted},
		collector.types())

	completed, _ := collector.find(queue.EventCompleted)
	assert.Equal(t, job.ID, completed.JobID)
	assert.Equal(t, notification.ChannelEmail, completed.Channel)
	assert.Equal(t, 1, completed.Attempt)
	require.NotNil(t, completed.Result)
	assert.Equal(t, "user@example.com", completed.Result.Recipient)
	assert.False(t, completed.At.IsZero())
}

func TestEvents_RetriedThenFailedLifecycle(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	events := queue.NewEvents(64)
	t.Cleanup(func() { _ = events.Close() })
	collector := collectEvents(t, events)

	deliverer := &recordingDeliverer{failures: []error{
		errors.New("first failure"),
		errors.New("second failure"),
	}}
	registry := newTestRegistry(deliverer)

	enqueuer, err := queue.NewEnqueuer(storage, queue.WithEnqueuerEvents(events))
	require.NoError(t, err)

	worker, err := queue.NewWorker(storage, registry,
		fastWorkerOptions(queue.WithWorkerEvents(events))...)
	require.NoError(t, err)
	scheduler, err := queue.NewScheduler(storage,
		queue.WithTickInterval(10*time.Millisecond),
		queue.WithSchedulerEvents(events))
	require.NoError(t, err)

	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })
	require.NoError(t, scheduler.Start(context.Background()))
	t.Cleanup(func() { _ = scheduler.Stop() })

	_, err = enqueuer.Enqueue(context.Background(), validPayload(), queue.WithMaxAttempts(2))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := collector.find(queue.EventFailed)
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	retried, ok := collector.find(queue.EventRetried)
	require.True(t, ok)
	assert.Equal(t, 1, retried.Attempt)
	assert.Contains(t, retried.Error, "first failure")
	require.NotNil(t, retried.NextAttemptAt)
	assert.True(t, retried.NextAttemptAt.After(retried.At.Add(-time.Second)))

	promoted, ok := collector.find(queue.EventPromoted)
	require.True(t, ok)
	assert.Equal(t, notification.ChannelEmail, promoted.Channel)

	failed, _ := collector.find(queue.EventFailed)
	assert.Equal(t, 2, failed.Attempt)
	assert.Contains(t, failed.Error, "second failure")
}
