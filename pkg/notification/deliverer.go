package notification

import (
	"context"
	"fmt"
	"sync"
)

// Deliverer performs the channel-specific send. Implementations are
// expected to honor ctx cancellation; the dispatcher bounds every call with
// a timeout. A returned TerminalError fails the job immediately; any other
// error is treated as transient and retried with backoff.
type Deliverer interface {
	Deliver(ctx context.Context, p Payload) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, p Payload) error

// Deliver implements Deliverer.
func (f DelivererFunc) Deliver(ctx context.Context, p Payload) error {
	return f(ctx, p)
}

// Registry maps channels to their Deliverer capability. New channels can be
// added without touching the dispatcher. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	deliverers map[Channel]Deliverer
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{deliverers: make(map[Channel]Deliverer)}
}

// Register binds a deliverer to a channel, replacing any previous binding.
// Nil deliverers are rejected.
func (r *Registry) Register(ch Channel, d Deliverer) error {
	if d == nil {
		return fmt.Errorf("%w: nil deliverer for channel %q", ErrInvalidChannel, ch)
	}
	if ch == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidChannel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.deliverers[ch] = d
	return nil
}

// Resolve returns the deliverer bound to ch, or ErrUnknownChannel when the
// channel has no capability registered.
func (r *Registry) Resolve(ch Channel) (Deliverer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deliverers[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return d, nil
}

// Channels returns the currently registered channels.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]Channel, 0, len(r.deliverers))
	for ch := range r.deliverers {
		channels = append(channels, ch)
	}
	return channels
}

// NoopDeliverer accepts every payload without doing anything.
// Useful for tests and local development.
type NoopDeliverer struct{}

// Deliver implements Deliverer and always succeeds.
func (NoopDeliverer) Deliver(_ context.Context, _ Payload) error {
	return nil
}
