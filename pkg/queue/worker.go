package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notifyq/pkg/backoff"
	"github.com/notifyhub/notifyq/pkg/logger"
	"github.com/notifyhub/notifyq/pkg/notification"
	"github.com/notifyhub/notifyq/pkg/ratelimiter"
)

// Worker claims ready jobs and delivers their notifications through the
// channel registry. Concurrency is bounded by a semaphore, throughput by a
// token bucket; claimed jobs hold a lock that the scheduler reaps if the
// worker dies mid-delivery.
type Worker struct {
	storage      Storage
	registry     *notification.Registry
	workerID     uuid.UUID
	sem          chan struct{}
	limiter      *ratelimiter.Bucket
	limiterStore *ratelimiter.MemoryStore
	backoff      backoff.Strategy
	events       Events
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopMu       sync.Mutex // Protects stopping state and WaitGroup operations

	// Configuration
	pollInterval    time.Duration
	lockTimeout     time.Duration
	deliverTimeout  time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
	paused   atomic.Bool
	running  atomic.Bool
}

// NewWorker creates a worker over the given storage and channel registry.
func NewWorker(storage Storage, registry *notification.Registry, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	options := &workerOptions{
		concurrency:     5,
		pollInterval:    200 * time.Millisecond,
		lockTimeout:     time.Minute,
		deliverTimeout:  30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		rateLimit:       ratelimiter.Config{Capacity: 10, RefillRate: 10, RefillInterval: time.Second},
		backoff:         backoff.Default(),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	limiterStore := ratelimiter.NewMemoryStore()
	limiter, err := ratelimiter.NewBucket(limiterStore, options.rateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	return &Worker{
		storage:         storage,
		registry:        registry,
		workerID:        uuid.New(),
		sem:             make(chan struct{}, options.concurrency),
		limiter:         limiter,
		limiterStore:    limiterStore,
		backoff:         options.backoff,
		events:          options.events,
		pollInterval:    options.pollInterval,
		lockTimeout:     options.lockTimeout,
		deliverTimeout:  options.deliverTimeout,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
	}, nil
}

// Start begins claiming and delivering jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	w.running.Store(true)

	go w.run()

	w.logger.Info("worker started",
		logger.WorkerID(w.workerID),
		slog.Int("concurrency", cap(w.sem)),
		slog.Duration("poll_interval", w.pollInterval))

	return nil
}

// Stop gracefully shuts down the worker, waiting up to the shutdown
// timeout for in-flight deliveries to finish. Deliveries still running
// after that are abandoned and later reaped via their expired locks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	// Use stopMu to synchronize with run() goroutine
	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for in-flight deliveries",
		logger.WorkerID(w.workerID))

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped", logger.WorkerID(w.workerID))
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("worker shutdown timed out, abandoning in-flight deliveries",
			logger.WorkerID(w.workerID),
			slog.Duration("timeout", w.shutdownTimeout))
	}

	w.running.Store(false)
	_ = w.limiterStore.Close()

	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// Pause stops claiming new jobs without interrupting in-flight deliveries.
func (w *Worker) Pause() {
	w.paused.Store(true)
	w.logger.Info("worker paused", logger.WorkerID(w.workerID))
}

// Resume restarts claiming after a Pause.
func (w *Worker) Resume() {
	w.paused.Store(false)
	w.logger.Info("worker resumed", logger.WorkerID(w.workerID))
}

// IsPaused reports whether claiming is paused.
func (w *Worker) IsPaused() bool {
	return w.paused.Load()
}

// IsRunning reports whether the worker has been started and not stopped.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

// run is the main claim loop.
func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.paused.Load() {
				continue
			}

			// Reserve a concurrency slot before spending rate budget so
			// a full pool does not burn tokens on ticks that cannot
			// start a job anyway.
			select {
			case w.sem <- struct{}{}:
			default:
				continue
			}

			// Rate limit is checked before claiming so a denied tick
			// leaves the job in the queue for the next window.
			result, err := w.limiter.Allow(w.ctx, w.workerID.String())
			if err != nil || !result.Allowed() {
				<-w.sem
				continue
			}

			// Use stopMu to ensure we don't add to WaitGroup after Stop() starts
			w.stopMu.Lock()
			if w.stopping.Load() {
				w.stopMu.Unlock()
				<-w.sem
				return
			}
			w.wg.Add(1)
			w.stopMu.Unlock()

			go func() {
				defer w.wg.Done()
				defer func() { <-w.sem }()

				if err := w.claimAndDeliver(); err != nil {
					w.logger.Error("failed to process job",
						logger.WorkerID(w.workerID),
						logger.Error(err))
				}
			}()
		}
	}
}

// claimAndDeliver claims the next ready job and runs delivery.
func (w *Worker) claimAndDeliver() error {
	job, err := w.storage.ClaimJob(w.ctx, w.workerID, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoJobToClaim) {
			// No job actually started; give the reserved token back so
			// idle polls do not eat into the rate budget.
			_ = w.limiter.Refund(context.WithoutCancel(w.ctx), w.workerID.String())
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	w.logger.Debug("claimed job",
		logger.WorkerID(w.workerID),
		logger.JobID(job.ID),
		logger.Attempt(int(job.AttemptsMade)))

	return w.deliver(job)
}

// deliver decodes the payload, resolves the channel deliverer and executes
// the attempt with timeout and panic protection.
func (w *Worker) deliver(job *Job) (retErr error) {
	start := time.Now()

	// Outcomes are recorded on a context detached from the worker
	// lifecycle: Stop cancels w.ctx while deliveries are still in flight,
	// and a delivery that finished must still commit its result.
	opCtx := context.WithoutCancel(w.ctx)

	var payload notification.Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// A payload that no longer decodes will never decode; fail for good.
		return w.handleFailure(opCtx, job, payload.Channel, notification.Terminal(fmt.Errorf("failed to decode payload: %w", err)), time.Since(start))
	}

	emit(opCtx, w.events, Event{
		Type:    EventActive,
		JobID:   job.ID,
		Channel: payload.Channel,
		Attempt: int(job.AttemptsMade),
	})

	deliverer, err := w.registry.Resolve(payload.Channel)
	if err != nil {
		// No deliverer means every retry would fail the same way.
		return w.handleFailure(opCtx, job, payload.Channel, notification.Terminal(err), time.Since(start))
	}

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in deliverer: %v", r)
			w.logger.Error("deliverer panicked",
				logger.WorkerID(w.workerID),
				logger.JobID(job.ID),
				logger.Channel(string(payload.Channel)),
				slog.Any("panic", r))
			_ = w.handleFailure(opCtx, job, payload.Channel, retErr, time.Since(start))
		}
	}()

	// The timeout context is detached from the worker lifecycle so a
	// graceful shutdown lets in-flight deliveries finish.
	ctx, cancel := context.WithTimeout(context.Background(), w.deliverTimeout)
	defer cancel()

	if err := deliverer.Deliver(ctx, payload); err != nil {
		return w.handleFailure(opCtx, job, payload.Channel, err, time.Since(start))
	}

	return w.handleSuccess(opCtx, job, payload, time.Since(start))
}

// handleFailure classifies the delivery error and either retries with
// backoff or marks the job permanently failed.
func (w *Worker) handleFailure(ctx context.Context, job *Job, channel notification.Channel, execErr error, duration time.Duration) error {
	terminal := notification.IsTerminal(execErr)
	exhausted := job.AttemptsMade >= job.MaxAttempts

	w.logger.Error("delivery attempt failed",
		logger.WorkerID(w.workerID),
		logger.JobID(job.ID),
		logger.Channel(string(channel)),
		logger.Attempt(int(job.AttemptsMade)),
		slog.Int("max_attempts", int(job.MaxAttempts)),
		slog.Bool("terminal", terminal),
		slog.Duration("duration", duration),
		logger.Error(execErr))

	if terminal || exhausted {
		if err := w.storage.FailJob(ctx, job.ID, execErr.Error()); err != nil {
			return fmt.Errorf("failed to mark job %s as failed: %w", job.ID, err)
		}

		emit(ctx, w.events, Event{
			Type:    EventFailed,
			JobID:   job.ID,
			Channel: channel,
			Attempt: int(job.AttemptsMade),
			Error:   execErr.Error(),
		})

		w.logger.Warn("job permanently failed",
			logger.WorkerID(w.workerID),
			logger.JobID(job.ID),
			logger.Channel(string(channel)),
			logger.Attempt(int(job.AttemptsMade)))

		return nil
	}

	nextAt := time.Now().Add(w.backoff.Delay(int(job.AttemptsMade)))
	if err := w.storage.RetryJob(ctx, job.ID, nextAt, execErr.Error()); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
	}

	emit(ctx, w.events, Event{
		Type:          EventRetried,
		JobID:         job.ID,
		Channel:       channel,
		Attempt:       int(job.AttemptsMade),
		Error:         execErr.Error(),
		NextAttemptAt: &nextAt,
	})

	return nil
}

// handleSuccess records a completed delivery.
func (w *Worker) handleSuccess(ctx context.Context, job *Job, payload notification.Payload, duration time.Duration) error {
	if err := w.storage.CompleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}

	emit(ctx, w.events, Event{
		Type:    EventCompleted,
		JobID:   job.ID,
		Channel: payload.Channel,
		Attempt: int(job.AttemptsMade),
		Result: &notification.Result{
			Channel:     payload.Channel,
			Recipient:   payload.Recipient,
			DeliveredAt: time.Now(),
		},
	})

	w.logger.Info("notification delivered",
		logger.WorkerID(w.workerID),
		logger.JobID(job.ID),
		logger.Channel(string(payload.Channel)),
		logger.Attempt(int(job.AttemptsMade)),
		slog.Duration("duration", duration))

	return nil
}

// WorkerInfo returns identifying information about the worker process.
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
