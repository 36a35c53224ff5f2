package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/notifyhub/notifyq/pkg/logger"
	"github.com/notifyhub/notifyq/pkg/notification"
)

// Scheduler runs the queue's background maintenance: promoting delayed
// jobs whose time has come, reaping jobs whose worker lock expired, and
// sweeping old terminal jobs per the retention policy. Exactly one
// scheduler should run per queue; the storage operations are safe to run
// concurrently but a second scheduler only burns round-trips.
type Scheduler struct {
	storage   Storage
	retention RetentionPolicy
	events    Events
	mu        sync.Mutex

	tickInterval      time.Duration
	retentionInterval time.Duration
	logger            *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler over the given storage.
func NewScheduler(storage Storage, opts ...SchedulerOption) (*Scheduler, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	options := &schedulerOptions{
		tickInterval:      time.Second,
		retentionInterval: time.Minute,
		retention:         DefaultRetentionPolicy(),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		storage:           storage,
		retention:         options.retention,
		events:            options.events,
		tickInterval:      options.tickInterval,
		retentionInterval: options.retentionInterval,
		logger:            options.logger,
	}, nil
}

// Start begins the maintenance loops in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSchedulerAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run()

	s.logger.Info("scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Duration("retention_interval", s.retentionInterval))

	return nil
}

// Stop shuts the scheduler down and waits for the current tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrSchedulerNotStarted
	}

	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("scheduler stopped")

	return nil
}

// Run starts the scheduler and returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return s.Stop()
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	retention := time.NewTicker(s.retentionInterval)
	defer retention.Stop()

	// First tick runs immediately so restarts pick up overdue work
	// without waiting a full interval.
	s.tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		case <-retention.C:
			s.sweep()
		}
	}
}

// tick promotes due delayed jobs and reaps expired locks.
func (s *Scheduler) tick() {
	now := time.Now()

	promoted, err := s.storage.PromoteDueJobs(s.ctx, now)
	if err != nil {
		s.logger.Error("failed to promote delayed jobs", logger.Error(err))
	}
	for _, job := range promoted {
		emit(s.ctx, s.events, Event{
			Type:    EventPromoted,
			JobID:   job.ID,
			Channel: jobChannel(job),
		})
		s.logger.Debug("promoted delayed job", logger.JobID(job.ID))
	}

	stalled, err := s.storage.ReapStalledJobs(s.ctx, now)
	if err != nil {
		s.logger.Error("failed to reap stalled jobs", logger.Error(err))
	}
	for _, job := range stalled {
		emit(s.ctx, s.events, Event{
			Type:    EventStalled,
			JobID:   job.ID,
			Channel: jobChannel(job),
			Attempt: int(job.AttemptsMade),
		})
		s.logger.Warn("requeued stalled job",
			logger.JobID(job.ID),
			logger.Attempt(int(job.AttemptsMade)))
	}
}

// sweep applies the retention policy to terminal jobs.
func (s *Scheduler) sweep() {
	removed, err := s.storage.Cleanup(s.ctx, s.retention, time.Now())
	if err != nil {
		s.logger.Error("retention sweep failed", logger.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Debug("retention sweep removed jobs", slog.Int("removed", removed))
	}
}

// jobChannel extracts the channel from a stored payload for event
// reporting. Best effort; an undecodable payload yields an empty channel.
func jobChannel(job *Job) notification.Channel {
	var payload struct {
		Channel notification.Channel `json:"channel"`
	}
	_ = json.Unmarshal(job.Payload, &payload)
	return payload.Channel
}
