// Package queue provides a storage-agnostic notification delivery queue
// with priority ordering, delayed scheduling, automatic retries, and
// rate-limited concurrent dispatch.
//
// The package is organised around three main components:
//
//   - Enqueuer  — validates payloads and admits jobs into the queue
//   - Worker    — claims ready jobs and delivers them through a channel Registry
//   - Scheduler — promotes due delayed jobs, requeues stalled ones, and
//     enforces the retention policy
//
// Components interact only through the Storage interface, so the queue can
// be backed by process memory (MemoryStorage), Redis (RedisStorage), or
// PostgreSQL (PostgresStorage) without touching the dispatch logic.
//
// # Job lifecycle
//
// A job is admitted as waiting (ready now) or delayed (ready later). The
// scheduler promotes due delayed jobs to waiting; a worker claims the
// waiting job with the lowest priority value, oldest first within a tier,
// and attempts delivery. Success completes the job; a retryable failure
// reschedules it with exponential backoff until the attempts budget runs
// out; terminal failures and exhausted budgets fail it for good. Claimed
// jobs hold a time-boxed lock, and the scheduler returns expired locks to
// the waiting state so a crashed worker cannot strand work.
//
// # Usage
//
//	registry := notification.NewRegistry()
//	registry.Register(notification.ChannelEmail, emailDeliverer)
//
//	storage := queue.NewMemoryStorage()
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	worker, _ := queue.NewWorker(storage, registry, queue.WithConcurrency(5))
//	scheduler, _ := queue.NewScheduler(storage)
//
//	g, ctx := errgroup.WithContext(context.Background())
//	g.Go(worker.Run(ctx))
//	g.Go(scheduler.Run(ctx))
//
//	job, _ := enqueuer.Enqueue(ctx, notification.Payload{
//	    UserID:    "user-1",
//	    Type:      "welcome",
//	    Title:     "Welcome!",
//	    Message:   "Thanks for signing up.",
//	    Channel:   notification.ChannelEmail,
//	    Recipient: "user@example.com",
//	}, queue.WithPriority(1))
//
// Subscribe to lifecycle events through a broadcaster:
//
//	events := queue.NewEvents(64)
//	worker, _ := queue.NewWorker(storage, registry, queue.WithWorkerEvents(events))
//	sub := events.Subscribe(ctx)
//	for msg := range sub.Receive(ctx) {
//	    log.Printf("job %s: %s", msg.Data.JobID, msg.Data.Type)
//	}
package queue
