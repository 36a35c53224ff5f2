// Package broadcast implements a typed publish/subscribe primitive used to
// expose the queue's lifecycle events (enqueued, active, completed, retried,
// failed, stalled) to observers such as loggers, metric collectors or status
// endpoints.
//
// Publishing never blocks: subscribers that fall behind lose messages and
// are eventually detached, so observation can never stall job processing.
package broadcast
