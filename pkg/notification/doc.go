// Package notification defines the notification payload model, the
// Deliverer capability interface, and the channel registry the queue
// dispatcher resolves deliverers from.
//
// The queue core never talks to SMTP, SMS gateways, push services or
// webhook endpoints itself. It resolves a Deliverer for the job's channel
// and interprets the returned error: a TerminalError (or an unregistered
// channel) fails the job immediately, anything else is retried with
// backoff up to the job's attempt budget.
package notification
