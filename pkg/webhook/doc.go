// Package webhook implements the webhook notification channel: signed JSON
// POST delivery with circuit breaker protection.
//
// The Deliverer plugs into a notification.Registry. Each Deliver call is a
// single attempt; transient failures (network errors, timeouts, 5xx) bubble
// up as retryable errors that the queue reschedules with backoff, while
// client errors fail the job terminally.
//
//	deliverer := webhook.NewDeliverer(
//	    webhook.WithSignature(secret),
//	    webhook.WithCircuitBreaker(webhook.NewCircuitBreaker(5, 2, 30*time.Second)),
//	)
//	registry.Register(notification.ChannelWebhook, deliverer)
//
// Receivers verify authenticity with VerifySignature, which checks the
// HMAC-SHA256 signature and rejects stale timestamps to prevent replays.
package webhook
