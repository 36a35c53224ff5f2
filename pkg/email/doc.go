// Package email implements the email notification channel on top of a
// provider-agnostic sending interface.
//
// The package is built around the EmailSender interface, allowing providers
// to be swapped without changing application code. Two implementations are
// included:
//   - postmarkClient for production delivery with open and link tracking
//   - DevSender for local development (saves emails to disk)
//
// Deliverer adapts an EmailSender to the notification dispatch interface:
// the payload recipient becomes the To address, the title the subject, and
// the notification type the provider tag. Producers may supply a
// pre-rendered HTML body via the "body_html" metadata key; otherwise the
// plain-text message is escaped into minimal HTML.
//
// # Usage
//
//	cfg := email.Config{
//	    PostmarkServerToken:  "your-server-token",
//	    PostmarkAccountToken: "your-account-token",
//	    SenderEmail:          "noreply@example.com",
//	    SupportEmail:         "support@example.com",
//	}
//
//	sender, err := email.NewPostmarkClient(cfg)
//	if err != nil {
//	    // handle configuration error
//	}
//
//	deliverer, err := email.NewDeliverer(sender)
//	if err != nil {
//	    // handle configuration error
//	}
//	registry.Register(notification.ChannelEmail, deliverer)
//
// Development mode saves emails locally instead:
//
//	sender := email.NewDevSender("./email-output")
//
// # Error Handling
//
// Sentinel errors cover the common failure scenarios:
//   - ErrInvalidConfig: configuration validation failed
//   - ErrInvalidParams: email parameters validation failed
//   - ErrFailedToSendEmail: delivery failed
//
// Deliver distinguishes permanent failures from transient ones. Malformed
// recipients and hard-bounced addresses are reported as terminal so the
// queue fails the job without burning retry attempts; network and provider
// outages stay retryable.
package email
