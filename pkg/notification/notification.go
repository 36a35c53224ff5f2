package notification

import (
	"fmt"
	"time"
)

// Channel identifies the transport a notification is delivered over.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// Valid reports whether the channel is one of the known transports.
// The registry may carry additional custom channels; Valid only covers the
// built-in set and is used for admission-time validation hints.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWebhook:
		return true
	}
	return false
}

// Payload is the notification content carried by a queue job. It is
// immutable once enqueued; the queue treats it as opaque bytes and only the
// deliverer interprets it.
type Payload struct {
	UserID    string            `json:"user_id"`
	Type      string            `json:"type,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Channel   Channel           `json:"channel"`
	Recipient string            `json:"recipient"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields every channel requires. It is called at
// admission time so malformed payloads never reach the storage.
func (p Payload) Validate() error {
	var missing []string
	if p.UserID == "" {
		missing = append(missing, "user_id")
	}
	if p.Title == "" {
		missing = append(missing, "title")
	}
	if p.Message == "" {
		missing = append(missing, "message")
	}
	if p.Recipient == "" {
		missing = append(missing, "recipient")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %v", ErrInvalidPayload, missing)
	}

	if p.Channel == "" {
		return fmt.Errorf("%w: channel is required", ErrInvalidPayload)
	}
	if !p.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, p.Channel)
	}

	return nil
}

// Result describes a successful delivery, mirroring what the deliverer
// reported back to the dispatcher.
type Result struct {
	Channel     Channel   `json:"channel"`
	Recipient   string    `json:"recipient"`
	DeliveredAt time.Time `json:"delivered_at"`
}
