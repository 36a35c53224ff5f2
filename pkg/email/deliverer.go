package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/notifyhub/notifyq/pkg/notification"
)

// metadata key that carries a pre-rendered HTML body. When absent the
// deliverer renders the plain-text message itself.
const metadataBodyHTML = "body_html"

// Deliverer adapts an EmailSender to the notification channel interface.
// The recipient becomes the To address, the title the subject, and the
// notification type the Postmark tag.
type Deliverer struct {
	sender EmailSender
}

// NewDeliverer creates an email channel deliverer backed by sender.
func NewDeliverer(sender EmailSender) (*Deliverer, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	return &Deliverer{sender: sender}, nil
}

// Deliver implements notification.Deliverer.
// Validation failures are terminal because the payload is immutable once
// enqueued; retrying the same malformed address cannot succeed.
func (d *Deliverer) Deliver(ctx context.Context, payload notification.Payload) error {
	params := SendEmailParams{
		SendTo:   payload.Recipient,
		Subject:  payload.Title,
		BodyHTML: renderBody(payload),
		Tag:      payload.Type,
	}
	if err := params.Validate(); err != nil {
		return notification.Terminal(err)
	}

	if err := d.sender.SendEmail(ctx, params); err != nil {
		if errors.Is(err, ErrInvalidParams) {
			return notification.Terminal(err)
		}
		return err
	}
	return nil
}

// renderBody picks the pre-rendered HTML body when the producer supplied
// one, otherwise escapes the plain-text message into minimal HTML.
func renderBody(p notification.Payload) string {
	if body, ok := p.Metadata[metadataBodyHTML]; ok && body != "" {
		return body
	}
	var b strings.Builder
	for _, line := range strings.Split(p.Message, "\n") {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}
