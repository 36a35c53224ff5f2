package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notifyq/pkg/notification"
)

// Deliverer posts notifications to the recipient URL as signed JSON. It
// implements notification.Deliverer for the webhook channel. Each Deliver
// call is a single HTTP attempt; retry pacing belongs to the queue, which
// reschedules transient failures with backoff.
type Deliverer struct {
	client    *http.Client
	secret    string
	headers   map[string]string
	circuit   *CircuitBreaker
	userAgent string
}

// event is the wire format posted to the endpoint.
type event struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	UserID   string            `json:"user_id"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// NewDeliverer creates a webhook deliverer.
// Connection pooling is configured for high-throughput scenarios while
// keeping idle connections from leaking.
func NewDeliverer(opts ...Option) *Deliverer {
	d := &Deliverer{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: "notifyq-webhook/1.0",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver implements notification.Deliverer. The recipient is the endpoint
// URL. Malformed endpoints and client-error responses fail terminally;
// network errors, timeouts, and server errors are left retryable.
func (d *Deliverer) Deliver(ctx context.Context, p notification.Payload) error {
	if err := validateEndpoint(p.Recipient); err != nil {
		// A URL that does not parse today will not parse tomorrow.
		return notification.Terminal(err)
	}

	// Fail fast while the circuit protects a down endpoint. The queue
	// retries later, by which time the circuit may have recovered.
	if d.circuit != nil && !d.circuit.Allow() {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, p.Recipient)
	}

	payload, err := json.Marshal(event{
		ID:       uuid.NewString(),
		Type:     p.Type,
		UserID:   p.UserID,
		Title:    p.Title,
		Message:  p.Message,
		Metadata: p.Metadata,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return notification.Terminal(fmt.Errorf("failed to marshal webhook event: %w", err))
	}

	err = d.post(ctx, p.Recipient, payload)

	if d.circuit != nil {
		if err == nil {
			d.circuit.RecordSuccess()
		} else {
			d.circuit.RecordFailure()
		}
	}

	return err
}

func (d *Deliverer) post(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	if d.secret != "" {
		sigHeaders, err := SignPayload(d.secret, payload)
		if err != nil {
			return notification.Terminal(fmt.Errorf("failed to sign payload: %w", err))
		}
		for k, v := range sigHeaders.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// 64KB cap keeps a hostile endpoint from exhausting memory.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	errMsg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
	if len(body) > 0 {
		bodyStr := strings.ReplaceAll(string(body), "\n", " ")
		if len(bodyStr) > 200 {
			bodyStr = bodyStr[:200] + "..."
		}
		errMsg += ": " + bodyStr
	}

	if isPermanentStatus(resp.StatusCode) {
		return notification.Terminal(fmt.Errorf("%w: %s", ErrDeliveryFailed, errMsg))
	}
	return fmt.Errorf("%w: %s", ErrDeliveryFailed, errMsg)
}

// CircuitState exposes the breaker state for health reporting. Returns
// CircuitClosed when no breaker is configured.
func (d *Deliverer) CircuitState() CircuitState {
	if d.circuit == nil {
		return CircuitClosed
	}
	return d.circuit.State()
}

// validateEndpoint restricts targets to http and https to prevent the
// queue from being used for SSRF.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: URL is required", ErrInvalidURL)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: only http and https schemes are supported", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	return nil
}

// isPermanentStatus reports whether a response code cannot resolve with
// retries. Most 4xx codes are client mistakes; 408, 425 and 429 are
// timing or rate issues that a later attempt may clear.
func isPermanentStatus(statusCode int) bool {
	if statusCode < 400 || statusCode >= 500 {
		return false
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
