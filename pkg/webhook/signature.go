package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SignatureHeaders carries the authentication material attached to every
// signed delivery. The scheme follows the Stripe webhook format: the
// signature covers "timestamp.payload" so a captured request cannot be
// replayed outside its validity window.
type SignatureHeaders struct {
	Signature string
	Timestamp int64
	ID        string
}

// Headers returns the values keyed by their wire header names.
func (s SignatureHeaders) Headers() map[string]string {
	return map[string]string{
		"X-Webhook-Signature": s.Signature,
		"X-Webhook-Timestamp": strconv.FormatInt(s.Timestamp, 10),
		"X-Webhook-ID":        s.ID,
	}
}

func computeSignature(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", timestamp, payload)
	return hex.EncodeToString(h.Sum(nil))
}

// SignPayload signs payload with HMAC-SHA256 bound to the current time and
// a fresh delivery id. Receivers can use the id for idempotent processing.
func SignPayload(secret string, payload []byte) (SignatureHeaders, error) {
	if secret == "" {
		return SignatureHeaders{}, fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}

	timestamp := time.Now().Unix()
	return SignatureHeaders{
		Signature: computeSignature(secret, timestamp, payload),
		Timestamp: timestamp,
		ID:        uuid.New().String(),
	}, nil
}

// VerifySignature checks a received payload against its signature headers.
// A positive maxAge rejects signatures older than the window; timestamps
// more than a minute in the future are rejected regardless, tolerating
// ordinary clock skew.
func VerifySignature(secret string, payload []byte, headers SignatureHeaders, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfiguration)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload cannot be empty", ErrInvalidPayload)
	}
	if headers.Signature == "" {
		return fmt.Errorf("%w: signature is missing", ErrInvalidConfiguration)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(headers.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signature timestamp too old: %v", ErrInvalidConfiguration, age)
		}
		if age < -1*time.Minute {
			return fmt.Errorf("%w: signature timestamp is in the future", ErrInvalidConfiguration)
		}
	}

	expected := computeSignature(secret, headers.Timestamp, payload)
	// Constant-time comparison.
	if !hmac.Equal([]byte(expected), []byte(headers.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidConfiguration)
	}
	return nil
}

// FromHeader extracts signature headers from an incoming HTTP request, for
// receivers verifying deliveries.
func FromHeader(h http.Header) (SignatureHeaders, error) {
	sig := SignatureHeaders{
		Signature: h.Get("X-Webhook-Signature"),
		ID:        h.Get("X-Webhook-ID"),
	}
	if ts := h.Get("X-Webhook-Timestamp"); ts != "" {
		parsed, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return SignatureHeaders{}, fmt.Errorf("%w: invalid timestamp format", ErrInvalidConfiguration)
		}
		sig.Timestamp = parsed
	}
	if sig.Signature == "" || sig.Timestamp == 0 {
		return SignatureHeaders{}, fmt.Errorf("%w: missing required signature headers", ErrInvalidConfiguration)
	}
	return sig, nil
}
