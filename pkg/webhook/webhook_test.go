package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/notifyq/pkg/notification"
	"github.com/notifyhub/notifyq/pkg/webhook"
)

func webhookPayload(endpoint string) notification.Payload {
	return notification.Payload{
		UserID:    "user-1",
		Type:      "order.shipped",
		Title:     "Order shipped",
		Message:   "Your order is on the way.",
		Channel:   notification.ChannelWebhook,
		Recipient: endpoint,
	}
}

func TestDeliverer_Deliver(t *testing.T) {
	t.Parallel()

	t.Run("posts signed json", func(t *testing.T) {
		t.Parallel()

		secret := "whsec_test"
		received := make(chan []byte, 1)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			sig, err := webhook.FromHeader(r.Header)
			require.NoError(t, err)
			require.NotEmpty(t, sig.ID)
			require.NoError(t, webhook.VerifySignature(secret, body, sig, time.Minute))

			received <- body
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		deliverer := webhook.NewDeliverer(webhook.WithSignature(secret))
		require.NoError(t, deliverer.Deliver(context.Background(), webhookPayload(server.URL)))

		body := <-received
		assert.Contains(t, string(body), `"order.shipped"`)
		assert.Contains(t, string(body), `"Order shipped"`)
	})

	t.Run("client error is terminal", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unknown endpoint", http.StatusNotFound)
		}))
		defer server.Close()

		deliverer := webhook.NewDeliverer()
		err := deliverer.Deliver(context.Background(), webhookPayload(server.URL))
		require.Error(t, err)
		assert.True(t, notification.IsTerminal(err))
		assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	})

	t.Run("rate limit response is retryable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		deliverer := webhook.NewDeliverer()
		err := deliverer.Deliver(context.Background(), webhookPayload(server.URL))
		require.Error(t, err)
		assert.False(t, notification.IsTerminal(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "database down", http.StatusInternalServerError)
		}))
		defer server.Close()

		deliverer := webhook.NewDeliverer()
		err := deliverer.Deliver(context.Background(), webhookPayload(server.URL))
		require.Error(t, err)
		assert.False(t, notification.IsTerminal(err))
		assert.Contains(t, err.Error(), "database down")
	})

	t.Run("invalid endpoint is terminal", func(t *testing.T) {
		t.Parallel()

		deliverer := webhook.NewDeliverer()

		for _, endpoint := range []string{"", "ftp://example.com/hook", "http://"} {
			err := deliverer.Deliver(context.Background(), webhookPayload(endpoint))
			require.Error(t, err, endpoint)
			assert.True(t, notification.IsTerminal(err), endpoint)
			assert.ErrorIs(t, err, webhook.ErrInvalidURL, endpoint)
		}
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "v1", r.Header.Get("X-Api-Version"))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		deliverer := webhook.NewDeliverer(webhook.WithHeader("X-Api-Version", "v1"))
		assert.NoError(t, deliverer.Deliver(context.Background(), webhookPayload(server.URL)))
	})
}

func TestDeliverer_CircuitBreaker(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cb := webhook.NewCircuitBreaker(2, 1, time.Hour)
	deliverer := webhook.NewDeliverer(webhook.WithCircuitBreaker(cb))
	payload := webhookPayload(server.URL)

	// Two failures trip the breaker.
	require.Error(t, deliverer.Deliver(context.Background(), payload))
	require.Error(t, deliverer.Deliver(context.Background(), payload))
	assert.Equal(t, webhook.CircuitOpen, deliverer.CircuitState())

	// Open circuit fails fast without touching the endpoint.
	err := deliverer.Deliver(context.Background(), payload)
	assert.True(t, webhook.IsCircuitOpen(err))
	assert.False(t, notification.IsTerminal(err), "circuit open must stay retryable")
}

func TestSignPayload_RoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"test"}`)

	headers, err := webhook.SignPayload("secret", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, headers.Signature)
	assert.NotEmpty(t, headers.ID)

	require.NoError(t, webhook.VerifySignature("secret", payload, headers, time.Minute))

	// Tampered payload fails verification.
	assert.Error(t, webhook.VerifySignature("secret", []byte(`{"type":"evil"}`), headers, time.Minute))
	// Wrong secret fails verification.
	assert.Error(t, webhook.VerifySignature("other", payload, headers, time.Minute))
}
