package webhook

import "net/http"

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithSignature enables HMAC-SHA256 request signing with the given secret.
// Adds X-Webhook-Signature, X-Webhook-Timestamp, and X-Webhook-ID headers.
func WithSignature(secret string) Option {
	return func(d *Deliverer) {
		d.secret = secret
	}
}

// WithHeader adds a custom header to every request.
// Standard headers like Content-Type are set automatically.
func WithHeader(key, value string) Option {
	return func(d *Deliverer) {
		if key != "" && value != "" {
			if d.headers == nil {
				d.headers = make(map[string]string)
			}
			d.headers[key] = value
		}
	}
}

// WithHeaders adds multiple custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(d *Deliverer) {
		for k, v := range headers {
			WithHeader(k, v)(d)
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
// Useful for custom transports, proxies, or testing.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Deliverer) {
		if client != nil {
			d.client = client
		}
	}
}

// WithCircuitBreaker enables circuit breaker protection for the endpoint.
// Reuse one Deliverer per endpoint group so failure state accumulates.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(d *Deliverer) {
		d.circuit = cb
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(d *Deliverer) {
		if userAgent != "" {
			d.userAgent = userAgent
		}
	}
}
