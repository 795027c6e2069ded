// Package transport builds the HTTP clients used by network-backed
// resolvers. Clients are instrumented with OpenTelemetry; retry is opt-in,
// constant-backoff and limited to idempotent GETs so callers above the
// transport never retry.
package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 10 * time.Second

type config struct {
	timeout       time.Duration
	retryAttempts uint64
	retryInterval time.Duration
	base          http.RoundTripper
}

// Option configures a client.
type Option func(*config)

// WithTimeout overrides the default 10s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetry enables constant-backoff retries of GET requests on transport
// errors and 5xx responses. Zero attempts disables retrying.
func WithRetry(attempts uint64, interval time.Duration) Option {
	return func(c *config) {
		c.retryAttempts = attempts
		c.retryInterval = interval
	}
}

// WithBaseTransport replaces the underlying round tripper.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.base = rt
	}
}

// NewClient returns an instrumented HTTP client.
func NewClient(opts ...Option) *http.Client {
	cfg := config{
		timeout:       defaultTimeout,
		retryInterval: time.Second,
		base:          http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var rt http.RoundTripper = otelhttp.NewTransport(cfg.base)
	if cfg.retryAttempts > 0 {
		rt = &retryTransport{
			next:     rt,
			attempts: cfg.retryAttempts,
			interval: cfg.retryInterval,
		}
	}

	return &http.Client{
		Timeout:   cfg.timeout,
		Transport: rt,
	}
}

type retryTransport struct {
	next     http.RoundTripper
	attempts uint64
	interval time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	var resp *http.Response

	operation := func() error {
		r, err := t.next.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		// 5xx responses are retryable, everything else is a result
		if r.StatusCode >= http.StatusInternalServerError {
			r.Body.Close()
			return fmt.Errorf("upstream status %d", r.StatusCode)
		}

		resp = r

		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.interval), t.attempts))
	if err != nil {
		return nil, err
	}

	return resp, nil
}
