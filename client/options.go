package client

import (
	"log/slog"
	"net/http"

	"github.com/xraph/processes/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry sets how often and how far apart idempotent requests are
// retried. maxRetries of 0 disables retries.
func WithRetry(maxRetries int, s backoff.Strategy) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retry = s
	}
}

// WithPollStrategy sets the delays between status polls in Wait.
func WithPollStrategy(s backoff.Strategy) Option {
	return func(c *Client) { c.poll = s }
}
