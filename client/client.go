// Package client provides a Go client for a remote OGC API - Processes
// server such as the one served by package api.
//
// Usage:
//
//	c, err := client.New("https://api.example.com",
//	    client.WithToken("..."),
//	)
//
//	// Submit a job and wait for it.
//	exec, err := c.Execute(ctx, "echo", map[string]any{"message": "hi"}, client.Async())
//	status, err := c.Wait(ctx, exec.Job.JobID)
//	outputs, err := c.Results(ctx, status.JobID)
//
// Errors returned for exception documents are *Error values; they match
// the root package sentinels with errors.Is, so callers handle a remote
// processes.ErrJobNotFound the same way as a local one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/xraph/processes"
	"github.com/xraph/processes/api"
	"github.com/xraph/processes/backoff"
)

// Client talks to one server over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger *slog.Logger

	// Retries of idempotent requests.
	maxRetries int
	retry      backoff.Strategy

	// Delays between status polls in Wait.
	poll backoff.Strategy
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("processes/client: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("processes/client: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:       u,
		http:       http.DefaultClient,
		logger:     slog.Default(),
		maxRetries: 3,
		retry:      backoff.Default(),
		poll:       backoff.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Error is an exception document returned by the server.
type Error struct {
	api.Exception
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("processes/client: %d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("processes/client: %d %s", e.Status, e.Title)
}

// Is maps the exception onto the root package sentinel errors.
func (e *Error) Is(target error) bool {
	typ := e.Type[strings.LastIndex(e.Type, "/")+1:]
	switch target {
	case processes.ErrJobNotFound:
		return typ == "no-such-job"
	case processes.ErrProcessNotFound:
		return typ == "no-such-process"
	case processes.ErrNotReady:
		return typ == "result-not-ready"
	case processes.ErrGone:
		return typ == "job-gone"
	case processes.ErrJobFinished:
		return typ == "job-finished"
	case processes.ErrValidation:
		return e.Status == http.StatusBadRequest
	case processes.ErrConflict:
		return e.Status == http.StatusConflict || typ == "job-finished"
	}
	return false
}

// do sends a request, retrying transport failures and 502/503/504 on
// idempotent methods. The caller closes the response body.
func (c *Client) do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	target := c.base.String() + path
	idempotent := method != http.MethodPost

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx, c.retry, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("processes/client: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		retryable := idempotent && attempt < c.maxRetries
		switch {
		case err != nil:
			if !retryable || ctx.Err() != nil {
				return nil, fmt.Errorf("processes/client: %s %s: %w", method, path, err)
			}
			c.logger.Warn("request failed, retrying",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		case retryable && isTransient(resp.StatusCode):
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			c.logger.Warn("server unavailable, retrying",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.Int("status", resp.StatusCode),
			)
		default:
			return resp, nil
		}
	}
}

func isTransient(status int) bool {
	return status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

// decode reads a successful JSON body into v, or turns an error status
// into an *Error.
func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("processes/client: decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	e := &Error{}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &e.Exception); err != nil || e.Type == "" {
		e.Exception = api.Exception{
			Status: resp.StatusCode,
			Title:  http.StatusText(resp.StatusCode),
			Detail: strings.TrimSpace(string(data)),
		}
	}
	if e.Status == 0 {
		e.Status = resp.StatusCode
	}
	return e
}

// AsError returns the exception document behind err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
