package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/processes"
	"github.com/xraph/processes/api"
	"github.com/xraph/processes/backoff"
	"github.com/xraph/processes/client"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/orchestrator"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/process/builtin"
	"github.com/xraph/processes/store/memory"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupClientTest starts an orchestrator over builtin processes behind an
// httptest server and returns a client for it.
func setupClientTest(t *testing.T) *client.Client {
	t.Helper()

	reg := process.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		t.Fatalf("builtin.Register: %v", err)
	}
	cfg := processes.DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.SyncTimeout = 2 * time.Second
	cfg.DismissGrace = time.Second
	cfg.GCSchedule = "@every 1h"

	orch, err := orchestrator.New(memory.New(), reg,
		orchestrator.WithConfig(cfg),
		orchestrator.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ts := httptest.NewServer(api.New(orch, api.WithLogger(testLogger())).Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
	})

	c, err := client.New(ts.URL,
		client.WithLogger(testLogger()),
		client.WithPollStrategy(backoff.Constant(10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

// ── Execution ──────────────────────────────────────────

func TestClient_ExecuteSync(t *testing.T) {
	c := setupClientTest(t)

	exec, err := c.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Async {
		t.Fatal("expected a synchronous answer")
	}
	if exec.Job.Status != job.StatusSuccessful {
		t.Fatalf("status: got %s, want successful", exec.Job.Status)
	}
	if exec.Outputs["message"] != "hello" {
		t.Fatalf("outputs: got %v", exec.Outputs)
	}
}

func TestClient_ExecuteSyncFailure(t *testing.T) {
	c := setupClientTest(t)

	exec, err := c.Execute(context.Background(), "fail", map[string]any{"message": "nope"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.Job.Status != job.StatusFailed {
		t.Fatalf("status: got %s, want failed", exec.Job.Status)
	}
	if exec.Outputs != nil {
		t.Fatalf("failed job has outputs: %v", exec.Outputs)
	}
	if exec.Job.Message != "nope" {
		t.Fatalf("message: got %q, want nope", exec.Job.Message)
	}
}

func TestClient_ExecuteAsyncWaitResults(t *testing.T) {
	c := setupClientTest(t)
	ctx := context.Background()

	exec, err := c.Execute(ctx, "sleep", map[string]any{"milliseconds": 50}, client.Async())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !exec.Async || exec.Location == "" {
		t.Fatalf("expected async answer with location, got %+v", exec)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := c.Wait(waitCtx, exec.Job.JobID)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status.Status != job.StatusSuccessful {
		t.Fatalf("status: got %s, want successful", status.Status)
	}

	out, err := c.Results(ctx, status.JobID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if out["slept"] != float64(50) {
		t.Fatalf("outputs: got %v", out)
	}
}

func TestClient_WaitForFallsBackToAsync(t *testing.T) {
	c := setupClientTest(t)
	ctx := context.Background()

	exec, err := c.Execute(ctx, "sleep", map[string]any{"milliseconds": 3000}, client.WaitFor(time.Second))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !exec.Async {
		t.Fatal("expected async fallback")
	}

	doc, err := c.Dismiss(ctx, exec.Job.JobID)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if doc.Status != job.StatusDismissed {
		t.Fatalf("status: got %s, want dismissed", doc.Status)
	}

	if _, err := c.Dismiss(ctx, exec.Job.JobID); !errors.Is(err, processes.ErrJobFinished) {
		t.Fatalf("second Dismiss: got %v, want ErrJobFinished", err)
	}
}

// ── Errors ─────────────────────────────────────────────

func TestClient_ErrorsMatchSentinels(t *testing.T) {
	c := setupClientTest(t)
	ctx := context.Background()

	if _, err := c.GetJob(ctx, id.NewJobID().String()); !errors.Is(err, processes.ErrJobNotFound) {
		t.Fatalf("GetJob unknown: got %v, want ErrJobNotFound", err)
	}
	if _, err := c.Execute(ctx, "missing", nil); !errors.Is(err, processes.ErrProcessNotFound) {
		t.Fatalf("Execute unknown process: got %v, want ErrProcessNotFound", err)
	}
	_, err := c.Execute(ctx, "echo", map[string]any{})
	if !errors.Is(err, processes.ErrValidation) {
		t.Fatalf("Execute invalid inputs: got %v, want ErrValidation", err)
	}
	e, ok := client.AsError(err)
	if !ok || e.Status != http.StatusBadRequest {
		t.Fatalf("AsError: got %+v, %v", e, ok)
	}

	exec, err := c.Execute(ctx, "sleep", map[string]any{"milliseconds": 3000}, client.Async())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := c.Results(ctx, exec.Job.JobID); !errors.Is(err, processes.ErrNotReady) {
		t.Fatalf("Results: got %v, want ErrNotReady", err)
	}
	if _, err := c.Dismiss(ctx, exec.Job.JobID); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
}

// ── Listing and discovery ──────────────────────────────

func TestClient_ListJobs(t *testing.T) {
	c := setupClientTest(t)
	ctx := context.Background()

	for range 3 {
		if _, err := c.Execute(ctx, "noop", nil); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	page, err := c.ListJobs(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if page.NumberMatched != 3 || len(page.Jobs) != 2 {
		t.Fatalf("page: matched=%d len=%d, want 3 and 2", page.NumberMatched, len(page.Jobs))
	}

	rest, err := c.ListJobs(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(rest.Jobs) != 1 {
		t.Fatalf("second page: got %d jobs, want 1", len(rest.Jobs))
	}
}

func TestClient_Processes(t *testing.T) {
	c := setupClientTest(t)
	ctx := context.Background()

	list, err := c.Processes(ctx)
	if err != nil {
		t.Fatalf("Processes: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("processes: got %d, want 4", len(list))
	}

	doc, err := c.Process(ctx, "sleep")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := doc.Inputs["milliseconds"]; !ok {
		t.Fatalf("sleep inputs: got %v", doc.Inputs)
	}
}

// ── Transport ──────────────────────────────────────────

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processes":[{"id":"echo","version":"1.0.0","links":[]}],"links":[]}`))
	}))
	defer ts.Close()

	c, err := client.New(ts.URL,
		client.WithToken("secret"),
		client.WithLogger(testLogger()),
		client.WithRetry(3, backoff.Constant(time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	list, err := c.Processes(context.Background())
	if err != nil {
		t.Fatalf("Processes: %v", err)
	}
	if len(list) != 1 || list[0].ID != "echo" {
		t.Fatalf("processes: got %+v", list)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls: got %d, want 3", got)
	}
}

func TestClient_DoesNotRetryExecute(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c, err := client.New(ts.URL,
		client.WithLogger(testLogger()),
		client.WithRetry(3, backoff.Constant(time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	_, err = c.Execute(context.Background(), "echo", nil)
	e, ok := client.AsError(err)
	if !ok || e.Status != http.StatusServiceUnavailable {
		t.Fatalf("Execute: got %v, want 503 error", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls: got %d, want 1", got)
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := client.New("ftp://example.com"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
