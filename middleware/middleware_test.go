package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/middleware"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

func ok(_ context.Context) (result.Outputs, error) { return result.Outputs{"ok": true}, nil }

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (result.Outputs, error) {
		order = append(order, "mw1-before")
		out, err := next(ctx)
		order = append(order, "mw1-after")
		return out, err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) (result.Outputs, error) {
		order = append(order, "mw2-before")
		out, err := next(ctx)
		order = append(order, "mw2-after")
		return out, err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &job.Job{ProcessID: "test", ID: id.NewJobID()}
	handler := func(_ context.Context) (result.Outputs, error) {
		order = append(order, "handler")
		return nil, nil
	}

	if _, err := chain(context.Background(), j, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_EmptyPassesOutputs(t *testing.T) {
	chain := middleware.Chain()
	out, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("outputs lost through empty chain: %v", out)
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) (result.Outputs, error) {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	_, err := chain(context.Background(), &job.Job{ID: id.NewJobID()}, func(_ context.Context) (result.Outputs, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	j := &job.Job{ProcessID: "panicky", ID: id.NewJobID()}

	out, err := mw(context.Background(), j, func(_ context.Context) (result.Outputs, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if out != nil {
		t.Fatal("outputs must be nil after a panic")
	}
	if got := err.Error(); got != "panic in process panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	out, err := mw(context.Background(), &job.Job{ProcessID: "normal", ID: id.NewJobID()}, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Fatal("handler outputs not returned")
	}
}

func TestLogging_Error(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	j := &job.Job{ProcessID: "log-test", ID: id.NewJobID(), Mode: job.ModeAsync}
	want := errors.New("fail")

	_, err := mw(context.Background(), j, func(_ context.Context) (result.Outputs, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_AppliesProcessDeadline(t *testing.T) {
	lookup := func(processID string) time.Duration {
		if processID == "slow" {
			return 20 * time.Millisecond
		}
		return 0
	}
	mw := middleware.Timeout(lookup, slog.Default())

	_, err := mw(context.Background(), &job.Job{ProcessID: "slow", ID: id.NewJobID()}, func(ctx context.Context) (result.Outputs, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	_, err = mw(context.Background(), &job.Job{ProcessID: "fast", ID: id.NewJobID()}, func(ctx context.Context) (result.Outputs, error) {
		if _, has := ctx.Deadline(); has {
			t.Error("unexpected deadline for process without timeout")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJobContext_InjectsJobAndProgress(t *testing.T) {
	j := &job.Job{ProcessID: "p", ID: id.NewJobID()}
	var reported int
	mw := middleware.JobContext(func(_ context.Context, pct int, _ string) { reported = pct })

	_, err := mw(context.Background(), j, func(ctx context.Context) (result.Outputs, error) {
		got, found := process.JobIDFromContext(ctx)
		if !found || got != j.ID {
			t.Errorf("job id in context = %v, want %v", got, j.ID)
		}
		process.ReportProgress(ctx, 40, "")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reported != 40 {
		t.Fatalf("reported = %d, want 40", reported)
	}
}
