package process_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/processes"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

type bufferInput struct {
	Distance float64 `json:"distance"`
	Units    string  `json:"units"`
}

func bufferDescription() process.Description {
	return process.Description{
		ID:      "buffer",
		Version: "1.0.0",
		Inputs: map[string]process.InputDescription{
			"distance": {Schema: json.RawMessage(`{"type":"number","minimum":0}`), MinOccurs: 1},
			"units":    {Schema: json.RawMessage(`{"type":"string","enum":["m","km"]}`)},
		},
	}
}

func TestRegistry_RegisterDefinition(t *testing.T) {
	r := process.NewRegistry()

	var got bufferInput
	def := process.NewDefinition(bufferDescription(), func(_ context.Context, in bufferInput) (result.Outputs, error) {
		got = in
		return result.Outputs{"ok": true}, nil
	})
	if err := process.RegisterDefinition(r, def); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, ok := r.Get("buffer")
	if !ok {
		t.Fatal("expected process to be registered")
	}
	out, err := p.Executor.Execute(context.Background(), json.RawMessage(`{"distance":12.5,"units":"km"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Distance != 12.5 || got.Units != "km" {
		t.Errorf("decoded inputs = %+v", got)
	}
	if out["ok"] != true {
		t.Errorf("outputs = %v", out)
	}
}

func TestRegistry_InvalidJSONInputs(t *testing.T) {
	r := process.NewRegistry()
	_ = process.RegisterDefinition(r, process.NewDefinition(bufferDescription(), func(_ context.Context, _ bufferInput) (result.Outputs, error) {
		t.Fatal("handler should not be called with invalid JSON")
		return nil, nil
	}))

	p, _ := r.Get("buffer")
	if _, err := p.Executor.Execute(context.Background(), json.RawMessage(`{invalid`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := process.NewRegistry()
	if _, err := r.Lookup("missing"); !errors.Is(err, processes.ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
}

func TestRegistry_RegisterRejectsBadDefinitions(t *testing.T) {
	r := process.NewRegistry()
	noop := process.ExecutorFunc(func(context.Context, json.RawMessage) (result.Outputs, error) { return nil, nil })

	if err := r.Register(process.Description{}, noop); err == nil {
		t.Error("expected error for empty id")
	}
	if err := r.Register(process.Description{ID: "x"}, nil); err == nil {
		t.Error("expected error for nil executor")
	}
	bad := process.Description{
		ID:     "bad-schema",
		Inputs: map[string]process.InputDescription{"a": {Schema: json.RawMessage(`{"type":42}`)}},
	}
	if err := r.Register(bad, noop); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := process.NewRegistry()
	noop := process.ExecutorFunc(func(context.Context, json.RawMessage) (result.Outputs, error) { return nil, nil })
	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(process.Description{ID: name}, noop); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 processes, got %d", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %q, want %q", i, list[i].ID, want)
		}
	}
}

func TestDescription_ResolveMode(t *testing.T) {
	both := process.Description{}
	if got := both.ResolveMode(job.ModeAsync); got != job.ModeAsync {
		t.Errorf("both: async pref → %s", got)
	}
	if got := both.ResolveMode(""); got != job.ModeSync {
		t.Errorf("both: no pref → %s", got)
	}

	asyncOnly := process.Description{JobControlOptions: []process.JobControl{process.AsyncExecute}}
	if got := asyncOnly.ResolveMode(job.ModeSync); got != job.ModeAsync {
		t.Errorf("async-only: sync pref → %s", got)
	}

	syncOnly := process.Description{JobControlOptions: []process.JobControl{process.SyncExecute}}
	if got := syncOnly.ResolveMode(job.ModeAsync); got != job.ModeSync {
		t.Errorf("sync-only: async pref → %s", got)
	}
	if syncOnly.Allows(process.Dismiss) {
		t.Error("sync-only should not allow dismiss")
	}
}

func TestReportProgress(t *testing.T) {
	var gotPct int
	var gotMsg string
	ctx := process.WithJob(context.Background(), processes.ID{}, func(_ context.Context, pct int, msg string) {
		gotPct, gotMsg = pct, msg
	})

	process.ReportProgress(ctx, 150, "almost")
	if gotPct != 100 || gotMsg != "almost" {
		t.Fatalf("progress = %d %q, want 100 almost", gotPct, gotMsg)
	}

	// No sink installed: must not panic.
	process.ReportProgress(context.Background(), 10, "ignored")
}
