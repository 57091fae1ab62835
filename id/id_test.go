package id_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/xraph/processes/id"
)

func TestNewJobID_Prefix(t *testing.T) {
	j := id.NewJobID()
	if j.Prefix() != id.PrefixJob {
		t.Fatalf("prefix = %q, want %q", j.Prefix(), id.PrefixJob)
	}
	if !strings.HasPrefix(j.String(), "job_") {
		t.Fatalf("string = %q, want job_ prefix", j.String())
	}
}

func TestParseJobID_RejectsWorkerPrefix(t *testing.T) {
	w := id.NewWorkerID()
	if _, err := id.ParseJobID(w.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "nonexistent-job-xyz-12345", "job_"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestIDs_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		s := id.NewJobID().String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate id %s", s)
		}
		seen[s] = struct{}{}
	}
}

func TestIDs_SortByCreation(t *testing.T) {
	first := id.NewJobID().String()
	time.Sleep(2 * time.Millisecond)
	second := id.NewJobID().String()

	ids := []string{second, first}
	sort.Strings(ids)
	if ids[0] != first {
		t.Fatalf("expected %s to sort before %s", first, second)
	}
}

func TestID_JSONRoundTrip(t *testing.T) {
	type doc struct {
		ID id.JobID `json:"id"`
	}
	in := doc{ID: id.NewJobID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID.String() != in.ID.String() {
		t.Fatalf("got %s, want %s", out.ID, in.ID)
	}
}

func TestID_NilScan(t *testing.T) {
	var i id.ID
	if err := i.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !i.IsNil() {
		t.Fatal("expected Nil after scanning NULL")
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Fatalf("Value() = %v, %v; want nil, nil", v, err)
	}
}
