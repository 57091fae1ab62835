package process_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/processes"
	"github.com/xraph/processes/process"
	"github.com/xraph/processes/result"
)

func registeredBuffer(t *testing.T) *process.Process {
	t.Helper()
	r := process.NewRegistry()
	noop := process.ExecutorFunc(func(context.Context, json.RawMessage) (result.Outputs, error) { return nil, nil })
	if err := r.Register(bufferDescription(), noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, _ := r.Get("buffer")
	return p
}

func TestValidate_Valid(t *testing.T) {
	p := registeredBuffer(t)
	if err := p.Validate(json.RawMessage(`{"distance": 3}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Validate(json.RawMessage(`{"distance": 3, "units": "m"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	p := registeredBuffer(t)
	err := p.Validate(json.RawMessage(`{"units": "m"}`))
	if !errors.Is(err, processes.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var ve *process.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestValidate_WrongType(t *testing.T) {
	p := registeredBuffer(t)
	err := p.Validate(json.RawMessage(`{"distance": "far"}`))
	var ve *process.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if ve.Input != "distance" {
		t.Errorf("Input = %q, want distance", ve.Input)
	}
}

func TestValidate_UnknownInput(t *testing.T) {
	p := registeredBuffer(t)
	if err := p.Validate(json.RawMessage(`{"distance": 1, "color": "red"}`)); !errors.Is(err, processes.ErrValidation) {
		t.Fatalf("expected ErrValidation for undeclared input, got %v", err)
	}
}

func TestValidate_NotAnObject(t *testing.T) {
	p := registeredBuffer(t)
	for _, in := range []string{`[1,2]`, `"x"`, `{bad`} {
		if err := p.Validate(json.RawMessage(in)); !errors.Is(err, processes.ErrValidation) {
			t.Errorf("Validate(%s): expected ErrValidation, got %v", in, err)
		}
	}
}

func TestValidate_EmptyInputsForNoInputProcess(t *testing.T) {
	r := process.NewRegistry()
	noop := process.ExecutorFunc(func(context.Context, json.RawMessage) (result.Outputs, error) { return nil, nil })
	if err := r.Register(process.Description{ID: "noop"}, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, _ := r.Get("noop")
	if err := p.Validate(nil); err != nil {
		t.Fatalf("nil inputs: %v", err)
	}
	if err := p.Validate(json.RawMessage(`{}`)); err != nil {
		t.Fatalf("empty object: %v", err)
	}
}
