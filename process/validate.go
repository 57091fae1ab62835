package process

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xraph/processes"
)

// ValidationError reports inputs that do not satisfy a process's declared
// schema. It unwraps to processes.ErrValidation.
type ValidationError struct {
	// Input is the offending input identifier, empty when the problem is
	// not specific to one input (a missing required input, malformed JSON).
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid inputs: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return processes.ErrValidation }

// Validate checks inputs against the process's input schema. Empty inputs
// are treated as an empty object.
func (p *Process) Validate(inputs json.RawMessage) error {
	var v any
	if len(bytes.TrimSpace(inputs)) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(inputs, &v); err != nil {
		return &ValidationError{Reason: "inputs are not valid JSON"}
	}
	if _, ok := v.(map[string]any); !ok {
		return &ValidationError{Reason: "inputs must be a JSON object"}
	}
	if p.schema == nil {
		return nil
	}
	if err := p.schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fromSchemaError(ve)
		}
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

// fromSchemaError reduces a validation tree to its first leaf.
func fromSchemaError(ve *jsonschema.ValidationError) *ValidationError {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	input := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if i := strings.IndexByte(input, '/'); i >= 0 {
		input = input[:i]
	}
	return &ValidationError{Input: input, Reason: leaf.Message}
}

// compileInputs builds one object schema from the per-input schemas.
// Inputs with MinOccurs ≥ 1 are required and undeclared inputs are
// rejected.
func compileInputs(desc *Description) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(desc.Inputs))
	required := make([]string, 0, len(desc.Inputs))
	for name, in := range desc.Inputs {
		if len(in.Schema) == 0 {
			props[name] = true
		} else {
			props[name] = in.Schema
		}
		if in.MinOccurs > 0 {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	doc, err := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	})
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}

	loc := "https://processes.invalid/" + url.PathEscape(desc.ID) + "/inputs.json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(loc, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add input schema: %w", err)
	}
	schema, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}
