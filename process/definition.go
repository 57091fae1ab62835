package process

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/processes/result"
)

// Definition is a typed process definition with a handler function.
// I is the input type (must be JSON-deserializable).
type Definition[I any] struct {
	// Description declares the process identity and inputs.
	Description Description

	// Handler computes the outputs from decoded inputs.
	Handler func(ctx context.Context, in I) (result.Outputs, error)
}

// NewDefinition creates a typed process definition.
func NewDefinition[I any](desc Description, handler func(ctx context.Context, in I) (result.Outputs, error)) *Definition[I] {
	return &Definition[I]{
		Description: desc,
		Handler:     handler,
	}
}

// RegisterDefinition registers a typed definition. The typed handler is
// wrapped in an executor that JSON-decodes the inputs into I first.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[I any](r *Registry, def *Definition[I]) error {
	exec := ExecutorFunc(func(ctx context.Context, inputs json.RawMessage) (result.Outputs, error) {
		var in I
		if len(inputs) > 0 {
			if err := json.Unmarshal(inputs, &in); err != nil {
				return nil, fmt.Errorf("decode inputs for process %q: %w", def.Description.ID, err)
			}
		}
		return def.Handler(ctx, in)
	})
	return r.Register(def.Description, exec)
}
