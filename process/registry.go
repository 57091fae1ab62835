package process

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/xraph/processes"
)

// Process is a registered process: its description, the executor that runs
// it, and the compiled input schema.
type Process struct {
	Description
	Executor Executor

	schema *jsonschema.Schema
}

// Registry maps process IDs to registered processes.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]*Process
}

// NewRegistry creates an empty process registry.
func NewRegistry() *Registry {
	return &Registry{
		procs: make(map[string]*Process),
	}
}

// Register adds a process, compiling its input schema. Registering an ID
// twice replaces the earlier process.
func (r *Registry) Register(desc Description, exec Executor) error {
	if desc.ID == "" {
		return errors.New("process: register: empty process id")
	}
	if exec == nil {
		return fmt.Errorf("process: register %q: nil executor", desc.ID)
	}
	schema, err := compileInputs(&desc)
	if err != nil {
		return fmt.Errorf("process: register %q: %w", desc.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[desc.ID] = &Process{Description: desc, Executor: exec, schema: schema}
	return nil
}

// Get returns the process with the given ID.
// Returns false if no process is registered.
func (r *Registry) Get(processID string) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[processID]
	return p, ok
}

// Lookup is Get returning processes.ErrProcessNotFound for unknown IDs.
func (r *Registry) Lookup(processID string) (*Process, error) {
	p, ok := r.Get(processID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", processes.ErrProcessNotFound, processID)
	}
	return p, nil
}

// List returns the descriptions of all registered processes sorted by ID.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p.Description)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
