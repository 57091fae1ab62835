// Package process is the boundary to the computable work that jobs
// instantiate.
//
// A process is described by a [Description] (identity, input schema,
// allowed execution modes, admission limits) and executed by an [Executor].
// The [Registry] holds both and validates inputs against the declared
// schema before a job is created.
//
// # Defining a Process
//
// Use [Definition] with a typed handler. Inputs are JSON-decoded into the
// handler's input type before it runs:
//
//	type BufferInput struct {
//	    Distance float64 `json:"distance"`
//	}
//
//	var Buffer = process.NewDefinition(process.Description{
//	    ID:      "buffer",
//	    Version: "1.0.0",
//	    Inputs: map[string]process.InputDescription{
//	        "distance": {Schema: json.RawMessage(`{"type":"number"}`), MinOccurs: 1},
//	    },
//	}, func(ctx context.Context, in BufferInput) (result.Outputs, error) {
//	    return result.Outputs{"distance": in.Distance}, nil
//	})
//
//	process.RegisterDefinition(registry, Buffer)
//
// # Cancellation and Progress
//
// Executors receive a context that is cancelled when the job is dismissed
// or its deadline passes. Cancellation is cooperative: executors check
// ctx.Err at their own checkpoints. [ReportProgress] records advisory
// progress on the running job.
package process
