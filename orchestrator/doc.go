// Package orchestrator wires the job engine together and provides the
// application-level API behind the OGC API - Processes job endpoints.
//
// The orchestrator owns a worker pool, a cancellation controller, the
// per-process admission limits and a garbage collector, all sharing one
// store. Every state change it makes goes through the job state machine
// and is written with a compare-and-swap on the job's status and version,
// so it never overwrites a transition made concurrently by a worker.
//
// # Building an Orchestrator
//
//	registry := process.NewRegistry()
//	if err := builtin.Register(registry); err != nil {
//	    log.Fatal(err)
//	}
//
//	orch, err := orchestrator.New(pgStore, registry,
//	    orchestrator.WithConfig(cfg),
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithExtension(notifier),
//	)
//	if err := orch.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Stop(ctx)
//
// # Executing
//
//	res, err := orch.Execute(ctx, orchestrator.ExecuteRequest{
//	    ProcessID: "echo",
//	    Inputs:    json.RawMessage(`{"message":"hi"}`),
//	    Mode:      job.ModeSync,
//	})
//
// A synchronous request runs the job inline and waits up to
// ExecuteRequest.Wait, or Config.SyncTimeout when Wait is zero. If the job is still running after that, res.Async is
// true and the client polls the job like any asynchronous one.
//
// # Dismissing
//
// DismissJob on an accepted job dismisses it before it ever runs. On a
// running job it signals the execution's cancellation token and waits up
// to Config.DismissGrace for the worker to stop, then forces the
// transition. A job running on another worker gets the same grace, during
// which the store is polled. Outputs produced after a forced dismissal are
// discarded. Dismissing a finished job, dismissed jobs included, fails
// with processes.ErrJobFinished.
//
// # Options
//
//   - [WithConfig] — engine configuration
//   - [WithLogger] — structured logger
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — add a middleware to the execution chain
//   - [WithWorkerID] — pin the worker identity
//   - [WithTracerProvider] / [WithMeterProvider] — OpenTelemetry providers
package orchestrator
