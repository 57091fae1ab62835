// Package processes provides the job-execution engine behind an OGC API -
// Processes surface. It owns the job lifecycle: creation, the
// accepted → running → {successful | failed | dismissed} state machine,
// synchronous and asynchronous execution, a bounded worker pool,
// cooperative cancellation, result storage, and garbage collection of
// finished and orphaned jobs.
//
// Processes is a library first. Import it, pick a store backend, register
// process executors, and mount the HTTP handlers:
//
//	s := memory.New()
//	reg := process.NewRegistry()
//	builtin.Register(reg)
//
//	orch, err := orchestrator.New(s, reg,
//	    orchestrator.WithConfig(processes.DefaultConfig()),
//	)
//	if err != nil { ... }
//	if err := orch.Start(ctx); err != nil { ... }
//	http.ListenAndServe(":8080", api.New(orch).Handler())
//
// # Architecture
//
// Each subsystem (job, result) defines its own store interface and a single
// backend implements both (see package store). The orchestrator package
// sits above all subsystems and wires the worker pool, the cancellation
// controller, and the garbage collector together.
//
// Job IDs are TypeIDs: type-prefixed, K-sortable, UUIDv7-based.
package processes
