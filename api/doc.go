// Package api exposes an Orchestrator over HTTP following OGC API -
// Processes Part 1.
//
// Routes:
//
//	GET    /                              landing page
//	GET    /conformance                   conformance classes
//	GET    /processes                     process list
//	GET    /processes/{processID}         process description
//	POST   /processes/{processID}/execution
//	GET    /jobs                          job list (limit, offset)
//	GET    /jobs/{jobID}                  status document
//	GET    /jobs/{jobID}/results          outputs of a successful job
//	DELETE /jobs/{jobID}                  dismiss
//
// Execution honours the Prefer header: "respond-async" asks for an
// asynchronous job, "wait=N" bounds the synchronous wait to N seconds.
// Errors are reported as OGC exception documents.
package api
