// Package queue enforces per-process admission limits at dequeue time.
//
// A process may cap how many of its jobs run at once and how fast new ones
// start. The worker pool asks the [Manager] before claiming a job; a job
// denied admission stays accepted and is offered again on the next
// backfill pass. Admission never rejects a job outright.
//
//	m := queue.NewManager(
//	    queue.Limits{ProcessID: "reproject", MaxConcurrency: 2},
//	    queue.Limits{ProcessID: "tile-seed", RateLimit: 5, RateBurst: 10},
//	)
//	if m.Acquire(processID) {
//	    defer m.Release(processID)
//	    // run the job
//	}
//
// It uses a token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits. Processes without [Limits] are
// bounded only by the pool-wide concurrency.
package queue
