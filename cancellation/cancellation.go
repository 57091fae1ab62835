// Package cancellation carries cooperative cancellation into running
// executions.
//
// Every execution registers a [Token] with the [Controller]. The token's
// context is what the executor sees; cancelling the token cancels that
// context with a cause that tells the worker why the job stopped. The token
// is released when the worker has finished handling the job, so a caller
// that cancelled it can wait on [Token.Done] for the worker's own
// transition.
//
// Cancellation never kills running work. An executor that ignores its
// context keeps running; its result is discarded by the failed state
// transition that follows.
package cancellation

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/processes/id"
)

var (
	// ErrDismissed is the cancellation cause for a client dismissal.
	ErrDismissed = errors.New("cancellation: job dismissed")
	// ErrShutdown is the cancellation cause for a pool shutdown.
	ErrShutdown = errors.New("cancellation: worker shutting down")
)

// Token is the cancellation handle of one execution.
type Token struct {
	jobID  id.JobID
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once
}

// JobID returns the job the token belongs to.
func (t *Token) JobID() id.JobID { return t.jobID }

// Done is closed once the worker finished handling the job.
func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) release() {
	t.once.Do(func() { close(t.done) })
}

// Controller tracks the tokens of the executions running in this process.
// It is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{tokens: make(map[string]*Token)}
}

// Register creates a token for jobID and returns the context the executor
// must run under. Registering a job twice replaces the earlier token.
func (c *Controller) Register(ctx context.Context, jobID id.JobID) (context.Context, *Token) {
	execCtx, cancel := context.WithCancelCause(ctx)
	tok := &Token{jobID: jobID, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.tokens[jobID.String()] = tok
	c.mu.Unlock()
	return execCtx, tok
}

// TryRegister is Register for callers that must own the job's execution:
// it returns false and registers nothing if jobID already has a token.
func (c *Controller) TryRegister(ctx context.Context, jobID id.JobID) (context.Context, *Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tokens[jobID.String()]; ok {
		return nil, nil, false
	}
	execCtx, cancel := context.WithCancelCause(ctx)
	tok := &Token{jobID: jobID, cancel: cancel, done: make(chan struct{})}
	c.tokens[jobID.String()] = tok
	return execCtx, tok, true
}

// Release removes the token and wakes anyone waiting on Done. The token's
// context is cancelled too, freeing its resources.
func (c *Controller) Release(tok *Token) {
	c.mu.Lock()
	if cur := c.tokens[tok.jobID.String()]; cur == tok {
		delete(c.tokens, tok.jobID.String())
	}
	c.mu.Unlock()

	tok.cancel(context.Canceled)
	tok.release()
}

// Cancel signals the execution of jobID with cause. It returns the token,
// or false if the job is not executing in this process.
func (c *Controller) Cancel(jobID id.JobID, cause error) (*Token, bool) {
	c.mu.Lock()
	tok, ok := c.tokens[jobID.String()]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	tok.cancel(cause)
	return tok, true
}

// CancelAll signals every registered execution with cause.
func (c *Controller) CancelAll(cause error) int {
	c.mu.Lock()
	toks := make([]*Token, 0, len(c.tokens))
	for _, tok := range c.tokens {
		toks = append(toks, tok)
	}
	c.mu.Unlock()

	for _, tok := range toks {
		tok.cancel(cause)
	}
	return len(toks)
}

// IsActive reports whether jobID is executing in this process.
func (c *Controller) IsActive(jobID id.JobID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tokens[jobID.String()]
	return ok
}

// Active returns the IDs of all executing jobs.
func (c *Controller) Active() []id.JobID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]id.JobID, 0, len(c.tokens))
	for _, tok := range c.tokens {
		ids = append(ids, tok.jobID)
	}
	return ids
}

// Len returns the number of executing jobs.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}
