package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limits defines per-process admission behaviour.
type Limits struct {
	// ProcessID is the process these limits apply to.
	ProcessID string

	// MaxConcurrency limits how many jobs of this process may run
	// simultaneously in the local worker pool. Zero means no
	// process-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained job starts per second.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// IsZero reports whether l imposes no limit.
func (l Limits) IsZero() bool {
	return l.MaxConcurrency <= 0 && l.RateLimit <= 0
}

// processState tracks runtime state for a single process.
type processState struct {
	limits  Limits
	limiter *rate.Limiter
	active  int
}

// Manager controls per-process rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	procs map[string]*processState
}

// NewManager creates a Manager with the given limits.
func NewManager(limits ...Limits) *Manager {
	m := &Manager{
		procs: make(map[string]*processState, len(limits)),
	}
	for _, l := range limits {
		m.procs[l.ProcessID] = newProcessState(l)
	}
	return m
}

func newProcessState(l Limits) *processState {
	ps := &processState{limits: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ps.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return ps
}

// Acquire checks the concurrency cap and rate limit of the process. If the
// job may start it increments the active counter and returns true. The
// caller MUST call Release when the job completes.
func (m *Manager) Acquire(processID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps := m.procs[processID]
	if ps == nil {
		return true
	}
	// Concurrency first so a denied job does not spend a rate token.
	if ps.limits.MaxConcurrency > 0 && ps.active >= ps.limits.MaxConcurrency {
		return false
	}
	if ps.limiter != nil && !ps.limiter.Allow() {
		return false
	}
	ps.active++
	return true
}

// Release decrements the active job count for the process.
func (m *Manager) Release(processID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ps := m.procs[processID]; ps != nil && ps.active > 0 {
		ps.active--
	}
}

// SetLimits dynamically updates (or creates) the limits of a process.
// Zero limits remove any previous configuration.
func (m *Manager) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.procs[l.ProcessID]
	if l.IsZero() {
		delete(m.procs, l.ProcessID)
		return
	}
	ps := newProcessState(l)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ps.active = existing.active
	}
	m.procs[l.ProcessID] = ps
}

// ActiveCount returns the current number of admitted jobs for a process.
// Processes without limits are not tracked and report zero.
func (m *Manager) ActiveCount(processID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps := m.procs[processID]; ps != nil {
		return ps.active
	}
	return 0
}
