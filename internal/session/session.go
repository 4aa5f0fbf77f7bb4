package session

import (
	"sync"
	"time"

	"github.com/promptguard/gateway/internal/verdict"
)

// State describes where a client's current analysis session sits in its
// lifecycle.
type State int

const (
	// StateIdle means no session exists for the client.
	StateIdle State = iota
	// StatePending means a remote call is in flight.
	StatePending
	// StateResolved means the session settled with a Result.
	StateResolved
	// StateAborted means the session was cancelled before settling.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Manager owns one client's current analysis session. At most one
// session is current at any moment: starting a new one supersedes any
// in-flight predecessor, last request wins. Every completion presents
// the token minted at start, and a completion whose token is no longer
// current is a silent no-op, so a stale detector response can never
// surface after a newer session has started.
type Manager struct {
	mu      sync.Mutex
	token   uint64
	state   State
	result  *verdict.Result
	started time.Time
	touched time.Time
}

// NewManager returns a manager in the idle state.
func NewManager() *Manager {
	return &Manager{state: StateIdle, touched: time.Now()}
}

// Begin starts a new session and returns the token its completion must
// present. A pending predecessor is superseded; a terminal one simply
// gives way to the new interaction cycle.
func (m *Manager) Begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token++
	m.state = StatePending
	m.result = nil
	m.started = time.Now()
	m.touched = m.started
	return m.token
}

// Resolve settles the session with res, stamping the elapsed time from
// the session's monotonic start. It reports whether the session was
// still current; a superseded completion changes nothing.
func (m *Manager) Resolve(token uint64, res *verdict.Result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.token || m.state != StatePending {
		return false
	}
	res.ElapsedMs = time.Since(m.started).Milliseconds()
	m.state = StateResolved
	m.result = res
	m.touched = time.Now()
	return true
}

// Fail settles the session with a synthetic error result so the caller
// always has a terminal, renderable outcome. Same staleness rules as
// Resolve.
func (m *Manager) Fail(token uint64, message string) (*verdict.Result, bool) {
	res := verdict.ErrorResult(message)
	return res, m.Resolve(token, res)
}

// Cancel aborts the session if token is still current and pending. The
// in-flight remote call is not torn down here; its eventual settlement
// presents a dead token and is ignored.
func (m *Manager) Cancel(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.token || m.state != StatePending {
		return false
	}
	m.token++
	m.state = StateAborted
	m.result = nil
	m.touched = time.Now()
	return true
}

// Reset returns a terminal session to idle. Pending sessions are left
// alone; they settle or get superseded first.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateResolved || m.state == StateAborted {
		m.state = StateIdle
		m.result = nil
	}
	m.touched = time.Now()
}

// Snapshot reports the current state and, for resolved sessions, the
// settled result.
func (m *Manager) Snapshot() (State, *verdict.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.result
}

func (m *Manager) activity() (time.Time, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touched, m.state
}
