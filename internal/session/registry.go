package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry hands out one Manager per client, so supersession is scoped
// to the client that issued the overlapping requests. Managers for
// clients that go quiet are swept out after a retention window.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
	maxIdle  time.Duration
}

// NewRegistry builds a registry that retains idle managers for maxIdle.
func NewRegistry(maxIdle time.Duration) *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		maxIdle:  maxIdle,
	}
}

// Get returns the manager for clientID, creating one on first use.
func (r *Registry) Get(clientID string) *Manager {
	r.mu.RLock()
	m, ok := r.managers[clientID]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[clientID]; ok {
		return m
	}
	m = NewManager()
	r.managers[clientID] = m
	return m
}

// Len reports how many client managers are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// Sweep removes managers whose last activity predates the retention
// window and reports how many were dropped. Pending sessions are kept;
// the detector timeout bounds how long they can stay pending.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, m := range r.managers {
		touched, state := m.activity()
		if state == StatePending {
			continue
		}
		if now.Sub(touched) > r.maxIdle {
			delete(r.managers, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on the given interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := r.Sweep(now); removed > 0 {
				slog.Debug("swept idle sessions", "removed", removed, "live", r.Len())
			}
		}
	}
}
