// Package flow combines per-branch downstream flow results into one status.
package flow

import (
	"sync"
	"sync/atomic"
)

// State is ordered by severity.
type State int32

const (
	Ok State = iota
	NotNegotiated
	Flushing
	Error
)

func (s State) String() string {
	switch s {
	case Ok:
		return "ok"
	case NotNegotiated:
		return "not-negotiated"
	case Flushing:
		return "flushing"
	case Error:
		return "error"
	}
	return "unknown"
}

// Aggregator tracks the last state of every active branch. Writes are
// serialized; State reads the last computed aggregate without locking.
type Aggregator struct {
	mu       sync.Mutex
	branches map[string]State
	last     atomic.Int32
}

func NewAggregator() *Aggregator {
	return &Aggregator{branches: make(map[string]State)}
}

// Add registers branch with state Ok. Existing branches keep their state.
func (a *Aggregator) Add(branch string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.branches[branch]; !ok {
		a.branches[branch] = Ok
	}
	return a.recompute()
}

func (a *Aggregator) Remove(branch string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.branches, branch)
	return a.recompute()
}

// Update records state for branch, adding it when unknown, and returns the
// new aggregate.
func (a *Aggregator) Update(branch string, state State) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.branches[branch] = state
	return a.recompute()
}

func (a *Aggregator) State() State {
	return State(a.last.Load())
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.branches)
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.branches)
	a.last.Store(int32(Ok))
}

// recompute must be called with mu held.
func (a *Aggregator) recompute() State {
	agg := Ok
	for _, s := range a.branches {
		if s > agg {
			agg = s
		}
	}
	a.last.Store(int32(agg))
	return agg
}
