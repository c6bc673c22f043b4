// Package control holds the cross-stage suspension primitives every worker
// in the pipeline observes at its iteration boundaries (spec.md §5:
// "every worker tests the pause gate and the cancellation token at each
// iteration boundary"). Cancellation itself is plain context.Context —
// stages receive a ctx and select on ctx.Done(), the same pattern the
// teacher's worker pool uses.
package control

import "sync"

// PauseGate is a re-openable gate: Wait blocks while paused and returns
// immediately once Resume is called. A fresh gate starts open.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	gate   chan struct{}
}

// NewPauseGate returns an open gate.
func NewPauseGate() *PauseGate {
	g := &PauseGate{gate: make(chan struct{})}
	close(g.gate) // closed channel never blocks: open state
	return g
}

// Pause closes the gate; subsequent Wait calls block until Resume.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.gate = make(chan struct{})
	}
}

// Resume reopens the gate, releasing every blocked Wait.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.gate)
	}
}

// Paused reports the current state without blocking.
func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused. It also returns early if done is
// closed, so callers can combine a pause wait with cancellation:
//
//	select {
//	case <-gate.C():
//	case <-ctx.Done():
//	}
//
// Wait is a convenience wrapper for callers that don't need to select on
// anything else.
func (g *PauseGate) Wait(done <-chan struct{}) {
	for {
		g.mu.Lock()
		ch := g.gate
		g.mu.Unlock()
		select {
		case <-ch:
			return
		case <-done:
			return
		}
	}
}

// C returns the current gate channel. It is closed while the gate is open
// and replaced (closed separately) each time Pause/Resume toggle state, so
// callers must re-fetch it after a Wait/select iteration rather than cache
// it across a pause/resume cycle.
func (g *PauseGate) C() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate
}
