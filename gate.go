package mrpc

import "sync"

// idleGate is a one-shot "count reached zero" event that flips high/low as
// an external counter crosses zero, used by both stream processors to let
// their main loop wait for every active request slot/processor to drain
// during shutdown (spec.md §4.3, "Active-slot events").
type idleGate struct {
	mu   sync.Mutex
	ch   chan struct{}
	idle bool
}

func newIdleGate() *idleGate {
	g := &idleGate{ch: make(chan struct{}), idle: true}
	close(g.ch)
	return g
}

// enter marks the gate non-idle (call when a counter transitions 0->1).
func (g *idleGate) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idle {
		g.idle = false
		g.ch = make(chan struct{})
	}
}

// leave marks the gate idle (call when a counter transitions 1->0).
func (g *idleGate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.idle {
		g.idle = true
		close(g.ch)
	}
}

// wait blocks until the gate is idle.
func (g *idleGate) wait() {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	<-ch
}
