package distributed

import (
	"sync"

	"github.com/valyala/multiplexing-rpc-sub000"
)

// clientWrapper owns one mRPC client and ref-counts concurrent
// AcquireClient/ReleaseClient callers, so Stop can wait for every
// outstanding caller to release before tearing the client down
// (spec.md §7, "Client wrapper").
type clientWrapper struct {
	client    *mrpc.Client
	connector mrpc.Connector

	mu     sync.Mutex
	refCnt int
	idle   *idleGate
}

func newClientWrapper(cfg *mrpc.Config, iface *mrpc.Interface) *clientWrapper {
	return &clientWrapper{
		client: mrpc.NewClient(cfg, nil, iface),
		idle:   newIdleGate(),
	}
}

func (w *clientWrapper) start(connector mrpc.Connector) {
	w.connector = connector
	w.client.Start(connector)
}

// stop waits for every outstanding acquirer to release the client, then
// stops the underlying client.
func (w *clientWrapper) stop() {
	w.idle.wait()
	w.client.Stop()
	w.connector = nil
}

func (w *clientWrapper) acquire() *mrpc.Client {
	w.mu.Lock()
	w.refCnt++
	if w.refCnt == 1 {
		w.idle.enter()
	}
	w.mu.Unlock()
	return w.client
}

func (w *clientWrapper) release() {
	w.mu.Lock()
	w.refCnt--
	idle := w.refCnt == 0
	w.mu.Unlock()
	if idle {
		w.idle.leave()
	}
}

// idleGate mirrors mrpc's internal idleGate: a one-shot "count reached
// zero" event, duplicated here since the primitive isn't exported across
// the module boundary.
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

func (g *idleGate) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idle {
		g.idle = false
		g.ch = make(chan struct{})
	}
}

func (g *idleGate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.idle {
		g.idle = true
		close(g.ch)
	}
}

func (g *idleGate) wait() {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	<-ch
}
