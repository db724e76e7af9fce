package mrpc

import "sync"

// objectPool is a fixed-capacity cache of reusable objects, the Go
// counterpart of the original's ff_pool: a bounded free-list with a
// create callback invoked lazily as the pool grows towards its cap, and a
// delete callback invoked once at teardown for every object the pool ever
// created.
//
// Unlike sync.Pool, objectPool never discards entries under memory
// pressure and never manufactures more than cap entries: callers rely on
// that bound to preclude the resource-exhaustion cases §7 calls out as
// assertion violations (more in-flight packets than the pool was sized
// for).
type objectPool[T any] struct {
	mu      sync.Mutex
	free    []T
	create  func() T
	destroy func(T)
	cap     int
	created int
}

func newObjectPool[T any](capacity int, create func() T, destroy func(T)) *objectPool[T] {
	return &objectPool[T]{
		free:    make([]T, 0, capacity),
		create:  create,
		destroy: destroy,
		cap:     capacity,
	}
}

// acquire returns a free entry, lazily creating one if the pool has not
// yet reached its capacity. It panics if the pool is exhausted, mirroring
// the original's ff_assert on pool underflow: correct sizing (packet pools
// at least 2x the id space) makes this unreachable in practice.
func (p *objectPool[T]) acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}
	if p.created >= p.cap {
		panic("mrpc: object pool exhausted")
	}
	p.created++
	return p.create()
}

// release returns v to the pool for reuse.
func (p *objectPool[T]) release(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, v)
}

// closeAll invokes destroy on every entry currently free in the pool.
// Callers must ensure every acquired entry has been released before
// calling this (the stream processors' shutdown sequences guarantee it).
func (p *objectPool[T]) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.free {
		p.destroy(v)
	}
	p.free = p.free[:0]
	p.created = 0
}
