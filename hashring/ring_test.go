package hashring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyala/multiplexing-rpc-sub000/hashring"
)

func TestRingEmptyByDefault(t *testing.T) {
	r := hashring.New(4, 4)
	assert.True(t, r.IsEmpty())
	assert.Equal(t, 0, r.Len())
	assert.Panics(t, func() { r.Get(0) })
}

func TestRingAddGetRemove(t *testing.T) {
	r := hashring.New(8, 10)
	r.Add(100, "a")
	r.Add(5000000, "b")

	require.False(t, r.IsEmpty())
	assert.Equal(t, 20, r.Len())

	got := r.Get(100)
	assert.Equal(t, "a", got)

	r.Remove(100)
	assert.Equal(t, 10, r.Len())
	assert.Equal(t, "b", r.Get(0))
}

func TestRingGetWrapsAround(t *testing.T) {
	r := hashring.New(4, 1)
	r.Add(100, "only")
	// A query larger than every stored key must wrap around to the
	// smallest key rather than panicking.
	assert.Equal(t, "only", r.Get(0xFFFFFFFF))
}

func TestRingRemoveAll(t *testing.T) {
	r := hashring.New(4, 5)
	r.Add(1, "a")
	r.Add(2, "b")
	r.RemoveAll()
	assert.True(t, r.IsEmpty())
	assert.Panics(t, func() { r.Remove(1) })
}

func TestRingRemoveUnknownKeyPanics(t *testing.T) {
	r := hashring.New(4, 4)
	r.Add(1, "a")
	assert.Panics(t, func() { r.Remove(999) })
}

func TestRingDistributesAcrossBuckets(t *testing.T) {
	r := hashring.New(6, 16)
	for i := uint32(0); i < 50; i++ {
		r.Add(i*104729, i)
	}
	assert.Equal(t, 50*16, r.Len())

	seen := map[any]bool{}
	for i := uint32(0); i < 64; i++ {
		seen[r.Get(i*67108864)] = true
	}
	assert.Greater(t, len(seen), 1, "lookups should reach more than a single value across the ring")
}
