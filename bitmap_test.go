package mrpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmapAcquireRelease(t *testing.T) {
	b := newBitmap(4)

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		id := b.acquire()
		require.GreaterOrEqual(t, id, 0)
		assert.False(t, seen[id])
		seen[id] = true
	}

	assert.Equal(t, -1, b.acquire())

	b.release(2)
	id := b.acquire()
	assert.Equal(t, 2, id)
}

func TestBitmapReleasePanicsOnDoubleRelease(t *testing.T) {
	b := newBitmap(2)
	id := b.acquire()
	b.release(id)
	assert.Panics(t, func() { b.release(id) })
}

func TestBitmapReleasePanicsOutOfRange(t *testing.T) {
	b := newBitmap(2)
	assert.Panics(t, func() { b.release(5) })
}
