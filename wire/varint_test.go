package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

func TestUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16383, 16384, 0xFFFFFFFF}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, wire.WriteUint32(&buf, v))
		got, err := wire.ReadUint32(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestInt32RoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 2147483647, -2147483648, 12345, -12345}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, wire.WriteInt32(&buf, v))
		got, err := wire.ReadInt32(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1 << 62, ^uint64(0)}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, wire.WriteUint64(&buf, v))
		got, err := wire.ReadUint64(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestInt64RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 1<<62 - 1, -(1 << 62)}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, wire.WriteInt64(&buf, v))
		got, err := wire.ReadInt64(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestReadUint32OverflowsOnOversizedValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteUint64(&buf, uint64(1)<<40))
	_, err := wire.ReadUint32(&buf)
	assert.ErrorIs(t, err, wire.ErrOverflow)
}
