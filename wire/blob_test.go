package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

func TestBlobRoundTripInMemory(t *testing.T) {
	data := []byte("a small blob")
	var buf bytes.Buffer
	require.NoError(t, wire.WriteBlob(&buf, wire.NewBlobFromBytes(data)))

	got, err := wire.ReadBlob(&buf)
	require.NoError(t, err)
	defer got.Close()

	out, err := got.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestBlobRoundTripSpillsToDisk(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, wire.InMemoryBlobThreshold+1024)
	var buf bytes.Buffer
	require.NoError(t, wire.WriteBlob(&buf, wire.NewBlobFromBytes(data)))

	got, err := wire.ReadBlob(&buf)
	require.NoError(t, err)
	defer got.Close()

	r, err := got.Reader()
	require.NoError(t, err)
	defer r.Close()

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, int64(len(data)), got.Size())
}

func TestBlobCloseRemovesTempFile(t *testing.T) {
	data := bytes.Repeat([]byte{1}, wire.InMemoryBlobThreshold+1)
	var buf bytes.Buffer
	require.NoError(t, wire.WriteBlob(&buf, wire.NewBlobFromBytes(data)))

	got, err := wire.ReadBlob(&buf)
	require.NoError(t, err)
	require.NoError(t, got.Close())

	_, err = got.Reader()
	assert.Error(t, err)
}
