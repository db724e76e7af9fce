package mrpc

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoMethod() *Method {
	return &Method{
		ID:   1,
		Name: "Echo",
		RequestParams: []ParamSpec{
			{Kind: KindString, IsKey: true},
			{Kind: KindUint32},
		},
		ResponseParams: []ParamSpec{
			{Kind: KindString},
		},
	}
}

func TestMethodRequestResponseRoundTrip(t *testing.T) {
	m := echoMethod()
	request := []*Value{
		{Kind: KindString, Str: "hello"},
		{Kind: KindUint32, U32: 42},
	}

	var buf bytes.Buffer
	require.NoError(t, m.writeRequest(&buf, request))

	got, err := m.readRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", got[0].Str)
	assert.Equal(t, uint32(42), got[1].U32)
}

func TestMethodEmptyResponseUsesSingleZeroByte(t *testing.T) {
	m := &Method{ID: 2, Name: "Ping"}

	var buf bytes.Buffer
	require.NoError(t, m.writeResponse(&buf, nil))
	assert.Equal(t, []byte{0}, buf.Bytes())

	got, err := m.readResponse(&buf)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMethodEmptyResponseRejectsNonZeroByte(t *testing.T) {
	m := &Method{ID: 2, Name: "Ping"}
	buf := bytes.NewBuffer([]byte{1})
	_, err := m.readResponse(buf)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestGetRequestHashSkipsNonKeyParams(t *testing.T) {
	m := echoMethod()
	request := []*Value{
		{Kind: KindString, Str: "hello"},
		{Kind: KindUint32, U32: 42},
	}

	withKeyOnly := m.GetRequestHash(request, 0)

	altered := []*Value{
		{Kind: KindString, Str: "hello"},
		{Kind: KindUint32, U32: 999},
	}
	assert.Equal(t, withKeyOnly, m.GetRequestHash(altered, 0), "non-key parameter must not affect the hash")

	alteredKey := []*Value{
		{Kind: KindString, Str: "goodbye"},
		{Kind: KindUint32, U32: 42},
	}
	assert.NotEqual(t, withKeyOnly, m.GetRequestHash(alteredKey, 0))
}

func TestInterfaceRejectsDuplicateMethodIDs(t *testing.T) {
	_, err := NewInterface(
		&Method{ID: 1, Name: "A", Handler: func(context.Context, []*Value) ([]*Value, error) { return nil, nil }},
		&Method{ID: 1, Name: "B", Handler: func(context.Context, []*Value) ([]*Value, error) { return nil, nil }},
	)
	assert.Error(t, err)
}

func TestInterfaceLookup(t *testing.T) {
	iface, err := NewInterface(&Method{ID: 5, Name: "Foo"})
	require.NoError(t, err)

	m, ok := iface.Method(5)
	require.True(t, ok)
	assert.Equal(t, "Foo", m.Name)

	_, ok = iface.Method(6)
	assert.False(t, ok)
}
