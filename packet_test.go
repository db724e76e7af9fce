package mrpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	cases := []struct {
		id      byte
		role    Role
		payload []byte
	}{
		{0, RoleSingle, nil},
		{1, RoleStart, []byte("hello")},
		{255, RoleMiddle, bytes.Repeat([]byte{0xAB}, MaxPacketPayload)},
		{42, RoleEnd, []byte{1}},
	}

	for _, tc := range cases {
		p := newPacket()
		p.SetConversationID(tc.id)
		p.SetRole(tc.role)
		n := p.WriteBytes(tc.payload)
		require.Equal(t, len(tc.payload), n)

		var buf bytes.Buffer
		require.NoError(t, p.WriteTo(&buf))

		out := newPacket()
		require.NoError(t, out.ReadFrom(&buf))
		assert.Equal(t, tc.id, out.ConversationID())
		assert.Equal(t, tc.role, out.Role())
		assert.Equal(t, string(tc.payload), string(out.Payload()))
	}
}

func TestPacketWriteBytesNeverResizes(t *testing.T) {
	p := newPacket()
	n := p.WriteBytes(bytes.Repeat([]byte{1}, MaxPacketPayload+10))
	assert.Equal(t, MaxPacketPayload, n)
	assert.Equal(t, MaxPacketPayload, p.Len())
}

func TestPacketReadFromRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(7) // conversation id
	// header varint encodes length=MaxPacketPayload+1, role=0
	header := uint64(MaxPacketPayload+1) << 2
	var tmp [10]byte
	n := 0
	for header >= 0x80 {
		tmp[n] = byte(header) | 0x80
		header >>= 7
		n++
	}
	tmp[n] = byte(header)
	n++
	buf.Write(tmp[:n])

	p := newPacket()
	err := p.ReadFrom(&buf)
	assert.Error(t, err)
}
