package mrpc

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxPacketPayload is the authoritative maximum number of payload bytes a
// single packet can carry. The original C sources disagree between a
// 16383-byte comment and a 4095-byte implementation whose header only
// reserves 12 length bits; per spec.md §9 ("Open questions"), 4095 is
// authoritative for packet payloads. The 16383 figure instead bounds
// char-array/wchar-array lengths, which wire.CharArray/wire.WCharArray
// encode independently.
const MaxPacketPayload = 4095

// Role is the position of a packet within its conversation's packet
// sequence.
type Role byte

const (
	RoleStart  Role = 0
	RoleMiddle Role = 1
	RoleEnd    Role = 2
	RoleSingle Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleStart:
		return "START"
	case RoleMiddle:
		return "MIDDLE"
	case RoleEnd:
		return "END"
	case RoleSingle:
		return "SINGLE"
	default:
		return "UNKNOWN"
	}
}

// Packet is a fixed-capacity, self-framed buffer tagged with a conversation
// id and a role. It is owned by a single component at any moment: a pool,
// the producer filling it, the writer queue, a conversation's reader queue,
// or a reader draining it. See packetPool for the lifecycle.
//
// Wire layout: conversationID:1 | varint(length<<2|role) | payload[length].
type Packet struct {
	conversationID byte
	role           Role
	length         int
	cursor         int
	payload        [MaxPacketPayload]byte
}

// newPacket allocates a zeroed packet. Packets are always created through a
// pool; this constructor exists for the pool's create callback.
func newPacket() *Packet {
	return &Packet{}
}

// Reset clears the packet so it can be reused for either ReadFrom or
// repeated WriteBytes calls.
func (p *Packet) Reset() {
	p.conversationID = 0
	p.role = RoleStart
	p.length = 0
	p.cursor = 0
}

func (p *Packet) ConversationID() byte          { return p.conversationID }
func (p *Packet) SetConversationID(id byte)     { p.conversationID = id }
func (p *Packet) Role() Role                    { return p.role }
func (p *Packet) SetRole(role Role)             { p.role = role }
func (p *Packet) Len() int                      { return p.length }

// ReadBytes drains up to len(buf) unread bytes from the packet into buf,
// advancing the cursor. It returns the number of bytes copied, in
// [0, len(buf)].
func (p *Packet) ReadBytes(buf []byte) int {
	n := copy(buf, p.payload[p.cursor:p.length])
	p.cursor += n
	return n
}

// WriteBytes appends up to len(buf) bytes to the packet. It never resizes:
// once length reaches MaxPacketPayload further bytes are rejected. Returns
// the number of bytes actually appended.
func (p *Packet) WriteBytes(buf []byte) int {
	n := copy(p.payload[p.length:MaxPacketPayload], buf)
	p.length += n
	return n
}

// ReadFrom reads one packet's wire representation from r. On success the
// cursor is reset to 0 and length is the number of payload bytes read.
func (p *Packet) ReadFrom(r io.Reader) error {
	var idBuf [1]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return errors.Wrap(err, "mrpc: read conversation id")
	}

	header, err := readUvarint(r)
	if err != nil {
		return errors.Wrap(err, "mrpc: read packet header")
	}

	role := Role(header & 0x3)
	length := int(header >> 2)
	if length > MaxPacketPayload {
		return errors.Wrapf(ErrProtocol, "mrpc: packet length %d exceeds cap %d", length, MaxPacketPayload)
	}

	if _, err := io.ReadFull(r, p.payload[:length]); err != nil {
		return errors.Wrap(err, "mrpc: read packet payload")
	}

	p.conversationID = idBuf[0]
	p.role = role
	p.length = length
	p.cursor = 0
	return nil
}

// WriteTo serializes the packet to w. After a successful call the packet is
// ready to be Reset and reused.
func (p *Packet) WriteTo(w io.Writer) error {
	headerBuf, headerLen := p.encodeHeader()
	if _, err := w.Write(headerBuf[:headerLen]); err != nil {
		return errors.Wrap(err, "mrpc: write packet header")
	}
	if p.length > 0 {
		if _, err := w.Write(p.payload[:p.length]); err != nil {
			return errors.Wrap(err, "mrpc: write packet payload")
		}
	}
	return nil
}

// encodeHeader produces the id+varint header bytes used both by WriteTo
// and by the writer loop's scatter-gather path (see packetWriter.writePacket
// in writer.go).
func (p *Packet) encodeHeader() ([1 + binary.MaxVarintLen64]byte, int) {
	header := uint64(p.length)<<2 | uint64(p.role&0x3)

	var buf [1 + binary.MaxVarintLen64]byte
	buf[0] = p.conversationID
	n := binary.PutUvarint(buf[1:], header)
	return buf, 1 + n
}

// Payload returns the packet's filled payload bytes. Callers must not
// retain the slice past the packet's next Reset.
func (p *Packet) Payload() []byte {
	return p.payload[:p.length]
}

// readUvarint reads an unsigned LEB128 varint one byte at a time, since
// io.Reader offers no bufio.ByteReader guarantee in general.
func readUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	var b [1]byte
	for i := 0; i < binary.MaxVarintLen64; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		if b[0] < 0x80 {
			if i == binary.MaxVarintLen64-1 && b[0] > 1 {
				return 0, errors.New("mrpc: varint overflow")
			}
			return x | uint64(b[0])<<s, nil
		}
		x |= uint64(b[0]&0x7f) << s
		s += 7
	}
	return 0, errors.New("mrpc: varint overflow")
}
