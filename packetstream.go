package mrpc

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultReadTimeout is how long a packetStream.read blocks waiting
	// for the next packet before failing.
	DefaultReadTimeout = 2 * time.Second

	// DefaultWriteTimeout is how long a packetStream.write or flush
	// blocks trying to push a full packet onto the writer queue.
	DefaultWriteTimeout = 2 * time.Second

	// readerQueueCapacity bounds the per-conversation reader queue.
	readerQueueCapacity = 100
)

// packetStream is a per-conversation virtual byte stream layered on top of
// packets and the two queues (a private reader queue, a writer queue
// shared with every other conversation on the same connection). It is the
// direct counterpart of the original mrpc_packet_stream.
//
// A packetStream outlives any single conversation: it is held inside a
// pooled request slot (client side) or request processor (server side) and
// is "initialized" with a fresh conversation id before each use and "shut
// down" before that id is released back to the bitmap.
type packetStream struct {
	writerQueue   chan *Packet
	readerQueue   chan *Packet
	acquirePacket func(role Role) *Packet
	releasePacket func(*Packet)
	readTimeout   time.Duration
	writeTimeout  time.Duration

	conversationID byte
	initialized    bool

	currentRead  *Packet
	currentWrite *Packet
}

func newPacketStream(writerQueue chan *Packet, acquire func(Role) *Packet, release func(*Packet)) *packetStream {
	return &packetStream{
		writerQueue:   writerQueue,
		readerQueue:   make(chan *Packet, readerQueueCapacity),
		acquirePacket: acquire,
		releasePacket: release,
		readTimeout:   DefaultReadTimeout,
		writeTimeout:  DefaultWriteTimeout,
	}
}

// initialize binds the stream to conversationID. Must be balanced with a
// later shutdown.
func (ps *packetStream) initialize(conversationID byte) {
	if ps.initialized {
		panic("mrpc: packet stream already initialized")
	}
	ps.conversationID = conversationID
	ps.currentRead = nil
	ps.currentWrite = nil
	ps.initialized = true
}

// shutdown flushes any pending write (best-effort), releases the current
// read/write packets, drains the reader queue back to the pool, and zeros
// the conversation id so it can be safely reused by a different
// conversation.
func (ps *packetStream) shutdown() {
	_ = ps.flush()

	if ps.currentWrite != nil {
		ps.releasePacket(ps.currentWrite)
		ps.currentWrite = nil
	}
	if ps.currentRead != nil {
		ps.releasePacket(ps.currentRead)
		ps.currentRead = nil
	}
	for {
		select {
		case p := <-ps.readerQueue:
			ps.releasePacket(p)
		default:
			ps.conversationID = 0
			ps.initialized = false
			return
		}
	}
}

// read fills buf entirely, blocking on the reader queue as needed. The
// first packet consumed in a conversation must carry role START or
// SINGLE; every subsequent one must be MIDDLE or END; once an END or
// SINGLE packet is exhausted, further reads fail.
func (ps *packetStream) read(buf []byte) error {
	if ps.currentRead == nil {
		p, err := ps.prefetchReadPacket()
		if err != nil {
			return err
		}
		ps.currentRead = p
	}

	off := 0
	for off < len(buf) {
		n := ps.currentRead.ReadBytes(buf[off:])
		off += n
		if off == len(buf) {
			break
		}

		role := ps.currentRead.Role()
		if role == RoleSingle || role == RoleEnd {
			return errors.Wrap(ErrProtocol, "mrpc: read past end of conversation")
		}

		next, err := ps.waitReaderQueue()
		if err != nil {
			return err
		}
		if next.Role() == RoleStart || next.Role() == RoleSingle {
			ps.releasePacket(next)
			return errors.Wrap(ErrProtocol, "mrpc: unexpected START/SINGLE packet mid-conversation")
		}
		ps.releasePacket(ps.currentRead)
		ps.currentRead = next
	}
	return nil
}

func (ps *packetStream) prefetchReadPacket() (*Packet, error) {
	p, err := ps.waitReaderQueue()
	if err != nil {
		return nil, err
	}
	if p.Role() != RoleStart && p.Role() != RoleSingle {
		ps.releasePacket(p)
		return nil, errors.Wrap(ErrProtocol, "mrpc: conversation must begin with START or SINGLE")
	}
	return p, nil
}

func (ps *packetStream) waitReaderQueue() (*Packet, error) {
	timer := time.NewTimer(ps.readTimeout)
	defer timer.Stop()
	select {
	case p := <-ps.readerQueue:
		return p, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// write buffers buf into the current write packet (tagged START on first
// use), publishing full packets to the writer queue and acquiring a
// MIDDLE packet as needed. Writes after a flush fail.
func (ps *packetStream) write(buf []byte) error {
	if ps.currentWrite == nil {
		ps.currentWrite = ps.newWritePacket(RoleStart)
	}
	if ps.currentWrite.Role() == RoleEnd {
		return errors.Wrap(ErrProtocol, "mrpc: write after flush")
	}

	off := 0
	for off < len(buf) {
		n := ps.currentWrite.WriteBytes(buf[off:])
		off += n
		if off == len(buf) {
			break
		}
		if err := ps.publishWrite(ps.currentWrite); err != nil {
			return err
		}
		ps.currentWrite = ps.newWritePacket(RoleMiddle)
	}
	return nil
}

// newWritePacket acquires a packet for this conversation and tags it
// with ps.conversationID, since acquirePacket itself is conversation-
// agnostic (it is shared across every conversation on the connection).
func (ps *packetStream) newWritePacket(role Role) *Packet {
	p := ps.acquirePacket(role)
	p.SetConversationID(ps.conversationID)
	return p
}

// flush publishes whatever has been buffered so far, rewriting its role
// (START->SINGLE, MIDDLE->END), and installs a sentinel END packet as the
// new "current write" so that any further write call fails. A flush with
// no prior writes is a no-op.
func (ps *packetStream) flush() error {
	if ps.currentWrite == nil {
		return nil
	}
	if ps.currentWrite.Role() == RoleEnd {
		return nil
	}

	if ps.currentWrite.Role() == RoleStart {
		ps.currentWrite.SetRole(RoleSingle)
	} else {
		ps.currentWrite.SetRole(RoleEnd)
	}
	err := ps.publishWrite(ps.currentWrite)
	ps.currentWrite = ps.newWritePacket(RoleEnd)
	return err
}

func (ps *packetStream) publishWrite(p *Packet) error {
	timer := time.NewTimer(ps.writeTimeout)
	defer timer.Stop()
	select {
	case ps.writerQueue <- p:
		return nil
	case <-timer.C:
		ps.releasePacket(p)
		return ErrTimeout
	}
}

// disconnect flushes and then enqueues a synthetic END packet on the
// reader queue so a blocked reader observes end-of-stream rather than
// timing out.
func (ps *packetStream) disconnect() {
	_ = ps.flush()
	p := ps.acquirePacket(RoleEnd)
	select {
	case ps.readerQueue <- p:
	default:
		// Reader queue is momentarily full; push synchronously so the
		// sentinel is never dropped.
		ps.readerQueue <- p
	}
}

// pushPacket is the producer-side entry point used by the owning stream
// processor's reader loop to deliver an inbound packet for this
// conversation.
func (ps *packetStream) pushPacket(p *Packet) {
	ps.readerQueue <- p
}
