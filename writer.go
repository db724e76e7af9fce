package mrpc

import (
	"io"

	"github.com/sagernet/sing/common/bufio"
)

// packetWriter drains a shared writer queue onto a single underlying byte
// stream, adapted from smux's sendLoop: it prefers a vectorised write of
// the packet's header and payload as two buffers when the underlying
// writer supports it (avoiding a header+payload copy per packet), and
// falls back to Packet.WriteTo (a header write followed by a payload
// write) otherwise.
//
// The writer-queue flush optimization (spec.md §4.2) lives here too: the
// underlying stream is only flushed once the queue drains empty after a
// successful write, which is what breaks the deadlock where a server
// blocks on request bytes still buffered client-side.
type packetWriter struct {
	conn io.Writer
	vec  bool
	bw   interface {
		io.Writer
	}
}

func newPacketWriter(conn io.Writer) *packetWriter {
	pw := &packetWriter{conn: conn}
	if _, ok := bufio.CreateVectorisedWriter(conn); ok {
		pw.vec = true
	}
	return pw
}

// writePacket writes one packet's header and payload to the underlying
// stream.
func (pw *packetWriter) writePacket(p *Packet) error {
	if pw.vec {
		if bw, ok := bufio.CreateVectorisedWriter(pw.conn); ok {
			headerBuf, headerLen := p.encodeHeader()
			vec := [][]byte{headerBuf[:headerLen], p.Payload()}
			_, err := bufio.WriteVectorised(bw, vec)
			return err
		}
	}
	return p.WriteTo(pw.conn)
}

// flush asks the underlying stream to flush buffered bytes, if it
// supports that.
func (pw *packetWriter) flush() error {
	if f, ok := pw.conn.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// runWriterLoop drains queue until a nil sentinel is received (graceful
// stop) or a write fails (triggers onError, then the loop drains the rest
// of the queue into release without writing, matching the original's
// skip_writer_queue_packets). It signals nothing itself on return; callers
// close their own done channel once it returns.
func runWriterLoop(conn io.Writer, queue <-chan *Packet, release func(*Packet), onError func(error)) {
	pw := newPacketWriter(conn)
	failed := false

	for p := range queue {
		if p == nil {
			return
		}
		if failed {
			release(p)
			continue
		}

		err := pw.writePacket(p)
		release(p)
		if err == nil && len(queue) == 0 {
			err = pw.flush()
		}
		if err != nil {
			failed = true
			onError(err)
		}
	}
}
