package mrpc

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// serverProcessorReleaseFunc returns a processor to the pool owning it once
// its connection fully drains (spec.md §4.4).
type serverProcessorReleaseFunc func(*ServerStreamProcessor)

// ServerStreamProcessor demultiplexes inbound packets from one connection
// across lazily-spawned per-request goroutines, mirroring
// ClientStreamProcessor on the accept side (spec.md §4.4).
type ServerStreamProcessor struct {
	cfg     *Config
	log     *zap.Logger
	iface   *Interface
	svcCtx  context.Context
	release serverProcessorReleaseFunc

	writerQueue chan *Packet
	packetPool  *objectPool[*Packet]
	reqPool     *objectPool[*serverRequestProcessor]

	mu            sync.Mutex
	conn          io.ReadWriteCloser
	processors    [256]*serverRequestProcessor
	processorsCnt int
	processorIdle *idleGate
}

// NewServerStreamProcessor creates a processor bound to iface/svcCtx using
// cfg (DefaultConfig if nil). release is invoked once the processor's
// connection fully drains, so a fixed-size server pool can recycle it.
func NewServerStreamProcessor(cfg *Config, log *zap.Logger, iface *Interface, svcCtx context.Context, release serverProcessorReleaseFunc) *ServerStreamProcessor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &ServerStreamProcessor{
		cfg:           cfg,
		log:           log,
		iface:         iface,
		svcCtx:        svcCtx,
		release:       release,
		writerQueue:   make(chan *Packet, cfg.ServerWriterQueueSize),
		processorIdle: newIdleGate(),
	}
	p.packetPool = newObjectPool(cfg.ServerPacketPoolSize, newPacket, func(*Packet) {})
	p.reqPool = newObjectPool(cfg.ServerProcessorPoolSize, func() *serverRequestProcessor {
		return newServerRequestProcessor(p)
	}, func(*serverRequestProcessor) {})
	return p
}

func (p *ServerStreamProcessor) acquirePacket(role Role) *Packet {
	pk := p.packetPool.acquire()
	pk.Reset()
	pk.SetRole(role)
	return pk
}

func (p *ServerStreamProcessor) releasePacket(pk *Packet) {
	p.packetPool.release(pk)
}

func (p *ServerStreamProcessor) acquireRequestProcessor(id byte) *serverRequestProcessor {
	rp := p.reqPool.acquire()
	p.mu.Lock()
	p.processors[id] = rp
	p.processorsCnt++
	if p.processorsCnt == 1 {
		p.processorIdle.enter()
	}
	p.mu.Unlock()
	return rp
}

func (p *ServerStreamProcessor) releaseRequestProcessor(rp *serverRequestProcessor, id byte) {
	p.mu.Lock()
	if p.processors[id] != rp {
		p.mu.Unlock()
		return
	}
	p.processors[id] = nil
	p.processorsCnt--
	idle := p.processorsCnt == 0
	p.mu.Unlock()

	p.reqPool.release(rp)

	if idle {
		p.mu.Lock()
		p.processorIdle.leave()
		p.mu.Unlock()
	}
}

func (p *ServerStreamProcessor) notifyError() {
	p.StopAsync()
}

// Start begins demultiplexing conn. It returns once the connection
// closes, every spawned request processor finishes, and the writer
// goroutine drains; it then invokes release(p).
func (p *ServerStreamProcessor) Start(conn io.ReadWriteCloser) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		runWriterLoop(conn, p.writerQueue, p.releasePacket, func(err error) {
			p.log.Debug("server stream processor: writer failed", zap.Error(err))
			p.StopAsync()
		})
		close(writerDone)
	}()

	for {
		pk := p.acquirePacket(RoleStart)
		if err := pk.ReadFrom(conn); err != nil {
			p.releasePacket(pk)
			break
		}

		id := pk.ConversationID()
		role := pk.Role()

		p.mu.Lock()
		rp := p.processors[id]
		p.mu.Unlock()

		if role == RoleStart || role == RoleSingle {
			if rp != nil {
				p.releasePacket(pk)
				break
			}
			rp = p.acquireRequestProcessor(id)
			rp.start(id)
		} else if rp == nil {
			p.releasePacket(pk)
			break
		}
		rp.pushPacket(pk)
	}

	p.StopAsync()
	p.stopAllRequestProcessors()

	p.writerQueue <- nil
	<-writerDone

	_ = conn.Close()
	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()

	if p.release != nil {
		p.release(p)
	}
}

func (p *ServerStreamProcessor) stopAllRequestProcessors() {
	p.mu.Lock()
	active := make([]*serverRequestProcessor, 0, p.processorsCnt)
	for _, rp := range p.processors {
		if rp != nil {
			active = append(active, rp)
		}
	}
	p.mu.Unlock()

	for _, rp := range active {
		rp.stopAsync()
	}
	p.processorIdle.wait()
}

// StopAsync disconnects the processor's connection, unwinding Start's read
// loop. Safe to call concurrently and before/after Start returns.
func (p *ServerStreamProcessor) StopAsync() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// serverRequestProcessor runs one request end-to-end: decode request,
// invoke the handler, encode response, over its own packet stream
// (spec.md §4.4, "Response flush").
type serverRequestProcessor struct {
	owner        *ServerStreamProcessor
	packetStream *packetStream
	requestID    byte
}

func newServerRequestProcessor(owner *ServerStreamProcessor) *serverRequestProcessor {
	ps := newPacketStream(owner.writerQueue, owner.acquirePacket, owner.releasePacket)
	ps.readTimeout = owner.cfg.ReadTimeout
	ps.writeTimeout = owner.cfg.WriteTimeout
	return &serverRequestProcessor{
		owner:        owner,
		packetStream: ps,
	}
}

func (rp *serverRequestProcessor) pushPacket(pk *Packet) {
	rp.packetStream.pushPacket(pk)
}

func (rp *serverRequestProcessor) stopAsync() {
	rp.packetStream.disconnect()
}

func (rp *serverRequestProcessor) start(requestID byte) {
	rp.requestID = requestID
	go rp.run()
}

func (rp *serverRequestProcessor) run() {
	rp.packetStream.initialize(rp.requestID)

	err := processRemoteCall(rp.owner.svcCtx, rp.owner.iface, rp.packetStream)

	rp.packetStream.shutdown()
	if err != nil {
		rp.owner.log.Debug("server request processor: remote call failed",
			zap.Uint8("conversation_id", rp.requestID), zap.Error(err))
		rp.owner.notifyError()
	}
	rp.owner.releaseRequestProcessor(rp, rp.requestID)
}

// processRemoteCall reads a method id and request parameters from ps,
// invokes the matching handler, and writes the response. The caller must
// shut ps down only after this returns, before flushing any further, per
// the original's deliberate response-flush ordering: flushing after the
// handler's side effects are durable (not before) prevents a racing
// client from reusing the conversation id while this goroutine still
// holds it.
func processRemoteCall(ctx context.Context, iface *Interface, ps *packetStream) error {
	var idBuf [1]byte
	if err := readFull(ps, idBuf[:]); err != nil {
		return errors.Wrap(err, "mrpc: read method id")
	}

	method, ok := iface.Method(idBuf[0])
	if !ok {
		return errors.Wrapf(ErrUnknownMethod, "mrpc: method id %d", idBuf[0])
	}

	request, err := method.readRequest(&packetStreamReader{ps: ps})
	if err != nil {
		return errors.Wrap(err, "mrpc: read request")
	}

	response, err := method.Handler(ctx, request)
	if err != nil {
		return errors.Wrap(err, "mrpc: handler")
	}

	if err := method.writeResponse(&packetStreamWriter{ps: ps}, response); err != nil {
		return errors.Wrap(err, "mrpc: write response")
	}
	return ps.flush()
}

// packetStreamReader/packetStreamWriter adapt packetStream's fixed-size
// buf read/write calls to the io.Reader/io.Writer interface the wire
// codecs expect.
type packetStreamReader struct{ ps *packetStream }

func (r *packetStreamReader) Read(buf []byte) (int, error) {
	if err := r.ps.read(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

type packetStreamWriter struct{ ps *packetStream }

func (w *packetStreamWriter) Write(buf []byte) (int, error) {
	if err := w.ps.write(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func readFull(ps *packetStream, buf []byte) error {
	return ps.read(buf)
}
