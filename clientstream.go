package mrpc

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// requestSlot pairs a packet stream with the conversation id it was last
// initialized with; it is the Go counterpart of the original's
// request_stream struct (spec.md §3, "Client request slot"). Slots are
// pooled and reused across conversations.
type requestSlot struct {
	packetStream   *packetStream
	conversationID byte
}

type clientProcessorState int

const (
	clientStopped clientProcessorState = iota
	clientWorking
	clientStopInitiated
)

// ClientStreamProcessor owns one connection and multiplexes up to
// cfg.MaxConversations concurrent request streams over it: a shared
// writer queue/goroutine, a conversation-id bitmap, a pool of request
// slots, a pool of packets, and an active-slot table indexed by
// conversation id (spec.md §4.3).
type ClientStreamProcessor struct {
	cfg    *Config
	log    *zap.Logger
	onStop func()

	mu          sync.Mutex
	state       clientProcessorState
	conn        io.ReadWriteCloser
	writerQueue chan *Packet
	writerDone  chan struct{}

	bitmap       *bitmap
	slotPool     *objectPool[*requestSlot]
	packetPool   *objectPool[*Packet]
	activeSlots  []*requestSlot
	activeCount  int
	activeIdle   *idleGate
	pendingStop  bool
}

// NewClientStreamProcessor creates a processor using cfg (DefaultConfig if
// nil). The processor starts STOPPED and must be driven by ProcessStream.
func NewClientStreamProcessor(cfg *Config, log *zap.Logger) *ClientStreamProcessor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &ClientStreamProcessor{
		cfg:         cfg,
		log:         log,
		writerQueue: make(chan *Packet, cfg.ClientWriterQueueSize),
		bitmap:      newBitmap(cfg.MaxConversations),
		activeSlots: make([]*requestSlot, cfg.MaxConversations),
		activeIdle:  newIdleGate(),
	}
	p.packetPool = newObjectPool(cfg.ClientPacketPoolSize, newPacket, func(*Packet) {})
	p.slotPool = newObjectPool(cfg.MaxConversations, func() *requestSlot {
		ps := newPacketStream(p.writerQueue, p.acquirePacket, p.releasePacket)
		ps.readTimeout = cfg.ReadTimeout
		ps.writeTimeout = cfg.WriteTimeout
		return &requestSlot{packetStream: ps}
	}, func(*requestSlot) {})
	return p
}

func (p *ClientStreamProcessor) acquirePacket(role Role) *Packet {
	pk := p.packetPool.acquire()
	pk.Reset()
	pk.SetRole(role)
	return pk
}

func (p *ClientStreamProcessor) releasePacket(pk *Packet) {
	p.packetPool.release(pk)
}

// CreateRequestStream acquires a conversation id and returns a virtual
// byte stream delegating Read/Write/Flush/Close to the underlying packet
// stream. Only valid while the processor is WORKING.
func (p *ClientStreamProcessor) CreateRequestStream() (io.ReadWriteCloser, error) {
	p.mu.Lock()
	if p.state != clientWorking {
		p.mu.Unlock()
		return nil, ErrWrongState
	}

	id := p.bitmap.acquire()
	if id < 0 {
		p.mu.Unlock()
		return nil, ErrGoAway
	}

	slot := p.slotPool.acquire()
	slot.conversationID = byte(id)
	slot.packetStream.initialize(byte(id))
	p.activeSlots[id] = slot
	p.activeCount++
	if p.activeCount == 1 {
		p.activeIdle.enter()
	}
	p.mu.Unlock()

	return &clientRequestStream{processor: p, slot: slot}, nil
}

func (p *ClientStreamProcessor) releaseSlot(slot *requestSlot) {
	p.mu.Lock()
	id := slot.conversationID
	if p.activeSlots[id] != slot {
		p.mu.Unlock()
		return
	}
	p.activeSlots[id] = nil
	p.mu.Unlock()

	slot.packetStream.shutdown()
	p.slotPool.release(slot)

	p.mu.Lock()
	p.bitmap.release(int(id))
	p.activeCount--
	if p.activeCount == 0 {
		p.activeIdle.leave()
	}
	p.mu.Unlock()
}

// ProcessStream drives conn until it fails or StopAsync is called. If a
// stop was requested before this call (StopAsync while STOPPED), it
// returns immediately and the pending stop is consumed.
func (p *ClientStreamProcessor) ProcessStream(conn io.ReadWriteCloser) {
	p.mu.Lock()
	if p.state == clientStopInitiated {
		p.state = clientStopped
		p.pendingStop = false
		p.mu.Unlock()
		return
	}
	p.state = clientWorking
	p.conn = conn
	p.writerDone = make(chan struct{})
	p.mu.Unlock()

	writerErrCh := make(chan error, 1)
	go func() {
		var firstErr error
		runWriterLoop(conn, p.writerQueue, p.releasePacket, func(err error) {
			if firstErr == nil {
				firstErr = err
			}
			p.StopAsync()
		})
		writerErrCh <- firstErr
		close(p.writerDone)
	}()

	for {
		pk := p.acquirePacket(RoleStart)
		if err := pk.ReadFrom(conn); err != nil {
			p.releasePacket(pk)
			p.log.Debug("client stream processor: read failed", zap.Error(err))
			break
		}

		p.mu.Lock()
		slot := p.activeSlots[pk.ConversationID()]
		p.mu.Unlock()
		if slot == nil {
			p.log.Debug("client stream processor: packet for unknown conversation", zap.Uint8("id", pk.ConversationID()))
			p.releasePacket(pk)
			break
		}
		slot.packetStream.pushPacket(pk)
	}

	p.StopAsync()
	p.disconnectAllSlots()
	p.activeIdle.wait()

	p.writerQueue <- nil
	<-p.writerDone

	p.mu.Lock()
	p.conn = nil
	p.state = clientStopped
	p.mu.Unlock()

	if p.onStop != nil {
		p.onStop()
	}
}

func (p *ClientStreamProcessor) disconnectAllSlots() {
	p.mu.Lock()
	slots := make([]*requestSlot, 0, p.activeCount)
	for _, s := range p.activeSlots {
		if s != nil {
			slots = append(slots, s)
		}
	}
	p.mu.Unlock()

	for _, s := range slots {
		s.packetStream.disconnect()
	}
}

// StopAsync requests the processor to stop. From WORKING it disconnects
// the underlying connection so the read loop unwinds; from STOPPED it
// records a pending stop consumed by the next ProcessStream call; from
// STOP_INITIATED it is idempotent.
func (p *ClientStreamProcessor) StopAsync() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case clientWorking:
		p.state = clientStopInitiated
		if p.conn != nil {
			_ = p.conn.Close()
		}
	case clientStopped:
		p.state = clientStopInitiated
		p.pendingStop = true
	case clientStopInitiated:
		// already stopping/stopped-pending; nothing to do.
	}
}

// IsWorking reports whether the processor currently owns a live
// connection.
func (p *ClientStreamProcessor) IsWorking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == clientWorking
}

// clientRequestStream is the virtual byte stream handed back by
// CreateRequestStream. Close releases the underlying slot back to the
// processor's pools.
type clientRequestStream struct {
	processor *ClientStreamProcessor
	slot      *requestSlot
	closeOnce sync.Once
}

func (s *clientRequestStream) Read(buf []byte) (int, error) {
	if err := s.slot.packetStream.read(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (s *clientRequestStream) Write(buf []byte) (int, error) {
	if err := s.slot.packetStream.write(buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (s *clientRequestStream) Flush() error {
	return s.slot.packetStream.flush()
}

func (s *clientRequestStream) Disconnect() {
	s.slot.packetStream.disconnect()
}

func (s *clientRequestStream) Close() error {
	s.closeOnce.Do(func() {
		s.processor.releaseSlot(s.slot)
	})
	return nil
}
