package mrpc

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// MaxStreamProcessors bounds how many concurrent connections a Server
// serves at once; beyond this the accept loop blocks acquiring a
// processor from the pool (spec.md §4.4).
const MaxStreamProcessors = 256

// Acceptor supplies inbound connections to a Server. Shutdown makes any
// blocked or future Accept call return nil, telling the accept loop to
// stop (spec.md §4.4, "Acceptor shutdown").
type Acceptor interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, error)
	Shutdown()
}

// Server accepts connections via an Acceptor and serves each one with a
// pooled ServerStreamProcessor.
type Server struct {
	cfg      *Config
	log      *zap.Logger
	iface    *Interface
	svcCtx   context.Context
	acceptor Acceptor

	procPool *objectPool[*ServerStreamProcessor]
	// sem bounds concurrently in-flight connections to the size of
	// procPool, so the accept loop blocks once every processor is busy
	// instead of racing objectPool's fixed-capacity panic.
	sem *semaphore.Weighted

	mu       sync.Mutex
	active   map[*ServerStreamProcessor]struct{}
	idleGate *idleGate

	done chan struct{}
}

// NewServer creates a server bound to iface/svcCtx using cfg
// (DefaultConfig if nil).
func NewServer(cfg *Config, log *zap.Logger, iface *Interface, svcCtx context.Context) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		iface:    iface,
		svcCtx:   svcCtx,
		sem:      semaphore.NewWeighted(int64(MaxStreamProcessors)),
		active:   make(map[*ServerStreamProcessor]struct{}),
		idleGate: newIdleGate(),
		done:     make(chan struct{}),
	}
	s.procPool = newObjectPool(MaxStreamProcessors, func() *ServerStreamProcessor {
		return NewServerStreamProcessor(cfg, log, iface, svcCtx, s.releaseProcessor)
	}, func(*ServerStreamProcessor) {})
	return s
}

// acquireProcessor blocks until a processor slot is available (the
// accept-loop backpressure point, spec.md §4.4's "Acquire fails" edge
// case made non-fatal: the loop waits instead of erroring).
func (s *Server) acquireProcessor(ctx context.Context) *ServerStreamProcessor {
	_ = s.sem.Acquire(ctx, 1)
	p := s.procPool.acquire()
	s.mu.Lock()
	s.active[p] = struct{}{}
	if len(s.active) == 1 {
		s.idleGate.enter()
	}
	s.mu.Unlock()
	return p
}

func (s *Server) releaseProcessor(p *ServerStreamProcessor) {
	s.mu.Lock()
	delete(s.active, p)
	idle := len(s.active) == 0
	s.mu.Unlock()

	s.procPool.release(p)
	s.sem.Release(1)

	if idle {
		s.idleGate.leave()
	}
}

// Start launches the server's accept loop against acceptor. Start must
// be called at most once per Server.
func (s *Server) Start(acceptor Acceptor) {
	s.acceptor = acceptor
	go s.run()
}

func (s *Server) run() {
	ctx := context.Background()
	for {
		conn, err := s.acceptor.Accept(ctx)
		if err != nil || conn == nil {
			s.log.Debug("server: acceptor stopped, exiting accept loop", zap.Error(err))
			break
		}

		p := s.acquireProcessor(ctx)
		go p.Start(conn)
	}

	s.stopAllProcessors()
	close(s.done)
}

func (s *Server) stopAllProcessors() {
	s.mu.Lock()
	inFlight := make([]*ServerStreamProcessor, 0, len(s.active))
	for p := range s.active {
		inFlight = append(inFlight, p)
	}
	s.mu.Unlock()

	for _, proc := range inFlight {
		proc.StopAsync()
	}
	s.idleGate.wait()
}

// Stop shuts the acceptor down, waits for the accept loop to exit, and
// waits for every in-flight connection to finish.
func (s *Server) Stop() {
	s.acceptor.Shutdown()
	<-s.done
}
