package mrpc

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Connector supplies the byte stream a Client dials for each connection
// attempt. Shutdown makes any blocked or future Connect call return nil,
// which tells the client's connect loop to stop reconnecting (spec.md
// §4.1, "Connector shutdown").
type Connector interface {
	Connect(ctx context.Context) (io.ReadWriteCloser, error)
	Shutdown()
}

// Client repeatedly connects via a Connector and hands the resulting
// stream to a ClientStreamProcessor, reconnecting whenever the
// connection drops, until Stop is called.
type Client struct {
	cfg    *Config
	log    *zap.Logger
	iface  *Interface
	proc   *ClientStreamProcessor
	connector Connector

	wg sync.WaitGroup
}

// NewClient creates a client bound to iface using cfg (DefaultConfig if
// nil).
func NewClient(cfg *Config, log *zap.Logger, iface *Interface) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:   cfg,
		log:   log,
		iface: iface,
		proc:  NewClientStreamProcessor(cfg, log),
	}
}

// Start launches the client's connect loop against connector. Start must
// be called at most once per Client.
func (c *Client) Start(connector Connector) {
	c.connector = connector
	c.wg.Add(1)
	go c.run()
}

func (c *Client) run() {
	defer c.wg.Done()
	ctx := context.Background()
	for {
		stream, err := c.connector.Connect(ctx)
		if err != nil || stream == nil {
			c.log.Debug("client: connector stopped, exiting connect loop", zap.Error(err))
			return
		}
		c.proc.ProcessStream(stream)
	}
}

// Stop shuts the connector down, stops the stream processor, and waits
// for the connect loop to exit.
func (c *Client) Stop() {
	c.connector.Shutdown()
	c.proc.StopAsync()
	c.wg.Wait()
}

// InvokeRPC sends request to methodID and returns the decoded response,
// blocking until the response arrives or the connection drops. If the
// connect loop has no live connection yet, it waits up to cfg.ReadTimeout
// for one before failing with ErrWrongState. It creates and tears down its
// own request stream per call, mirroring mrpc_client_invoke_rpc's per-call
// data lifecycle.
func (c *Client) InvokeRPC(methodID byte, request []*Value) ([]*Value, error) {
	method, ok := c.iface.Method(methodID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "mrpc: method id %d", methodID)
	}

	stream, err := c.proc.CreateRequestStream()
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	for errors.Is(err, ErrWrongState) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		stream, err = c.proc.CreateRequestStream()
	}
	if err != nil {
		return nil, errors.Wrap(err, "mrpc: create request stream")
	}
	defer stream.Close()

	var idBuf [1]byte
	idBuf[0] = methodID
	if _, err := stream.Write(idBuf[:]); err != nil {
		return nil, errors.Wrap(err, "mrpc: write method id")
	}
	if err := method.writeRequest(stream, request); err != nil {
		return nil, errors.Wrap(err, "mrpc: write request")
	}
	if flusher, ok := stream.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return nil, errors.Wrap(err, "mrpc: flush request")
		}
	}

	response, err := method.readResponse(stream)
	if err != nil {
		return nil, errors.Wrap(err, "mrpc: read response")
	}
	return response, nil
}
