package mrpc

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

type tcpAcceptor struct {
	ln net.Listener
}

func (a *tcpAcceptor) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := a.ln.Accept()
	if err != nil {
		return nil, nil
	}
	return conn, nil
}

func (a *tcpAcceptor) Shutdown() { _ = a.ln.Close() }

type tcpConnector struct {
	addr string

	mu      sync.Mutex
	stopped bool
}

func (c *tcpConnector) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return nil, nil
	}
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, nil
	}
	return conn, nil
}

func (c *tcpConnector) Shutdown() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

const (
	echoMethodID = 1
	blobMethodID = 2
)

func buildEchoInterface(t *testing.T) *Interface {
	iface, err := NewInterface(
		&Method{
			ID:             echoMethodID,
			Name:           "Echo",
			RequestParams:  []ParamSpec{{Kind: KindString, IsKey: true}},
			ResponseParams: []ParamSpec{{Kind: KindString}},
			Handler: func(ctx context.Context, req []*Value) ([]*Value, error) {
				return []*Value{{Kind: KindString, Str: req[0].Str}}, nil
			},
		},
		&Method{
			ID:             blobMethodID,
			Name:           "EchoBlob",
			RequestParams:  []ParamSpec{{Kind: KindBlob, IsKey: true}},
			ResponseParams: []ParamSpec{{Kind: KindBlob}},
			Handler: func(ctx context.Context, req []*Value) ([]*Value, error) {
				b, err := req[0].Blob.Bytes()
				if err != nil {
					return nil, err
				}
				return []*Value{{Kind: KindBlob, Blob: wire.NewBlobFromBytes(b)}}, nil
			},
		},
	)
	require.NoError(t, err)
	return iface
}

func startEchoServer(t *testing.T, iface *Interface) (addr string, server *Server) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server = NewServer(nil, nil, iface, context.Background())
	server.Start(&tcpAcceptor{ln: ln})
	return ln.Addr().String(), server
}

func TestEchoSmallString(t *testing.T) {
	iface := buildEchoInterface(t)
	addr, server := startEchoServer(t, iface)
	defer server.Stop()

	client := NewClient(nil, nil, iface)
	connector := &tcpConnector{addr: addr}
	client.Start(connector)
	defer client.Stop()

	response, err := client.InvokeRPC(echoMethodID, []*Value{{Kind: KindString, Str: "hello, mrpc"}})
	require.NoError(t, err)
	assert.Equal(t, "hello, mrpc", response[0].Str)
}

func TestEchoLargeBlob(t *testing.T) {
	iface := buildEchoInterface(t)
	addr, server := startEchoServer(t, iface)
	defer server.Stop()

	client := NewClient(nil, nil, iface)
	connector := &tcpConnector{addr: addr}
	client.Start(connector)
	defer client.Stop()

	payload := bytes.Repeat([]byte{0x37}, 1<<20) // 1 MiB
	response, err := client.InvokeRPC(blobMethodID, []*Value{{Kind: KindBlob, Blob: wire.NewBlobFromBytes(payload)}})
	require.NoError(t, err)

	got, err := response[0].Blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMultiplexedConcurrentRequests(t *testing.T) {
	iface := buildEchoInterface(t)
	addr, server := startEchoServer(t, iface)
	defer server.Stop()

	client := NewClient(nil, nil, iface)
	connector := &tcpConnector{addr: addr}
	client.Start(connector)
	defer client.Stop()

	const n = 50
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.InvokeRPC(echoMethodID, []*Value{{Kind: KindString, Str: "req"}})
			if err == nil && resp[0].Str != "req" {
				err = assert.AnError
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestClientLifecycleStartStopStart(t *testing.T) {
	iface := buildEchoInterface(t)
	addr, server := startEchoServer(t, iface)
	defer server.Stop()

	client := NewClient(nil, nil, iface)
	connector := &tcpConnector{addr: addr}
	client.Start(connector)

	_, err := client.InvokeRPC(echoMethodID, []*Value{{Kind: KindString, Str: "first"}})
	require.NoError(t, err)

	client.Stop()

	client2 := NewClient(nil, nil, iface)
	connector2 := &tcpConnector{addr: addr}
	client2.Start(connector2)
	defer client2.Stop()

	_, err = client2.InvokeRPC(echoMethodID, []*Value{{Kind: KindString, Str: "second"}})
	require.NoError(t, err)
}

func TestUnknownMethodIDFails(t *testing.T) {
	iface := buildEchoInterface(t)
	addr, server := startEchoServer(t, iface)
	defer server.Stop()

	client := NewClient(nil, nil, iface)
	connector := &tcpConnector{addr: addr}
	client.Start(connector)
	defer client.Stop()

	_, err := client.InvokeRPC(200, nil)
	assert.Error(t, err)
}
