package distributed

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/valyala/multiplexing-rpc-sub000"
	"github.com/valyala/multiplexing-rpc-sub000/hashring"
	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

const (
	acquireClientTrySleep   = 100 * time.Millisecond
	acquireClientMaxTries   = 3
	consistentHashOrder     = 8
	consistentHashUniform   = 10
	u64HashStartValue       = 0
)

// Client routes RPCs across a dynamic set of mRPC clients keyed by a
// uint64 identity and placed on a consistent-hash ring, so that removing
// one key reroutes only the requests that hashed to it (spec.md §7).
type Client struct {
	cfg   *mrpc.Config
	iface *mrpc.Interface

	mu       sync.Mutex
	wrappers map[uint64]*clientWrapper
	ring     *hashring.Ring
}

// NewClient creates a routing client for iface using cfg (DefaultConfig
// if nil).
func NewClient(cfg *mrpc.Config, iface *mrpc.Interface) *Client {
	if cfg == nil {
		cfg = mrpc.DefaultConfig()
	}
	return &Client{
		cfg:      cfg,
		iface:    iface,
		wrappers: make(map[uint64]*clientWrapper),
		ring:     hashring.New(consistentHashOrder, consistentHashUniform),
	}
}

func hashKey(key uint64) uint32 {
	return wire.HashWords(u64HashStartValue, uint32(key), uint32(key>>32))
}

// AddClient registers a new client under key, connecting through
// connector. Re-adding an already-registered key is a no-op.
func (c *Client) AddClient(key uint64, connector mrpc.Connector) {
	c.mu.Lock()
	if _, exists := c.wrappers[key]; exists {
		c.mu.Unlock()
		return
	}

	w := newClientWrapper(c.cfg, c.iface)
	c.wrappers[key] = w
	hashKeyValue := hashKey(key)
	c.ring.Add(hashKeyValue, w)
	c.mu.Unlock()

	w.start(connector)
}

// RemoveClient unregisters and stops the client under key. Removing an
// unknown key is a no-op.
func (c *Client) RemoveClient(key uint64) {
	c.mu.Lock()
	w, exists := c.wrappers[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(c.wrappers, key)
	c.ring.Remove(hashKey(key))
	c.mu.Unlock()

	w.stop()
}

// RemoveAllClients unregisters and stops every currently-registered
// client. Each wrapper's stop (wait for its in-flight acquirers to drain,
// then disconnect) runs concurrently, since they share no state with
// each other.
func (c *Client) RemoveAllClients() {
	c.mu.Lock()
	wrappers := make([]*clientWrapper, 0, len(c.wrappers))
	for k, w := range c.wrappers {
		wrappers = append(wrappers, w)
		delete(c.wrappers, k)
	}
	c.ring.RemoveAll()
	c.mu.Unlock()

	var g errgroup.Group
	for _, w := range wrappers {
		w := w
		g.Go(func() error {
			w.stop()
			return nil
		})
	}
	_ = g.Wait()
}

// AcquireClient picks the client whose ring key is closest (clockwise)
// to requestHash and returns it along with a cookie that must be passed
// to ReleaseClient. If the ring is empty it retries a few times with a
// short sleep before giving up, matching the original's tolerance for a
// brief window with no registered clients.
func (c *Client) AcquireClient(requestHash uint32) (*mrpc.Client, interface{}, error) {
	tries := acquireClientMaxTries
	for {
		c.mu.Lock()
		empty := c.ring.IsEmpty()
		if !empty {
			w := c.ring.Get(requestHash).(*clientWrapper)
			c.mu.Unlock()
			return w.acquire(), w, nil
		}
		c.mu.Unlock()

		tries--
		if tries == 0 {
			return nil, nil, errors.New("mrpc: no clients registered in distributed client")
		}
		time.Sleep(acquireClientTrySleep)
	}
}

// ReleaseClient returns a client acquired via AcquireClient, identified
// by the cookie that call returned.
func (c *Client) ReleaseClient(cookie interface{}) {
	w := cookie.(*clientWrapper)
	w.release()
}

// Run drives the client by consuming messages from controller until it
// yields Stop. Intended to be run in its own goroutine.
func Run(c *Client, controller Controller) {
	controller.Initialize()
	for {
		msg := controller.GetNextMessage()
		switch msg.Type {
		case AddClient:
			c.AddClient(msg.Key, msg.Connector)
		case RemoveClient:
			c.RemoveClient(msg.Key)
		case RemoveAllClients:
			c.RemoveAllClients()
		case Stop:
			return
		}
	}
}
