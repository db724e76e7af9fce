package mrpc

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config tunes the resource bounds and timeouts of a Client or Server.
// Packet capacity itself is not configurable: MaxPacketPayload is a wire
// protocol constant, not a deployment knob.
type Config struct {
	// MaxConversations is the number of concurrent in-flight requests a
	// single client stream processor may hold. The protocol's one-byte
	// conversation id caps this at 256. The server side does not read it.
	MaxConversations int `yaml:"max_conversations"`

	// ClientPacketPoolSize is the client stream processor's packet pool
	// size. Must be at least 2*MaxConversations to preclude deadlock (one
	// packet in flight on the reader side, one on the writer side, per
	// conversation).
	ClientPacketPoolSize int `yaml:"client_packet_pool_size"`

	// ServerPacketPoolSize is the server stream processor's packet pool
	// size.
	ServerPacketPoolSize int `yaml:"server_packet_pool_size"`

	// ClientWriterQueueSize bounds the client stream processor's shared
	// writer queue.
	ClientWriterQueueSize int `yaml:"client_writer_queue_size"`

	// ServerWriterQueueSize bounds the server stream processor's shared
	// writer queue.
	ServerWriterQueueSize int `yaml:"server_writer_queue_size"`

	// ServerProcessorPoolSize bounds how many request processors a single
	// server connection runs at once. The number of concurrent connections
	// a Server serves is bounded by MaxStreamProcessors instead.
	ServerProcessorPoolSize int `yaml:"server_processor_pool_size"`

	// ReadTimeout bounds a packet stream's blocking read.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds a packet stream's blocking write/flush.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the values named by spec.md §3–§5: 256 concurrent
// conversations, a client packet pool of 512 (2x the conversation cap), a
// server packet pool of 1000, a 512-entry client writer queue, a
// 1000-entry server writer queue, a 256-entry per-connection server
// request-processor pool, and 2-second read/write timeouts.
func DefaultConfig() *Config {
	return &Config{
		MaxConversations:        256,
		ClientPacketPoolSize:    512,
		ServerPacketPoolSize:    1000,
		ClientWriterQueueSize:   512,
		ServerWriterQueueSize:   1000,
		ServerProcessorPoolSize: 256,
		ReadTimeout:             DefaultReadTimeout,
		WriteTimeout:            DefaultWriteTimeout,
	}
}

// Validate checks the invariants the rest of the package relies on.
func (c *Config) Validate() error {
	if c.MaxConversations <= 0 || c.MaxConversations > 256 {
		return errors.Errorf("mrpc: max_conversations must be in (0, 256], got %d", c.MaxConversations)
	}
	if c.ClientPacketPoolSize < 2*c.MaxConversations {
		return errors.Errorf("mrpc: client_packet_pool_size (%d) must be >= 2*max_conversations (%d) to preclude deadlock",
			c.ClientPacketPoolSize, 2*c.MaxConversations)
	}
	if c.ServerPacketPoolSize <= 0 {
		return errors.New("mrpc: server_packet_pool_size must be positive")
	}
	if c.ClientWriterQueueSize <= 0 || c.ServerWriterQueueSize <= 0 {
		return errors.New("mrpc: writer queue sizes must be positive")
	}
	if c.ServerProcessorPoolSize <= 0 {
		return errors.New("mrpc: server_processor_pool_size must be positive")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("mrpc: read/write timeouts must be positive")
	}
	return nil
}

// LoadConfigYAML reads a YAML-encoded Config from path, applying
// DefaultConfig for any field left zero.
func LoadConfigYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "mrpc: read config %s", path)
	}

	cfg := *DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "mrpc: parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
