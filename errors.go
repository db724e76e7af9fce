// Package mrpc implements a binary multiplexed RPC runtime: a packet-framed
// virtual-stream transport, a client stream processor driving up to 256
// concurrent in-flight requests over one byte stream, and the mirrored
// server stream processor that demultiplexes inbound packets to per-request
// handlers.
package mrpc

import "errors"

// Sentinel errors. The protocol exposes a single coarse "failure" kind per
// §7 of the specification; these sentinels let callers distinguish the
// handful of cases that matter operationally (errors.Is) while the wrapped
// chain (via github.com/pkg/errors) keeps the underlying cause for logs.
var (
	// ErrTimeout is returned when a packet-stream read, write or flush
	// does not complete within its timeout.
	ErrTimeout = errors.New("mrpc: timeout")

	// ErrClosed names an operation attempted after shutdown. No function in
	// this module currently returns it.
	ErrClosed = errors.New("mrpc: closed")

	// ErrProtocol covers framing errors: invalid role sequence, a packet
	// whose declared length exceeds the 4095-byte cap, or a non-zero
	// empty-response byte. A packet for an unknown conversation id ends the
	// stream processor's read loop without producing this error.
	ErrProtocol = errors.New("mrpc: protocol error")

	// ErrGoAway is returned by CreateRequestStream when every conversation
	// id (Config.MaxConversations of them) is held by an open request
	// stream. Ids are recycled as streams close.
	ErrGoAway = errors.New("mrpc: all conversation ids are in use")

	// ErrWrongState is returned when an operation is attempted against a
	// stream processor that is not in the state it requires (e.g.
	// CreateRequestStream while not WORKING). This is a caller-contract
	// violation per §7 and would be an assertion failure in the original.
	ErrWrongState = errors.New("mrpc: stream processor is not in the required state")

	// ErrUnknownMethod is returned when a request names a method id not
	// present in the service interface.
	ErrUnknownMethod = errors.New("mrpc: unknown method id")
)
