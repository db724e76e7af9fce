// Package distributed implements a consistent-hash routed pool of mRPC
// clients, driven by an external Controller that streams add/remove
// membership changes (spec.md §7, "Distributed client").
package distributed

import "github.com/valyala/multiplexing-rpc-sub000"

// MessageType identifies one membership change yielded by a Controller.
type MessageType int

const (
	// AddClient carries both Key and Connector.
	AddClient MessageType = iota
	// RemoveClient carries only Key.
	RemoveClient
	// RemoveAllClients carries neither.
	RemoveAllClients
	// Stop must be returned for every call once the controller has
	// been shut down or before it has been initialized.
	Stop
)

// Message is one membership change together with the data relevant to
// its MessageType.
type Message struct {
	Type      MessageType
	Key       uint64
	Connector mrpc.Connector
}

// Controller feeds a Client membership changes. GetNextMessage may block
// until the next change is available; after Shutdown it must return Stop
// on every subsequent call.
type Controller interface {
	Initialize()
	Shutdown()
	GetNextMessage() Message
}
