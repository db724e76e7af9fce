package mrpc

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

// ParamKind identifies which primitive codec a parameter uses.
type ParamKind int

const (
	KindUint32 ParamKind = iota
	KindInt32
	KindUint64
	KindInt64
	KindCharArray
	KindWCharArray
	KindString
	KindBlob
)

// Value holds one decoded parameter value. Exactly one of the typed
// fields is meaningful, selected by Kind — the Go analogue of the
// original's per-type mrpc_param vtable (spec.md §9).
type Value struct {
	Kind  ParamKind
	U32   uint32
	I32   int32
	U64   uint64
	I64   int64
	Bytes []byte
	Runes []rune
	Str   string
	Blob  *wire.Blob
}

// EncodeTo serializes v using the codec named by its Kind.
func (v *Value) EncodeTo(w io.Writer) error {
	switch v.Kind {
	case KindUint32:
		return wire.WriteUint32(w, v.U32)
	case KindInt32:
		return wire.WriteInt32(w, v.I32)
	case KindUint64:
		return wire.WriteUint64(w, v.U64)
	case KindInt64:
		return wire.WriteInt64(w, v.I64)
	case KindCharArray:
		return wire.WriteCharArray(w, v.Bytes)
	case KindWCharArray:
		return wire.WriteWCharArray(w, v.Runes)
	case KindString:
		return wire.WriteString(w, v.Str)
	case KindBlob:
		return wire.WriteBlob(w, v.Blob)
	default:
		return errors.Errorf("mrpc: unknown param kind %d", v.Kind)
	}
}

// DecodeValue reads one value of the given kind from r.
func DecodeValue(kind ParamKind, r io.Reader) (*Value, error) {
	switch kind {
	case KindUint32:
		x, err := wire.ReadUint32(r)
		return &Value{Kind: kind, U32: x}, err
	case KindInt32:
		x, err := wire.ReadInt32(r)
		return &Value{Kind: kind, I32: x}, err
	case KindUint64:
		x, err := wire.ReadUint64(r)
		return &Value{Kind: kind, U64: x}, err
	case KindInt64:
		x, err := wire.ReadInt64(r)
		return &Value{Kind: kind, I64: x}, err
	case KindCharArray:
		b, err := wire.ReadCharArray(r)
		return &Value{Kind: kind, Bytes: b}, err
	case KindWCharArray:
		rs, err := wire.ReadWCharArray(r)
		return &Value{Kind: kind, Runes: rs}, err
	case KindString:
		s, err := wire.ReadString(r)
		return &Value{Kind: kind, Str: s}, err
	case KindBlob:
		b, err := wire.ReadBlob(r)
		return &Value{Kind: kind, Blob: b}, err
	default:
		return nil, errors.Errorf("mrpc: unknown param kind %d", kind)
	}
}

// Hash folds v into startValue using the same per-type hash primitive the
// original dispatches through its param vtable.
func (v *Value) Hash(startValue uint32) uint32 {
	switch v.Kind {
	case KindUint32:
		return wire.HashUint32(v.U32, startValue)
	case KindInt32:
		return wire.HashInt32(v.I32, startValue)
	case KindUint64:
		return wire.HashUint64(v.U64, startValue)
	case KindInt64:
		return wire.HashInt64(v.I64, startValue)
	case KindCharArray:
		return wire.HashBytes(startValue, v.Bytes)
	case KindWCharArray:
		buf := make([]byte, 4*len(v.Runes))
		for i, r := range v.Runes {
			buf[4*i] = byte(r)
			buf[4*i+1] = byte(r >> 8)
			buf[4*i+2] = byte(r >> 16)
			buf[4*i+3] = byte(r >> 24)
		}
		return wire.HashBytes(startValue, buf)
	case KindString:
		return wire.HashBytes(startValue, []byte(v.Str))
	case KindBlob:
		b, err := v.Blob.Bytes()
		if err != nil {
			return startValue
		}
		return wire.HashBytes(startValue, b)
	default:
		return startValue
	}
}

// ParamSpec describes one declared request or response parameter. IsKey
// only matters for request parameters: GetRequestHash skips any parameter
// whose IsKey is false, exactly as mrpc_data_get_request_hash does
// (spec.md §9, "Open questions").
type ParamSpec struct {
	Kind  ParamKind
	IsKey bool
}

// Handler is the user-supplied service function invoked by a server
// request processor after decoding a request (spec.md §6, "Service
// handler table").
type Handler func(ctx context.Context, request []*Value) ([]*Value, error)

// Method declares one RPC: its ordered request/response parameter types
// and the handler that serves it.
type Method struct {
	ID             byte
	Name           string
	RequestParams  []ParamSpec
	ResponseParams []ParamSpec
	Handler        Handler
}

func (m *Method) readRequest(r io.Reader) ([]*Value, error) {
	return readValues(m.RequestParams, r)
}

func (m *Method) writeRequest(w io.Writer, values []*Value) error {
	return writeValues(m.RequestParams, values, w)
}

// readResponse reads a response for m from r: if m declares no response
// parameters, a single zero byte is expected instead (spec.md §6).
func (m *Method) readResponse(r io.Reader) ([]*Value, error) {
	if len(m.ResponseParams) == 0 {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, errors.Wrap(err, "mrpc: read empty response byte")
		}
		if b[0] != 0 {
			return nil, errors.Wrapf(ErrProtocol, "mrpc: non-zero empty response byte %d", b[0])
		}
		return nil, nil
	}
	return readValues(m.ResponseParams, r)
}

func (m *Method) writeResponse(w io.Writer, values []*Value) error {
	if len(m.ResponseParams) == 0 {
		_, err := w.Write([]byte{0})
		return errors.Wrap(err, "mrpc: write empty response byte")
	}
	return writeValues(m.ResponseParams, values, w)
}

func readValues(specs []ParamSpec, r io.Reader) ([]*Value, error) {
	values := make([]*Value, len(specs))
	for i, spec := range specs {
		v, err := DecodeValue(spec.Kind, r)
		if err != nil {
			return nil, errors.Wrapf(err, "mrpc: decode parameter %d", i)
		}
		values[i] = v
	}
	return values, nil
}

func writeValues(specs []ParamSpec, values []*Value, w io.Writer) error {
	if len(values) != len(specs) {
		return errors.Errorf("mrpc: expected %d parameters, got %d", len(specs), len(values))
	}
	for i, v := range values {
		if err := v.EncodeTo(w); err != nil {
			return errors.Wrapf(err, "mrpc: encode parameter %d", i)
		}
	}
	return nil
}

// GetRequestHash computes the request's hash key by folding every request
// parameter whose IsKey bit is set, in declared order, starting from seed.
// Parameters with IsKey == false never participate, even though the
// method declares them — reimplemented exactly per spec.md §9.
func (m *Method) GetRequestHash(request []*Value, seed uint32) uint32 {
	h := seed
	for i, spec := range m.RequestParams {
		if !spec.IsKey {
			continue
		}
		h = request[i].Hash(h)
	}
	return h
}

// Interface is a bounded table (<=256) of methods, keyed by method id.
type Interface struct {
	methods [256]*Method
}

// NewInterface builds an Interface from a set of methods, which must have
// distinct ids.
func NewInterface(methods ...*Method) (*Interface, error) {
	iface := &Interface{}
	for _, m := range methods {
		if iface.methods[m.ID] != nil {
			return nil, errors.Errorf("mrpc: duplicate method id %d", m.ID)
		}
		iface.methods[m.ID] = m
	}
	return iface, nil
}

// Method looks up a method by id.
func (iface *Interface) Method(id byte) (*Method, bool) {
	m := iface.methods[id]
	return m, m != nil
}
