// Package wire implements the primitive value codecs carried over an mRPC
// conversation: unsigned/signed varints, char arrays, wide-char arrays,
// strings, and blobs (spec.md §6), plus the 32-bit hashing primitive used
// by the consistent-hash ring and by GetRequestHash.
//
// spec.md lists these codecs as external collaborators of the core
// (generated from interface-compiler method descriptors in the original).
// This module has no such code generator, so the codecs are implemented
// directly and exercised by the method/interface machinery in the mrpc
// package.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrOverflow is returned when a varint would need more than 10 bytes
// (the maximum for a 64-bit value) or a decoded value exceeds its target
// type's range.
var ErrOverflow = errors.New("wire: varint overflow")

// WriteUvarint writes v to w as an unsigned LEB128 varint (7 payload bits
// per byte, continuation in the high bit) — bit-for-bit what
// encoding/binary.PutUvarint produces, which is why this package defers to
// the standard library for the primitive rather than hand-rolling a
// third-party LEB128 dependency: there is no pack library that improves on
// it for a single-value, non-vectorized encode.
func WriteUvarint(w io.Writer, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return errors.Wrap(err, "wire: write uvarint")
}

// ReadUvarint reads an unsigned LEB128 varint one byte at a time, since an
// arbitrary io.Reader offers no ReadByte guarantee.
func ReadUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	var b [1]byte
	for i := 0; i < binary.MaxVarintLen64; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, errors.Wrap(err, "wire: read uvarint")
		}
		if b[0] < 0x80 {
			if i == binary.MaxVarintLen64-1 && b[0] > 1 {
				return 0, ErrOverflow
			}
			return x | uint64(b[0])<<s, nil
		}
		x |= uint64(b[0]&0x7f) << s
		s += 7
	}
	return 0, ErrOverflow
}

// zigzagEncode64 maps a signed value onto an unsigned one so that small
// magnitudes (positive or negative) serialize to few bytes.
func zigzagEncode64(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func zigzagDecode64(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// WriteUint64 / ReadUint64 / WriteInt64 / ReadInt64 and their 32-bit
// counterparts implement spec.md §6's primitive codec contracts.

func WriteUint64(w io.Writer, v uint64) error { return WriteUvarint(w, v) }

func ReadUint64(r io.Reader) (uint64, error) { return ReadUvarint(r) }

func WriteInt64(w io.Writer, v int64) error {
	return WriteUvarint(w, zigzagEncode64(v))
}

func ReadInt64(r io.Reader) (int64, error) {
	u, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return zigzagDecode64(u), nil
}

const maxUint32Value = (uint64(1) << 32) - 1

func WriteUint32(w io.Writer, v uint32) error {
	return WriteUvarint(w, uint64(v))
}

func ReadUint32(r io.Reader) (uint32, error) {
	u, err := ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	if u > maxUint32Value {
		return 0, errors.Wrapf(ErrOverflow, "wire: value %d does not fit in uint32", u)
	}
	return uint32(u), nil
}

func WriteInt32(w io.Writer, v int32) error {
	u := uint32(v<<1) ^ uint32(v>>31)
	return WriteUvarint(w, uint64(u))
}

func ReadInt32(r io.Reader) (int32, error) {
	u, err := ReadUint32(r)
	if err != nil {
		return 0, err
	}
	return int32(u>>1) ^ -int32(u&1), nil
}
