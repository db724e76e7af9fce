package wire

import (
	"io"

	"github.com/pkg/errors"
)

// MaxCharArrayLen and MaxWCharArrayLen bound char-array / wchar-array
// lengths (spec.md §6); MaxStringLen bounds string length. These differ
// from MaxPacketPayload (4095): a single logical value can span many
// packets once handed to a packetStream.
const (
	MaxCharArrayLen  = 16383
	MaxWCharArrayLen = 16383
	MaxStringLen     = 65536

	// WCharMax bounds an individual wide-character code point.
	WCharMax = 0x10FFFF
)

// WriteCharArray writes a varint length followed by the raw bytes.
func WriteCharArray(w io.Writer, data []byte) error {
	if len(data) > MaxCharArrayLen {
		return errors.Errorf("wire: char array length %d exceeds %d", len(data), MaxCharArrayLen)
	}
	if err := WriteUvarint(w, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return errors.Wrap(err, "wire: write char array")
}

// ReadCharArray reads a length-prefixed byte array.
func ReadCharArray(r io.Reader) ([]byte, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > MaxCharArrayLen {
		return nil, errors.Errorf("wire: char array length %d exceeds %d", n, MaxCharArrayLen)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "wire: read char array")
		}
	}
	return buf, nil
}

// WriteWCharArray writes a varint length followed by len(data) varint-
// encoded code points.
func WriteWCharArray(w io.Writer, data []rune) error {
	if len(data) > MaxWCharArrayLen {
		return errors.Errorf("wire: wchar array length %d exceeds %d", len(data), MaxWCharArrayLen)
	}
	if err := WriteUvarint(w, uint64(len(data))); err != nil {
		return err
	}
	for _, r := range data {
		if uint32(r) > WCharMax {
			return errors.Errorf("wire: wchar %d exceeds wchar-max %d", r, WCharMax)
		}
		if err := WriteUvarint(w, uint64(r)); err != nil {
			return err
		}
	}
	return nil
}

// ReadWCharArray reads a length-prefixed array of varint code points.
func ReadWCharArray(r io.Reader) ([]rune, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > MaxWCharArrayLen {
		return nil, errors.Errorf("wire: wchar array length %d exceeds %d", n, MaxWCharArrayLen)
	}
	out := make([]rune, n)
	for i := range out {
		v, err := ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if v > WCharMax {
			return nil, errors.Errorf("wire: wchar %d exceeds wchar-max %d", v, WCharMax)
		}
		out[i] = rune(v)
	}
	return out, nil
}

// WriteString writes a varint length followed by len(s) varint code
// points (UTF-32-like encoding per spec.md §6, not UTF-8).
func WriteString(w io.Writer, s string) error {
	runes := []rune(s)
	if len(runes) > MaxStringLen {
		return errors.Errorf("wire: string length %d exceeds %d", len(runes), MaxStringLen)
	}
	if err := WriteUvarint(w, uint64(len(runes))); err != nil {
		return err
	}
	for _, r := range runes {
		if err := WriteUvarint(w, uint64(r)); err != nil {
			return err
		}
	}
	return nil
}

// ReadString reads a length-prefixed array of varint code points back into
// a string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", errors.Errorf("wire: string length %d exceeds %d", n, MaxStringLen)
	}
	runes := make([]rune, n)
	for i := range runes {
		v, err := ReadUvarint(r)
		if err != nil {
			return "", err
		}
		runes[i] = rune(v)
	}
	return string(runes), nil
}
