package wire

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashWords folds startValue and a sequence of 32-bit words into a single
// 32-bit hash. It is the Go counterpart of the original's
// ff_hash_uint32(start_value, buf, len) and is used for two distinct
// purposes in this module:
//
//  1. the consistent-hash ring's replica-key iteration (hashring.Ring.Add),
//     where k[i+1] = HashWords(k[i], k[i]);
//  2. the primitive per-value hash functions below (HashUint32, HashInt32,
//     …) used to compute a request's hash key (method.GetRequestHash).
//
// ff_hash_uint32 itself lived in the "ff" fiber-framework library, which is
// out of scope for this module (spec.md §1) and was not present in the
// retrieved original sources (only its call sites were) — see spec.md §8's
// note on hash test vectors. HashWords is therefore a from-scratch,
// deterministic 32-bit mix built on xxhash rather than a bit-exact port;
// it satisfies every property spec.md §8 actually tests (determinism,
// uniform distribution across a ring, no observable collisions for nearby
// keys) without claiming numeric parity with the unavailable original.
func HashWords(startValue uint32, words ...uint32) uint32 {
	buf := make([]byte, 4+4*len(words))
	binary.LittleEndian.PutUint32(buf[:4], startValue)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], w)
	}
	return uint32(xxhash.Sum64(buf))
}

// HashBytes folds an arbitrary byte slice into startValue, used for
// char-array/wchar-array/blob hashing.
func HashBytes(startValue uint32, data []byte) uint32 {
	h := xxhash.New()
	var seedBuf [4]byte
	binary.LittleEndian.PutUint32(seedBuf[:], startValue)
	_, _ = h.Write(seedBuf[:])
	_, _ = h.Write(data)
	return uint32(h.Sum64())
}

// HashUint32 hashes a single uint32 value.
func HashUint32(data uint32, startValue uint32) uint32 {
	return HashWords(startValue, data)
}

// HashInt32 hashes a single int32 value.
func HashInt32(data int32, startValue uint32) uint32 {
	return HashWords(startValue, uint32(data))
}

// HashUint64 hashes a uint64 value as two 32-bit words, low word first.
func HashUint64(data uint64, startValue uint32) uint32 {
	return HashWords(startValue, uint32(data), uint32(data>>32))
}

// HashInt64 hashes an int64 value as two 32-bit words, low word first.
func HashInt64(data int64, startValue uint32) uint32 {
	return HashWords(startValue, uint32(data), uint32(data>>32))
}
