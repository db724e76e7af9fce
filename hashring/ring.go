// Package hashring implements the consistent-hash ring described in
// spec.md §4.5: a fixed number of buckets (2^order), each holding entries
// sorted by key, with u (the uniform factor) virtual replicas per
// registered value to smooth load distribution.
package hashring

import (
	"sort"

	"github.com/valyala/multiplexing-rpc-sub000/wire"
)

// entry is one virtual replica within a bucket's sorted list.
type entry struct {
	key   uint32
	value any
}

// Ring maps 32-bit keys to registered values with uniform replication. It
// is not safe for concurrent use without external locking; distributed.Client
// guards its embedded Ring with its own mutex.
type Ring struct {
	buckets       [][]entry
	order         int
	uniformFactor int
	count         int
}

// New creates a ring with 2^order buckets (order in [0, 20]) and
// uniformFactor virtual replicas per entry (in [1, 255]).
func New(order, uniformFactor int) *Ring {
	if order < 0 || order > 20 {
		panic("hashring: order must be in [0, 20]")
	}
	if uniformFactor < 1 || uniformFactor > 255 {
		panic("hashring: uniform factor must be in [1, 255]")
	}
	return &Ring{
		buckets:       make([][]entry, 1<<uint(order)),
		order:         order,
		uniformFactor: uniformFactor,
	}
}

func (r *Ring) bucketFor(key uint32) int {
	if r.order == 0 {
		return 0
	}
	return int(key >> uint(32-r.order))
}

func (r *Ring) insert(key uint32, value any) {
	b := r.bucketFor(key)
	bucket := r.buckets[b]
	i := sort.Search(len(bucket), func(i int) bool { return bucket[i].key >= key })
	bucket = append(bucket, entry{})
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = entry{key: key, value: value}
	r.buckets[b] = bucket
	r.count++
}

func (r *Ring) remove(key uint32) {
	b := r.bucketFor(key)
	bucket := r.buckets[b]
	i := sort.Search(len(bucket), func(i int) bool { return bucket[i].key >= key })
	if i >= len(bucket) || bucket[i].key != key {
		panic("hashring: remove of a key that was never added")
	}
	r.buckets[b] = append(bucket[:i], bucket[i+1:]...)
	r.count--
}

// replicaKeys produces the uniformFactor iterated-hash replica keys for
// key, per spec.md §4.5: k0 = key; k[i+1] = hash32(k[i], one 32-bit word
// of k[i]).
func (r *Ring) replicaKeys(key uint32) []uint32 {
	keys := make([]uint32, r.uniformFactor)
	k := key
	for i := 0; i < r.uniformFactor; i++ {
		keys[i] = k
		k = wire.HashWords(k, k)
	}
	return keys
}

// Add inserts uniformFactor replicas of value under key's iterated-hash
// sequence.
func (r *Ring) Add(key uint32, value any) {
	for _, k := range r.replicaKeys(key) {
		r.insert(k, value)
	}
	if r.count < 0 {
		panic("hashring: entry count overflow")
	}
}

// Remove reproduces the same iterated-hash sequence used by Add and
// removes each replica. Every replica must be present; removing a key
// that was never added panics.
func (r *Ring) Remove(key uint32) {
	if r.count <= 0 {
		panic("hashring: remove from an empty ring")
	}
	for _, k := range r.replicaKeys(key) {
		r.remove(k)
	}
}

// RemoveAll drops every bucket and zeros the entry count.
func (r *Ring) RemoveAll() {
	for i := range r.buckets {
		r.buckets[i] = nil
	}
	r.count = 0
}

// Get finds the smallest key >= query in query's bucket; on miss it scans
// buckets cyclically upward, wrapping the query key to 0 once past the
// final bucket. The ring must be non-empty.
func (r *Ring) Get(query uint32) any {
	if r.count == 0 {
		panic("hashring: get on an empty ring")
	}

	b := r.bucketFor(query)
	buckets := len(r.buckets)
	for i := 0; i < buckets; i++ {
		bucket := r.buckets[b]
		idx := sort.Search(len(bucket), func(i int) bool { return bucket[i].key >= query })
		if idx < len(bucket) {
			return bucket[idx].value
		}
		b++
		if b == buckets {
			b = 0
			query = 0
		}
	}
	panic("hashring: get failed to terminate despite non-empty ring")
}

// IsEmpty reports whether the ring has zero entries.
func (r *Ring) IsEmpty() bool { return r.count == 0 }

// Len returns the number of entries (replicas) currently in the ring.
func (r *Ring) Len() int { return r.count }
