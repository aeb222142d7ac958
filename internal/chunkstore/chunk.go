// Package chunkstore implements the content-addressed, reference-counted
// chunk store of spec §3/§4.1.
package chunkstore

import (
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// Chunk is an immutable trajectory fragment identified by ChunkKey. Its
// identity is the key, not its content (§3): the checksum below is purely
// an integrity aid exposed through Checksum, not a content address.
type Chunk struct {
	ChunkKey uint64
	Data     []byte
	checksum [32]byte

	refs *int64
}

// newChunk builds a chunk with a zero reference count: the store's own map
// slot is weak and does not itself hold a strong reference, so every
// caller-visible handle must come from an explicit Ref() call.
func newChunk(key uint64, data []byte) *Chunk {
	sum := blake3.Sum256(data)
	refs := int64(0)
	return &Chunk{ChunkKey: key, Data: data, checksum: sum, refs: &refs}
}

// Checksum returns the BLAKE3-256 digest of the chunk's payload.
func (c *Chunk) Checksum() [32]byte { return c.checksum }

// Ref returns a new shared handle to the same underlying chunk, incrementing
// its reference count. Every holder must eventually call Release.
func (c *Chunk) Ref() *Chunk {
	atomic.AddInt64(c.refs, 1)
	return &Chunk{ChunkKey: c.ChunkKey, Data: c.Data, checksum: c.checksum, refs: c.refs}
}

// Release drops one strong reference. When the last reference drops, onLast
// (registered by the owning Store) runs to evict the entry.
func (c *Chunk) Release(onLast func(key uint64)) {
	if atomic.AddInt64(c.refs, -1) == 0 && onLast != nil {
		onLast(c.ChunkKey)
	}
}
