package chunkstore

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
)

// Store is the content-addressed, reference-counted ChunkStore of §4.1.
// Insert is idempotent on key and thread-safe; the map entry is held
// weakly — it is evicted the instant the last strong *Chunk reference
// drops, per §3's "storage entry is weakly held" design note.
type Store struct {
	mu     sync.Mutex
	chunks map[uint64]*Chunk
	closed bool

	onEvict  func(key uint64, bytes int)
	onInsert func(bytes int)
	onDedup  func()
}

// NewStore creates an empty chunk store.
func NewStore() *Store {
	return &Store{chunks: make(map[uint64]*Chunk)}
}

// OnEvict registers a callback invoked whenever a chunk's last strong
// reference is released and its entry is reclaimed, with the evicted
// chunk's payload size. Used by the service layer to drive the
// replaybuffer_chunk_evictions_total / chunk store size-bytes metrics and
// the eviction log line.
func (s *Store) OnEvict(fn func(key uint64, bytes int)) { s.onEvict = fn }

// OnInsert registers a callback invoked whenever a genuinely new chunk is
// stored (not a dedup hit against an existing key), with its payload size.
// Used by the service layer to drive the chunk store size/bytes gauges.
func (s *Store) OnInsert(fn func(bytes int)) { s.onInsert = fn }

// OnDedup registers a callback invoked whenever Insert is handed a key that
// was already present, driving replaybuffer_chunks_deduplicated_total.
func (s *Store) OnDedup(fn func()) { s.onDedup = fn }

// ErrClosed is returned by Insert once the store has been closed.
var ErrClosed = fmt.Errorf("chunk store has been closed")

// Insert stores chunk if chunk_key is new, or returns the existing shared
// chunk (discarding data) if the key is already present (§4.1). Insert
// after Close returns ErrClosed.
func (s *Store) Insert(key uint64, data []byte) (*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if existing, ok := s.chunks[key]; ok {
		if s.onDedup != nil {
			s.onDedup()
		}
		return existing.Ref(), nil
	}

	c := newChunk(key, data)
	s.chunks[key] = c
	// The map's own slot is weak: it does not hold a strong reference of
	// its own (newChunk starts at refs==0), so the Ref returned below
	// (refs==1) is the only strong holder until further Ref() calls are made.
	if s.onInsert != nil {
		s.onInsert(len(data))
	}
	return c.Ref(), nil
}

// evict drops the weak slot for key once the owning chunk's strong count
// reaches zero. Safe to call even if the key was already replaced.
func (s *Store) evict(key uint64) {
	s.mu.Lock()
	bytes := 0
	if c, ok := s.chunks[key]; ok {
		bytes = len(c.Data)
	}
	delete(s.chunks, key)
	s.mu.Unlock()
	if s.onEvict != nil {
		s.onEvict(key, bytes)
	}
}

// Release drops one strong reference to c, evicting its store slot if this
// was the last one. Callers (pending_chunks maps, in-flight samples) must
// call Release exactly once per handle they hold.
func (s *Store) Release(c *Chunk) {
	c.Release(s.evict)
}

// Close transitions the store to a closed state; subsequent Insert calls
// fail with ErrClosed. In-flight shared chunks remain valid until their
// last reference drops (§3).
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of chunks currently resident.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// DebugString summarizes store occupancy for the health/debug surface.
func (s *Store) DebugString() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totalBytes uint64
	for _, c := range s.chunks {
		totalBytes += uint64(len(c.Data))
	}
	return fmt.Sprintf("chunkstore: %d chunks, %s, closed=%v",
		len(s.chunks), humanize.Bytes(totalBytes), s.closed)
}
