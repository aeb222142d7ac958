// Package table defines the Table collaborator (§3, §6) and a reference
// in-memory implementation, MemTable, supplementing the external-only
// contract the core RPC layer depends on.
package table

import (
	"context"
	"time"

	"github.com/quantarax/replaybuffer/internal/chunkstore"
)

// ChunkRef mirrors api.ChunkSlice but resolved to a live chunk handle, the
// form an Item carries once every referenced chunk is known-live (§3).
type ChunkRef struct {
	Chunk  *chunkstore.Chunk
	Offset int64
	Length int64
}

// Item is a table's internal record: a stable key, the chunks it
// references (already resolved and ref-counted), a priority and sampling
// counters (§3).
type Item struct {
	ItemKey      uint64
	Chunks       []ChunkRef
	Priority     float64
	TimesSampled int64
}

// PriorityUpdate mirrors api.PriorityUpdate (§4.4).
type PriorityUpdate struct {
	ItemKey  uint64
	Priority float64
}

// SampledItem is what SampleFlexibleBatch returns: a shared view of an
// item plus sampling metadata as of the moment it was drawn (§3).
type SampledItem struct {
	Item        *Item
	Probability float64
	TableSize   int64
	RateLimited bool
}

// Info is the snapshot returned by a table's Info method and surfaced
// verbatim by ServerInfo (§4.8).
type Info struct {
	Name                     string
	CurrentSize              int64
	NumEpisodes              int64
	NumDeletedEpisodes       int64
	NumUniqueSamplesInserted int64
}

// Table is the external collaborator spec.md §3/§6 names without requiring
// an implementation: a named prioritized item collection with sampling and
// a rate-limiter. Every method must be safe under concurrent use.
type Table interface {
	Name() string
	InsertOrAssign(item *Item) error
	MutateItems(updates []PriorityUpdate, deleteKeys []uint64) error
	Reset() error
	// SampleFlexibleBatch draws up to n items, blocking on the configured
	// rate limiter for at most timeout (no bound if timeout < 0). Returns
	// context.DeadlineExceeded if the wait is not satisfied in time.
	SampleFlexibleBatch(ctx context.Context, n int64, timeout time.Duration) ([]SampledItem, error)
	DefaultFlexibleBatchSize() int64
	Info() Info
	DebugString() string
	Close() error
}
