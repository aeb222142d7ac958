// Package checkpoint implements the Checkpointer external collaborator
// spec §6 names only by contract: LoadLatest, LoadFallbackCheckpoint, Save,
// DebugString. FileCheckpointer is the reference implementation; it
// indexes snapshot metadata in SQLite (sqlite_index.go) and stores chunk
// payloads in a bolt-backed blob store (bolt_blobs.go). S3Checkpointer
// (s3_checkpoint.go) wraps it with an optional upload step.
package checkpoint

import (
	"errors"

	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/table"
)

// ErrNotFound is returned by LoadLatest/LoadFallbackCheckpoint when no
// snapshot is available; §4.9 treats this as "start empty", not an error.
var ErrNotFound = errors.New("checkpoint: not found")

// ItemSnapshot is the serialized form of one table.Item (§4.7).
type ItemSnapshot struct {
	ItemKey      uint64
	Priority     float64
	TimesSampled int64
	Chunks       []ChunkRefSnapshot
}

// ChunkRefSnapshot is the serialized form of one table.ChunkRef.
type ChunkRefSnapshot struct {
	ChunkKey uint64
	Offset   int64
	Length   int64
}

// TableSnapshot is one table's items as of the moment Save was called.
type TableSnapshot struct {
	Name  string
	Items []ItemSnapshot
}

// Checkpointer is the external collaborator of spec §6.
type Checkpointer interface {
	// LoadLatest restores chunks into store and items into tables from the
	// most recent checkpoint. Returns ErrNotFound if none exists.
	LoadLatest(store *chunkstore.Store, tables map[string]table.Table) error
	// LoadFallbackCheckpoint is tried when LoadLatest returns ErrNotFound
	// (§4.9 step 1); the reference implementation restores the oldest
	// checkpoint recorded in the same index instead of the newest one.
	LoadFallbackCheckpoint(store *chunkstore.Store, tables map[string]table.Table) error
	// Save snapshots tables, retaining only the `keep` most recent
	// checkpoints, and returns the path written (§4.7).
	Save(tables []TableSnapshot, chunksOf func(chunkKey uint64) ([]byte, bool), keep int) (string, error)
	DebugString() string
	Close() error
}

// SnapshotTables converts the live registry's tables into TableSnapshot
// values and collects the set of chunk keys referenced, for the service
// layer to pass to Save (§4.7: "collect a snapshot of the current tables
// mapping").
func SnapshotTables(tables []table.Table) ([]TableSnapshot, map[uint64]struct{}) {
	out := make([]TableSnapshot, 0, len(tables))
	keys := make(map[uint64]struct{})
	for _, t := range tables {
		snapper, ok := t.(interface{ Snapshot() []table.Item })
		if !ok {
			out = append(out, TableSnapshot{Name: t.Name()})
			continue
		}
		items := make([]ItemSnapshot, 0, len(snapper.Snapshot()))
		for _, it := range snapper.Snapshot() {
			chunks := make([]ChunkRefSnapshot, 0, len(it.Chunks))
			for _, c := range it.Chunks {
				keys[c.Chunk.ChunkKey] = struct{}{}
				chunks = append(chunks, ChunkRefSnapshot{ChunkKey: c.Chunk.ChunkKey, Offset: c.Offset, Length: c.Length})
			}
			items = append(items, ItemSnapshot{ItemKey: it.ItemKey, Priority: it.Priority, TimesSampled: it.TimesSampled, Chunks: chunks})
		}
		out = append(out, TableSnapshot{Name: t.Name(), Items: items})
	}
	return out, keys
}
