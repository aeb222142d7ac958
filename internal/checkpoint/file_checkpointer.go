package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/table"
)

// FileCheckpointer is the reference Checkpointer: a SQLite metadata index
// (sqlite_index.go) plus a bolt-backed chunk blob store (bolt_blobs.go),
// both rooted under one directory.
type FileCheckpointer struct {
	dir   string
	index *metaIndex
	blobs *blobStore
}

// Open creates or opens a FileCheckpointer rooted at dir.
func Open(dir string) (*FileCheckpointer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	idx, err := openMetaIndex(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, err
	}
	blobs, err := openBlobStore(filepath.Join(dir, "blobs.bolt"))
	if err != nil {
		idx.Close()
		return nil, err
	}
	return &FileCheckpointer{dir: dir, index: idx, blobs: blobs}, nil
}

// Save writes every referenced chunk payload to the blob store, records the
// table snapshots in the metadata index, prunes down to keep, and returns
// a path identifying this checkpoint (§4.7).
func (f *FileCheckpointer) Save(tables []TableSnapshot, chunksOf func(chunkKey uint64) ([]byte, bool), keep int) (string, error) {
	seen := make(map[uint64]struct{})
	for _, t := range tables {
		for _, it := range t.Items {
			for _, c := range it.Chunks {
				if _, ok := seen[c.ChunkKey]; ok {
					continue
				}
				seen[c.ChunkKey] = struct{}{}
				data, ok := chunksOf(c.ChunkKey)
				if !ok {
					return "", fmt.Errorf("checkpoint: chunk %d referenced by snapshot but not resident", c.ChunkKey)
				}
				if err := f.blobs.Put(c.ChunkKey, data); err != nil {
					return "", err
				}
			}
		}
	}

	now := time.Now().UTC()
	id, err := f.index.Record(f.dir, now, tables)
	if err != nil {
		return "", err
	}

	if keep > 0 {
		keptKeys, err := f.index.PruneExcept(keep)
		if err != nil {
			return "", fmt.Errorf("checkpoint: prune index: %w", err)
		}
		if _, err := f.blobs.DeleteExcept(keptKeys); err != nil {
			return "", fmt.Errorf("checkpoint: prune blobs: %w", err)
		}
	}

	return fmt.Sprintf("%s#%d", f.dir, id), nil
}

// LoadLatest restores the most recent checkpoint (§4.9 step 1).
func (f *FileCheckpointer) LoadLatest(store *chunkstore.Store, tables map[string]table.Table) error {
	row, err := f.index.Latest()
	if err != nil {
		return err
	}
	return f.restore(row, store, tables)
}

// LoadFallbackCheckpoint restores the oldest recorded checkpoint, tried
// when LoadLatest reports ErrNotFound (§4.9 step 1).
func (f *FileCheckpointer) LoadFallbackCheckpoint(store *chunkstore.Store, tables map[string]table.Table) error {
	row, err := f.index.Oldest()
	if err != nil {
		return err
	}
	return f.restore(row, store, tables)
}

func (f *FileCheckpointer) restore(row checkpointRow, store *chunkstore.Store, tables map[string]table.Table) error {
	for _, ts := range row.Tables {
		dst, ok := tables[ts.Name]
		if !ok {
			continue
		}
		for _, is := range ts.Items {
			chunks := make([]table.ChunkRef, 0, len(is.Chunks))
			for _, cs := range is.Chunks {
				data, found, err := f.blobs.Get(cs.ChunkKey)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("checkpoint: chunk %d missing from blob store", cs.ChunkKey)
				}
				chunk, err := store.Insert(cs.ChunkKey, data)
				if err != nil {
					return fmt.Errorf("checkpoint: restore chunk %d: %w", cs.ChunkKey, err)
				}
				chunks = append(chunks, table.ChunkRef{Chunk: chunk, Offset: cs.Offset, Length: cs.Length})
			}
			item := &table.Item{
				ItemKey:      is.ItemKey,
				Chunks:       chunks,
				Priority:     is.Priority,
				TimesSampled: is.TimesSampled,
			}
			if err := dst.InsertOrAssign(item); err != nil {
				return fmt.Errorf("checkpoint: restore item %d into %s: %w", is.ItemKey, ts.Name, err)
			}
		}
	}
	return nil
}

// DebugString summarizes the checkpoint store for logs/health output.
func (f *FileCheckpointer) DebugString() string {
	return fmt.Sprintf("checkpointer: dir=%s checkpoints=%d", f.dir, f.index.Count())
}

// Close releases the index and blob store handles.
func (f *FileCheckpointer) Close() error {
	err1 := f.index.Close()
	err2 := f.blobs.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
