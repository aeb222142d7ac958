package checkpoint

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/table"
)

func TestSaveThenLoadLatestRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cp, err := Open(filepath.Join(dir, "cp"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cp.Close()

	store := chunkstore.NewStore()
	chunk, err := store.Insert(7, []byte("trajectory-A"))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tables := []TableSnapshot{
		{
			Name: "t",
			Items: []ItemSnapshot{
				{ItemKey: 100, Priority: 1.0, Chunks: []ChunkRefSnapshot{{ChunkKey: 7, Length: int64(len(chunk.Data))}}},
			},
		},
	}
	path, err := cp.Save(tables, func(key uint64) ([]byte, bool) {
		if key == 7 {
			return chunk.Data, true
		}
		return nil, false
	}, 1)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path == "" {
		t.Fatal("want non-empty checkpoint path")
	}

	restoredStore := chunkstore.NewStore()
	dst := table.NewMemTable("t", 0, 64, 4)
	if err := cp.LoadLatest(restoredStore, map[string]table.Table{"t": dst}); err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if dst.Info().CurrentSize != 1 {
		t.Fatalf("want 1 restored item, got %d", dst.Info().CurrentSize)
	}
}

func TestLoadLatestNotFoundOnEmptyStore(t *testing.T) {
	dir := t.TempDir()
	cp, err := Open(filepath.Join(dir, "cp"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cp.Close()

	store := chunkstore.NewStore()
	err = cp.LoadLatest(store, map[string]table.Table{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
