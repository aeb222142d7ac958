package checkpoint

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/klauspost/compress/zstd"
)

var bucketBlobs = []byte("chunk_blobs")

// blobStore is a durable key-value store for checkpointed chunk payloads,
// keyed by chunk_key. Payloads are zstd-compressed before being written,
// since raw trajectory bytes compress well and checkpoints are meant to be
// compact on disk.
type blobStore struct {
	db      *bolt.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func openBlobStore(path string) (*blobStore, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open blob store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketBlobs)
		return e
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: init blob bucket: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: new zstd decoder: %w", err)
	}
	return &blobStore{db: db, encoder: enc, decoder: dec}, nil
}

func (b *blobStore) Close() error {
	b.decoder.Close()
	return b.db.Close()
}

func chunkBlobKey(chunkKey uint64) []byte {
	return []byte(fmt.Sprintf("%020d", chunkKey))
}

// Put compresses and stores data under chunkKey, overwriting any prior value.
func (b *blobStore) Put(chunkKey uint64, data []byte) error {
	compressed := b.encoder.EncodeAll(data, nil)
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBlobs)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		return bk.Put(chunkBlobKey(chunkKey), compressed)
	})
}

// Get retrieves and decompresses the payload stored under chunkKey.
func (b *blobStore) Get(chunkKey uint64) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBlobs)
		if bk == nil {
			return nil
		}
		v := bk.Get(chunkBlobKey(chunkKey))
		if v == nil {
			return nil
		}
		found = true
		decoded, err := b.decoder.DecodeAll(v, nil)
		if err != nil {
			return fmt.Errorf("checkpoint: decompress chunk %d: %w", chunkKey, err)
		}
		out = decoded
		return nil
	})
	return out, found, err
}

// DeleteExcept removes every blob whose key is not in keep, used when
// pruning old checkpoints down to the `keep` most recent (§4.7).
func (b *blobStore) DeleteExcept(keep map[uint64]struct{}) (int, error) {
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketBlobs)
		if bk == nil {
			return bolt.ErrBucketNotFound
		}
		c := bk.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			var chunkKey uint64
			if _, err := fmt.Sscanf(string(k), "%020d", &chunkKey); err != nil {
				continue
			}
			if _, ok := keep[chunkKey]; !ok {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := bk.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
