package table

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/quantarax/replaybuffer/internal/chunkstore"
)

// MemTable is the reference Table implementation (SPEC_FULL.md §3):
// sampling is uniform-by-priority, a weighted draw over the current item
// set, which is a simple stand-in for a pluggable distribution.
type MemTable struct {
	name string

	mu     sync.RWMutex
	items  map[uint64]*Item
	closed bool

	numEpisodes              int64
	numDeletedEpisodes       int64
	numUniqueSamplesInserted int64

	defaultBatchSize int64
	limiter          *rate.Limiter
	notify           chan struct{}

	rngMu sync.Mutex
	rng   *rand.Rand

	releaseChunk func(*chunkstore.Chunk)
}

// SetChunkReleaser registers the callback used to release an item's chunk
// references when it leaves the table (delete, Reset, or overwrite by
// InsertOrAssign), so the ChunkStore can reclaim them (§3, §5).
func (t *MemTable) SetChunkReleaser(fn func(*chunkstore.Chunk)) {
	t.releaseChunk = fn
}

func (t *MemTable) releaseItemChunks(it *Item) {
	if t.releaseChunk == nil || it == nil {
		return
	}
	for _, c := range it.Chunks {
		t.releaseChunk(c.Chunk)
	}
}

// NewMemTable builds a table named name. samplesPerSecond/burst parameterize
// the rate.Limiter backing SampleFlexibleBatch's blocking-with-timeout
// behavior (§4.5); a zero samplesPerSecond means unlimited.
func NewMemTable(name string, samplesPerSecond float64, burst int, defaultBatchSize int64) *MemTable {
	var lim *rate.Limiter
	if samplesPerSecond <= 0 {
		lim = rate.NewLimiter(rate.Inf, burst)
	} else {
		lim = rate.NewLimiter(rate.Limit(samplesPerSecond), burst)
	}
	return &MemTable{
		name:             name,
		items:            make(map[uint64]*Item),
		defaultBatchSize: defaultBatchSize,
		limiter:          lim,
		notify:           make(chan struct{}, 1),
		rng:              rand.New(rand.NewSource(int64(hashName(name)))),
	}
}

func hashName(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func (t *MemTable) Name() string { return t.name }

func (t *MemTable) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// InsertOrAssign inserts a new item or replaces an existing one with the
// same key (§3 Table contract).
func (t *MemTable) InsertOrAssign(item *Item) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("table %q is closed", t.name)
	}
	if old, exists := t.items[item.ItemKey]; !exists {
		t.numEpisodes++
		t.numUniqueSamplesInserted++
	} else {
		t.releaseItemChunks(old)
	}
	t.items[item.ItemKey] = item
	t.mu.Unlock()
	t.wake()
	return nil
}

// MutateItems applies priority updates and deletions (§4.4).
func (t *MemTable) MutateItems(updates []PriorityUpdate, deleteKeys []uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range updates {
		if it, ok := t.items[u.ItemKey]; ok {
			it.Priority = u.Priority
		}
	}
	for _, k := range deleteKeys {
		if it, ok := t.items[k]; ok {
			delete(t.items, k)
			t.numDeletedEpisodes++
			t.releaseItemChunks(it)
		}
	}
	return nil
}

// Reset drops every item from the table (§4.4).
func (t *MemTable) Reset() error {
	t.mu.Lock()
	t.numDeletedEpisodes += int64(len(t.items))
	old := t.items
	t.items = make(map[uint64]*Item)
	t.mu.Unlock()
	for _, it := range old {
		t.releaseItemChunks(it)
	}
	return nil
}

// DefaultFlexibleBatchSize returns the batch size used when a SampleStream
// request carries the AutoSelect sentinel (§4.5).
func (t *MemTable) DefaultFlexibleBatchSize() int64 { return t.defaultBatchSize }

// SampleFlexibleBatch draws up to n items without replacement, weighted by
// priority, blocking for at most timeout until at least one item is
// available and the rate limiter admits the batch (§4.5, §8 property 6).
// timeout < 0 blocks indefinitely.
func (t *MemTable) SampleFlexibleBatch(ctx context.Context, n int64, timeout time.Duration) ([]SampledItem, error) {
	waitCtx := ctx
	if timeout >= 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rateLimited := false
	for {
		t.mu.RLock()
		avail := len(t.items)
		t.mu.RUnlock()
		if avail > 0 {
			break
		}
		rateLimited = true
		select {
		case <-waitCtx.Done():
			return nil, waitCtx.Err()
		case <-t.notify:
		}
	}

	if err := t.limiter.WaitN(waitCtx, 1); err != nil {
		// rate.Limiter reports a wait that cannot finish before the
		// deadline with its own error; surface it as a timeout.
		if timeout >= 0 && ctx.Err() == nil {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if int64(len(t.items)) < n {
		n = int64(len(t.items))
	}

	keys := make([]uint64, 0, len(t.items))
	weights := make([]float64, 0, len(t.items))
	var total float64
	for k, it := range t.items {
		w := it.Priority
		if w <= 0 {
			w = 1e-9
		}
		keys = append(keys, k)
		weights = append(weights, w)
		total += w
	}

	out := make([]SampledItem, 0, n)
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	for i := int64(0); i < n && len(keys) > 0; i++ {
		idx, prob := weightedPick(t.rng, weights, total)
		key := keys[idx]
		it := t.items[key]
		it.TimesSampled++

		out = append(out, SampledItem{
			Item:        it,
			Probability: prob,
			TableSize:   int64(len(t.items)),
			RateLimited: rateLimited,
		})

		total -= weights[idx]
		keys[idx] = keys[len(keys)-1]
		weights[idx] = weights[len(weights)-1]
		keys = keys[:len(keys)-1]
		weights = weights[:len(weights)-1]
	}
	return out, nil
}

func weightedPick(rng *rand.Rand, weights []float64, total float64) (int, float64) {
	if total <= 0 {
		return rng.Intn(len(weights)), 1.0 / float64(len(weights))
	}
	r := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if r <= cum {
			return i, w / total
		}
	}
	last := len(weights) - 1
	return last, weights[last] / total
}

// Info returns a consistent snapshot of the table's counters (§4.8, §9 Open
// Question 3): the lock is held for the duration of the read.
func (t *MemTable) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Info{
		Name:                     t.name,
		CurrentSize:              int64(len(t.items)),
		NumEpisodes:              t.numEpisodes,
		NumDeletedEpisodes:       t.numDeletedEpisodes,
		NumUniqueSamplesInserted: t.numUniqueSamplesInserted,
	}
}

// DebugString summarizes the table for logs/health output.
func (t *MemTable) DebugString() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var bytes uint64
	for _, it := range t.items {
		for _, c := range it.Chunks {
			bytes += uint64(len(c.Chunk.Data))
		}
	}
	return fmt.Sprintf("table %q: %d items, %s referenced, closed=%v",
		t.name, len(t.items), humanize.Bytes(bytes), t.closed)
}

// Snapshot returns a copy of every item currently in the table, used by
// internal/checkpoint to build a TableSnapshot (§4.7).
func (t *MemTable) Snapshot() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Item, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, *it)
	}
	return out
}

// Close marks the table closed. Outstanding SampledItems remain valid.
func (t *MemTable) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
