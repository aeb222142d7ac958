// Package service implements the RPC surface of spec §6 against the
// ChunkStore, Registry and Checkpointer collaborators: the insert handler
// (§4.3), sample handler (§4.5/§4.6), MutatePriorities/Reset (§4.4),
// Checkpoint (§4.7), ServerInfo (§4.8) and the in-process handshake
// (§4.10).
package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/checkpoint"
	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/observability"
	"github.com/quantarax/replaybuffer/internal/registry"
	"github.com/quantarax/replaybuffer/internal/table"
)

// Service implements api.ReplayBufferServer (§3 "Service state").
type Service struct {
	registry     *registry.Registry
	store        *chunkstore.Store
	checkpointer checkpoint.Checkpointer

	pid int32

	tablesStateIDHi uint64
	tablesStateIDLo uint64

	log     *observability.Logger
	metrics *observability.Metrics

	handshake *handshakeHolders
}

// New builds a Service. Call Initialize before serving RPCs.
func New(store *chunkstore.Store, checkpointer checkpoint.Checkpointer, log *observability.Logger, metrics *observability.Metrics) *Service {
	s := &Service{
		registry:     registry.New(),
		handshake:    newHandshakeHolders(),
		store:        store,
		checkpointer: checkpointer,
		pid:          int32(os.Getpid()),
		log:          log,
		metrics:      metrics,
	}
	store.OnEvict(func(key uint64, bytes int) {
		if s.log != nil {
			s.log.ChunkEvicted(key)
		}
		if s.metrics != nil {
			s.metrics.ChunkEvictionsTotal.Inc()
			s.metrics.ChunkStoreSize.Dec()
			s.metrics.ChunkStoreBytes.Sub(float64(bytes))
		}
	})
	store.OnInsert(func(bytes int) {
		if s.metrics != nil {
			s.metrics.ChunkStoreSize.Inc()
			s.metrics.ChunkStoreBytes.Add(float64(bytes))
		}
	})
	store.OnDedup(func() {
		if s.metrics != nil {
			s.metrics.ChunksDeduplicatedTotal.Inc()
		}
	})
	return s
}

var _ api.ReplayBufferServer = (*Service)(nil)

// Initialize installs tables, attempting a checkpoint restore first, and
// assigns a fresh tables_state_id (§4.9).
func (s *Service) Initialize(ctx context.Context, tables []table.Table) error {
	byName := make(map[string]table.Table, len(tables))
	for _, t := range tables {
		byName[t.Name()] = t
		if mt, ok := t.(*table.MemTable); ok {
			mt.SetChunkReleaser(s.store.Release)
		}
	}

	if s.checkpointer != nil {
		err := s.checkpointer.LoadLatest(s.store, byName)
		if err == checkpoint.ErrNotFound {
			err = s.checkpointer.LoadFallbackCheckpoint(s.store, byName)
			if err == checkpoint.ErrNotFound {
				err = nil
			}
		}
		if err != nil {
			return fmt.Errorf("service: checkpoint restore failed: %w", err)
		}
	}

	for _, t := range tables {
		s.registry.Install(t)
	}
	s.registry.Seal()

	hi, lo, err := newTablesStateID()
	if err != nil {
		return fmt.Errorf("service: generate tables_state_id: %w", err)
	}
	s.tablesStateIDHi, s.tablesStateIDLo = hi, lo
	return nil
}

// newTablesStateID draws a v4 UUID's 128 bits of randomness as two uint64
// halves, the Go-idiomatic drop-in for "two uniform 64-bit PRNG draws
// combined into a 128-bit value" (§4.9 step 3).
func newTablesStateID() (hi, lo uint64, err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return 0, 0, err
	}
	b := id[:]
	return binary.BigEndian.Uint64(b[0:8]), binary.BigEndian.Uint64(b[8:16]), nil
}

// Close shuts the chunk store and every installed table down.
func (s *Service) Close() error {
	s.store.Close()
	if s.checkpointer != nil {
		if err := s.checkpointer.Close(); err != nil {
			return err
		}
	}
	return s.registry.Close()
}
