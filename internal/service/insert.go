package service

import (
	"context"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/ingest"
	"github.com/quantarax/replaybuffer/internal/table"
	"github.com/quantarax/replaybuffer/internal/validation"
)

// InsertStream implements the bidi ingest protocol of §4.3: chunks, then an
// optional item referencing them, then retention of pending_chunks to
// exactly the item's keep_chunk_keys.
func (s *Service) InsertStream(stream api.InsertStream_Server) error {
	ctx := stream.Context()
	pending := make(map[uint64]*chunkstore.Chunk)
	defer releaseAll(s.store, pending)

	q := ingest.NewQueue[*api.InsertStreamRequest]()
	return ingest.Run(ctx, q,
		func(ctx context.Context, push func(*api.InsertStreamRequest) error) error {
			for {
				req, err := stream.Recv()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := push(req); err != nil {
					return nil
				}
				if s.metrics != nil {
					s.metrics.InsertQueueDepth.Set(1)
				}
			}
		},
		func(ctx context.Context, req *api.InsertStreamRequest) error {
			if s.metrics != nil {
				s.metrics.InsertQueueDepth.Set(0)
			}
			return s.processInsert(stream, pending, req)
		},
	)
}

func releaseAll(store *chunkstore.Store, pending map[uint64]*chunkstore.Chunk) {
	for _, c := range pending {
		store.Release(c)
	}
}

func (s *Service) processInsert(stream api.InsertStream_Server, pending map[uint64]*chunkstore.Chunk, req *api.InsertStreamRequest) error {
	// Step 1: chunks field.
	for _, wireChunk := range req.Chunks {
		c, err := s.store.Insert(wireChunk.ChunkKey, wireChunk.Data)
		if err != nil {
			return status.Error(codes.Cancelled, "Service has been closed")
		}
		if old, ok := pending[wireChunk.ChunkKey]; ok {
			s.store.Release(old)
		}
		pending[wireChunk.ChunkKey] = c
		if s.metrics != nil {
			s.metrics.ChunksInsertedTotal.Inc()
		}
	}

	if req.Item == nil {
		return nil
	}
	item := req.Item

	// Step 2: resolve the item's flat_trajectory against pending_chunks.
	// Each ChunkRef takes its own Ref(): the item's hold on the chunk must
	// outlive pending's, which is released at stream end (Step 6 / the
	// deferred releaseAll) while the item's own reference is only released
	// when the item is overwritten, deleted, or the table is Reset.
	resolved := make([]table.ChunkRef, 0, len(item.FlatTrajectory))
	for _, slice := range item.FlatTrajectory {
		c, ok := pending[slice.ChunkKey]
		if !ok {
			return status.Errorf(codes.Internal, "Could not find sequence chunk %d.", slice.ChunkKey)
		}
		resolved = append(resolved, table.ChunkRef{Chunk: c.Ref(), Offset: slice.Offset, Length: slice.Length})
	}

	// Step 3: table lookup.
	if err := validation.ValidateStringNonEmpty(item.Table); err != nil {
		return status.Error(codes.InvalidArgument, "table name must not be empty")
	}
	dst, err := s.registry.Lookup(item.Table)
	if err != nil {
		return status.Errorf(codes.NotFound, "Priority table %s was not found", item.Table)
	}

	// Step 4: insert.
	tableItem := &table.Item{
		ItemKey:  item.ItemKey,
		Chunks:   resolved,
		Priority: item.Priority,
	}
	if err := dst.InsertOrAssign(tableItem); err != nil {
		for _, ref := range resolved {
			s.store.Release(ref.Chunk)
		}
		return status.Convert(err).Err()
	}
	if s.metrics != nil {
		s.metrics.ItemsInsertedTotal.WithLabelValues(item.Table).Inc()
	}
	if s.log != nil {
		s.log.InsertAccepted(item.Table, item.ItemKey, len(resolved))
	}

	// Step 5: confirmation.
	if item.SendConfirmation {
		if err := stream.Send(&api.InsertStreamResponse{ItemKey: item.ItemKey}); err != nil {
			return status.Error(codes.Internal, "Failed to write InsertStream confirmation.")
		}
	}

	// Step 6: retention.
	keep := make(map[uint64]struct{}, len(item.KeepChunkKeys))
	for _, k := range item.KeepChunkKeys {
		keep[k] = struct{}{}
	}
	for key, c := range pending {
		if _, ok := keep[key]; !ok {
			s.store.Release(c)
			delete(pending, key)
		}
	}
	if len(pending) != len(keep) {
		if s.metrics != nil {
			s.metrics.RetentionViolations.Inc()
		}
		if s.log != nil {
			s.log.RetentionViolation(item.Table, len(keep), len(pending))
		}
		panic("service: retention contract violated: pending_chunks does not match keep_chunk_keys")
	}

	return nil
}
