package service

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/checkpoint"
)

// Checkpoint snapshots every installed table and the chunks they reference
// (§4.7). Requires a configured checkpointer.
func (s *Service) Checkpoint(ctx context.Context, _ *api.CheckpointRequest) (*api.CheckpointResponse, error) {
	if s.checkpointer == nil {
		return nil, status.Error(codes.InvalidArgument, "no checkpointer configured")
	}

	path, err := s.checkpointNow()
	if err != nil {
		return nil, status.Convert(err).Err()
	}
	return &api.CheckpointResponse{Path: path}, nil
}

// checkpointNow is the shared implementation behind the Checkpoint RPC and
// the optional cron scheduler of scheduler.go.
func (s *Service) checkpointNow() (string, error) {
	start := time.Now()
	snapshots, keys := checkpoint.SnapshotTables(s.registry.All())
	path, err := s.checkpointer.Save(snapshots, func(key uint64) ([]byte, bool) {
		return s.chunkData(key)
	}, 1)
	if s.metrics != nil {
		s.metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.CheckpointsTotal.WithLabelValues("error").Inc()
		}
		return "", err
	}
	_ = keys
	if s.metrics != nil {
		s.metrics.CheckpointsTotal.WithLabelValues("ok").Inc()
	}
	if s.log != nil {
		s.log.CheckpointSaved(path, len(snapshots))
	}
	return path, nil
}

// chunkData resolves a chunk's payload through a short-lived store
// reference; the chunk is guaranteed live because it is still referenced
// by an installed table's item at snapshot time.
func (s *Service) chunkData(key uint64) ([]byte, bool) {
	c, err := s.store.Insert(key, nil)
	if err != nil {
		return nil, false
	}
	defer s.store.Release(c)
	return c.Data, true
}
