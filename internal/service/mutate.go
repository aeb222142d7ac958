package service

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/table"
	"github.com/quantarax/replaybuffer/internal/validation"
)

// MutatePriorities updates and/or deletes items in one table (§4.4).
func (s *Service) MutatePriorities(ctx context.Context, req *api.MutatePrioritiesRequest) (*api.MutatePrioritiesResponse, error) {
	if err := validation.ValidateStringNonEmpty(req.Table); err != nil {
		return nil, status.Error(codes.InvalidArgument, "table name must not be empty")
	}
	dst, err := s.registry.Lookup(req.Table)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "Priority table %s was not found", req.Table)
	}

	updates := make([]table.PriorityUpdate, 0, len(req.Updates))
	for _, u := range req.Updates {
		updates = append(updates, table.PriorityUpdate{ItemKey: u.ItemKey, Priority: u.Priority})
	}
	if err := dst.MutateItems(updates, req.DeleteKeys); err != nil {
		return nil, status.Convert(err).Err()
	}
	return &api.MutatePrioritiesResponse{}, nil
}

// Reset drops all items from a table (§4.4).
func (s *Service) Reset(ctx context.Context, req *api.ResetRequest) (*api.ResetResponse, error) {
	if err := validation.ValidateStringNonEmpty(req.Table); err != nil {
		return nil, status.Error(codes.InvalidArgument, "table name must not be empty")
	}
	dst, err := s.registry.Lookup(req.Table)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "Priority table %s was not found", req.Table)
	}
	if err := dst.Reset(); err != nil {
		return nil, status.Convert(err).Err()
	}
	return &api.ResetResponse{}, nil
}
