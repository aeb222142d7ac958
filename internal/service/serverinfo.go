package service

import (
	"context"

	"github.com/quantarax/replaybuffer/internal/api"
)

// ServerInfo returns one TableInfo per table plus tables_state_id (§4.8).
func (s *Service) ServerInfo(ctx context.Context, _ *api.ServerInfoRequest) (*api.ServerInfoResponse, error) {
	tables := s.registry.All()
	out := make([]api.TableInfo, 0, len(tables))
	for _, t := range tables {
		info := t.Info()
		out = append(out, api.TableInfo{
			Name:                     info.Name,
			CurrentSize:              info.CurrentSize,
			NumEpisodes:              info.NumEpisodes,
			NumDeletedEpisodes:       info.NumDeletedEpisodes,
			NumUniqueSamplesInserted: info.NumUniqueSamplesInserted,
		})
	}
	return &api.ServerInfoResponse{
		TableInfo:       out,
		TablesStateIDHi: s.tablesStateIDHi,
		TablesStateIDLo: s.tablesStateIDLo,
	}, nil
}
