package service

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/chunkstore"
	"github.com/quantarax/replaybuffer/internal/table"
)

func newTestService(t *testing.T, tableName string) *Service {
	t.Helper()
	svc := New(chunkstore.NewStore(), nil, nil, nil)
	tbl := table.NewMemTable(tableName, 0, 64, 4)
	if err := svc.Initialize(context.Background(), []table.Table{tbl}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return svc
}

// S1: insert then sample round trip.
func TestInsertThenSampleRoundTrip(t *testing.T) {
	svc := newTestService(t, "t")

	insertStream := &fakeInsertStream{
		fakeServerStream: &fakeServerStream{ctx: context.Background()},
		in: []*api.InsertStreamRequest{
			{Chunks: []api.Chunk{{ChunkKey: 7, Data: []byte("A")}}},
			{Item: &api.ItemData{
				ItemKey:          100,
				Table:            "t",
				FlatTrajectory:   []api.ChunkSlice{{ChunkKey: 7}},
				Priority:         1.0,
				SendConfirmation: true,
				KeepChunkKeys:    []uint64{7},
			}},
		},
	}
	if err := svc.InsertStream(insertStream); err != nil {
		t.Fatalf("InsertStream: %v", err)
	}
	if len(insertStream.out) != 1 || insertStream.out[0].ItemKey != 100 {
		t.Fatalf("want one confirmation with item_key=100, got %+v", insertStream.out)
	}

	sampleStream := &fakeSampleStream{
		fakeServerStream: &fakeServerStream{ctx: context.Background()},
		in: []*api.SampleStreamRequest{
			{Table: "t", NumSamples: 1, FlexibleBatchSize: 1},
		},
	}
	if err := svc.SampleStream(sampleStream); err != nil {
		t.Fatalf("SampleStream: %v", err)
	}
	if len(sampleStream.out) != 1 {
		t.Fatalf("want one response frame, got %d", len(sampleStream.out))
	}
	entries := sampleStream.out[0].Entries
	if len(entries) != 2 {
		t.Fatalf("want info entry + 1 data entry, got %d", len(entries))
	}
	if entries[0].Info == nil || entries[0].Info.ItemKey != 100 {
		t.Fatalf("want leading info entry for item 100, got %+v", entries[0])
	}
	if string(entries[1].Data) != "A" || !entries[1].EndOfSequence {
		t.Fatalf("want chunk A with end_of_sequence, got %+v", entries[1])
	}
}

// S2: missing table.
func TestMutatePrioritiesMissingTable(t *testing.T) {
	svc := newTestService(t, "t")
	_, err := svc.MutatePriorities(context.Background(), &api.MutatePrioritiesRequest{Table: "ghost"})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
	if !strings.Contains(st.Message(), "Priority table ghost was not found") {
		t.Fatalf("unexpected message: %s", st.Message())
	}
}

// S3: missing chunk reference.
func TestInsertStreamMissingChunkReference(t *testing.T) {
	svc := newTestService(t, "t")
	stream := &fakeInsertStream{
		fakeServerStream: &fakeServerStream{ctx: context.Background()},
		in: []*api.InsertStreamRequest{
			{Item: &api.ItemData{
				ItemKey:        1,
				Table:          "t",
				FlatTrajectory: []api.ChunkSlice{{ChunkKey: 999}},
			}},
		},
	}
	err := svc.InsertStream(stream)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want Internal, got %v", err)
	}
	if !strings.Contains(st.Message(), "Could not find sequence chunk 999.") {
		t.Fatalf("unexpected message: %s", st.Message())
	}
}

// S4: retention evicts chunks outside keep_chunk_keys.
func TestInsertStreamRetentionEvictsChunks(t *testing.T) {
	svc := newTestService(t, "t")
	stream := &fakeInsertStream{
		fakeServerStream: &fakeServerStream{ctx: context.Background()},
		in: []*api.InsertStreamRequest{
			{Chunks: []api.Chunk{{ChunkKey: 1, Data: []byte("1")}, {ChunkKey: 2, Data: []byte("2")}, {ChunkKey: 3, Data: []byte("3")}}},
			{Item: &api.ItemData{
				ItemKey:        1,
				Table:          "t",
				FlatTrajectory: []api.ChunkSlice{{ChunkKey: 1}},
				KeepChunkKeys:  []uint64{1},
			}},
			{Item: &api.ItemData{
				ItemKey:        2,
				Table:          "t",
				FlatTrajectory: []api.ChunkSlice{{ChunkKey: 2}},
				KeepChunkKeys:  []uint64{2},
			}},
		},
	}
	err := svc.InsertStream(stream)
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want Internal, got %v", err)
	}
	if !strings.Contains(st.Message(), "Could not find sequence chunk 2.") {
		t.Fatalf("unexpected message: %s", st.Message())
	}
}

// S6: in-process handshake from a foreign pid.
func TestInitializeConnectionForeignPid(t *testing.T) {
	svc := newTestService(t, "t")
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}})

	stream := &fakeInitializeConnectionStream{
		fakeServerStream: &fakeServerStream{ctx: ctx},
		in:               []*api.InitializeConnectionRequest{{Pid: int32(os.Getpid()) + 1, TableName: "t"}},
	}
	if err := svc.InitializeConnection(stream); err != nil {
		t.Fatalf("InitializeConnection: %v", err)
	}
	if len(stream.out) != 1 || stream.out[0].Address != 0 {
		t.Fatalf("want address=0 response for foreign pid, got %+v", stream.out)
	}
}

// S5-style: a sample spanning multiple frames under a reduced bound.
func TestEmitSampleBoundedSplitsFrames(t *testing.T) {
	store := chunkstore.NewStore()
	c1, _ := store.Insert(1, make([]byte, 6))
	c2, _ := store.Insert(2, make([]byte, 6))

	sample := table.SampledItem{
		Item: &table.Item{
			ItemKey: 1,
			Chunks: []table.ChunkRef{
				{Chunk: c1, Length: 6},
				{Chunk: c2, Length: 6},
			},
		},
		TableSize: 1,
	}

	stream := &fakeSampleStream{fakeServerStream: &fakeServerStream{ctx: context.Background()}}
	if _, _, err := emitSampleBounded(stream, sample, 10); err != nil {
		t.Fatalf("emitSampleBounded: %v", err)
	}
	if len(stream.out) < 2 {
		t.Fatalf("want at least 2 frames under a small bound, got %d", len(stream.out))
	}

	var eosCount int
	for _, frame := range stream.out {
		for _, e := range frame.Entries {
			if e.EndOfSequence {
				eosCount++
			}
		}
	}
	if eosCount != 1 {
		t.Fatalf("want exactly one end_of_sequence chunk, got %d", eosCount)
	}
}
