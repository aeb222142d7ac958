package service

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/table"
)

// emitSample fans one SampledItem out across one or more response frames,
// bounded by api.MaxSampleResponseBytes, per §4.6. The first entry carries
// item metadata; every chunk of the sample is emitted exactly once, in
// order, with end_of_sequence set on the last chunk only.
func emitSample(stream api.SampleStream_Server, sample table.SampledItem) (frames int, bytes int, err error) {
	return emitSampleBounded(stream, sample, api.MaxSampleResponseBytes)
}

// emitSampleBounded is emitSample with an injectable frame size bound, so
// tests can exercise the multi-frame path without allocating 40 MiB. It
// reports how many response frames were sent and the total payload bytes
// across them, for the sample_frame_bytes / sample_frames_per_item metrics.
func emitSampleBounded(stream api.SampleStream_Server, sample table.SampledItem, maxFrameBytes int) (frames int, totalBytes int, err error) {
	info := &api.SampleInfo{
		ItemKey:      sample.Item.ItemKey,
		Priority:     sample.Item.Priority,
		TimesSampled: sample.Item.TimesSampled,
		Probability:  sample.Probability,
		TableSize:    sample.TableSize,
		RateLimited:  sample.RateLimited,
	}

	entries := []api.SampleEntry{{Info: info}}
	frameSize := 0

	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		if err := stream.Send(&api.SampleStreamResponse{Entries: entries}); err != nil {
			return status.Error(codes.Internal, "Failed to write to Sample stream.")
		}
		frames++
		totalBytes += frameSize
		entries = nil
		frameSize = 0
		return nil
	}

	for i, ref := range sample.Item.Chunks {
		data := chunkBytes(ref)
		if frameSize > 0 && frameSize+len(data) > maxFrameBytes {
			if err := flush(); err != nil {
				return frames, totalBytes, err
			}
		}

		entries = append(entries, api.SampleEntry{
			ChunkKey:      ref.Chunk.ChunkKey,
			Data:          data,
			EndOfSequence: i == len(sample.Item.Chunks)-1,
		})
		frameSize += len(data)
	}

	if err := flush(); err != nil {
		return frames, totalBytes, err
	}
	return frames, totalBytes, nil
}

func chunkBytes(ref table.ChunkRef) []byte {
	data := ref.Chunk.Data
	if ref.Length <= 0 {
		return data
	}
	end := ref.Offset + ref.Length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if ref.Offset < 0 || ref.Offset > int64(len(data)) {
		return nil
	}
	return data[ref.Offset:end]
}
