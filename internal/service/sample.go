package service

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/validation"
)

// SampleStream implements the bidi sampling protocol of §4.5: one or more
// client requests, each served by repeated flexible-batch draws until
// num_samples is reached, then the server waits for the next request.
func (s *Service) SampleStream(stream api.SampleStream_Server) error {
	ctx := stream.Context()

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := s.serveSampleRequest(ctx, stream, req); err != nil {
			return err
		}
	}
}

func (s *Service) serveSampleRequest(ctx context.Context, stream api.SampleStream_Server, req *api.SampleStreamRequest) error {
	if err := validation.ValidateStringNonEmpty(req.Table); err != nil {
		return status.Error(codes.InvalidArgument, "table name must not be empty")
	}
	if req.NumSamples <= 0 {
		return status.Error(codes.InvalidArgument, "num_samples must be > 0")
	}
	if req.FlexibleBatchSize < 0 || (req.FlexibleBatchSize == 0 && req.FlexibleBatchSize != api.AutoSelectBatchSize) {
		return status.Error(codes.InvalidArgument, "flexible_batch_size must be > 0 or AutoSelect")
	}

	timeout := time.Duration(-1)
	if req.RateLimiterTimeout != nil && *req.RateLimiterTimeout >= 0 {
		timeout = time.Duration(*req.RateLimiterTimeout) * time.Millisecond
	}

	dst, err := s.registry.Lookup(req.Table)
	if err != nil {
		return status.Errorf(codes.NotFound, "Priority table %s was not found", req.Table)
	}
	defaultBatch := dst.DefaultFlexibleBatchSize()

	var count int64
	for count < req.NumSamples {
		if ctx.Err() != nil {
			return nil
		}

		batch := req.FlexibleBatchSize
		if batch == api.AutoSelectBatchSize {
			batch = defaultBatch
		}
		if remaining := req.NumSamples - count; batch > remaining {
			batch = remaining
		}

		waitStart := time.Now()
		samples, err := dst.SampleFlexibleBatch(ctx, batch, timeout)
		if s.metrics != nil {
			s.metrics.RateLimiterWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return status.Error(codes.DeadlineExceeded, "rate limiter timeout exceeded")
			}
			return status.Convert(err).Err()
		}

		for _, sample := range samples {
			frames, frameBytes, err := emitSample(stream, sample)
			if s.metrics != nil && frames > 0 {
				s.metrics.SampleFramesPerSample.Observe(float64(frames))
				s.metrics.SampleFrameBytes.Observe(float64(frameBytes))
			}
			if err != nil {
				return err
			}
		}
		if s.log != nil && len(samples) > 0 {
			s.log.SampleServed(req.Table, len(samples), samples[0].RateLimited)
		}
		if s.metrics != nil {
			s.metrics.SamplesServedTotal.WithLabelValues(req.Table).Add(float64(len(samples)))
			s.metrics.SampleBatchSize.Observe(float64(len(samples)))
		}
		count += int64(len(samples))
	}
	return nil
}
