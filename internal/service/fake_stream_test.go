package service

import (
	"context"
	"io"

	"google.golang.org/grpc/metadata"

	"github.com/quantarax/replaybuffer/internal/api"
)

// fakeServerStream is a minimal grpc.ServerStream for driving handlers in
// tests without a real network connection.
type fakeServerStream struct {
	ctx context.Context
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m interface{}) error   { return nil }
func (f *fakeServerStream) RecvMsg(m interface{}) error   { return nil }

type fakeInsertStream struct {
	*fakeServerStream
	in  []*api.InsertStreamRequest
	out []*api.InsertStreamResponse
}

func (f *fakeInsertStream) Recv() (*api.InsertStreamRequest, error) {
	if len(f.in) == 0 {
		return nil, io.EOF
	}
	req := f.in[0]
	f.in = f.in[1:]
	return req, nil
}

func (f *fakeInsertStream) Send(r *api.InsertStreamResponse) error {
	f.out = append(f.out, r)
	return nil
}

type fakeSampleStream struct {
	*fakeServerStream
	in  []*api.SampleStreamRequest
	out []*api.SampleStreamResponse
}

func (f *fakeSampleStream) Recv() (*api.SampleStreamRequest, error) {
	if len(f.in) == 0 {
		return nil, io.EOF
	}
	req := f.in[0]
	f.in = f.in[1:]
	return req, nil
}

func (f *fakeSampleStream) Send(r *api.SampleStreamResponse) error {
	f.out = append(f.out, r)
	return nil
}

type fakeInitializeConnectionStream struct {
	*fakeServerStream
	in           []*api.InitializeConnectionRequest
	confirmation []*api.InitializeConnectionConfirmation
	out          []*api.InitializeConnectionResponse
}

func (f *fakeInitializeConnectionStream) Recv() (*api.InitializeConnectionRequest, error) {
	if len(f.in) == 0 {
		return nil, io.EOF
	}
	req := f.in[0]
	f.in = f.in[1:]
	return req, nil
}

func (f *fakeInitializeConnectionStream) RecvConfirmation() (*api.InitializeConnectionConfirmation, error) {
	if len(f.confirmation) == 0 {
		return nil, io.EOF
	}
	c := f.confirmation[0]
	f.confirmation = f.confirmation[1:]
	return c, nil
}

func (f *fakeInitializeConnectionStream) Send(r *api.InitializeConnectionResponse) error {
	f.out = append(f.out, r)
	return nil
}
