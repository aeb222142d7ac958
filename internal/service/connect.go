package service

import (
	"context"
	"net"
	"strings"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/table"
	"github.com/quantarax/replaybuffer/internal/validation"
)

// handshakeHolders tracks tables offered to co-located clients by handle,
// the Go-idiomatic stand-in for the address-transfer trick of §4.10: a
// literal memory address can't safely cross an interface/process boundary
// in Go, so a client resolves its own shared reference by calling
// ResolveHandshakeHandle with the value it was sent instead of dereferencing
// a pointer.
type handshakeHolders struct {
	mu      sync.Mutex
	next    uint64
	offered map[uint64]table.Table
}

func newHandshakeHolders() *handshakeHolders {
	return &handshakeHolders{offered: make(map[uint64]table.Table)}
}

func (h *handshakeHolders) offer(t table.Table) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	handle := h.next
	h.offered[handle] = t
	return handle
}

func (h *handshakeHolders) take(handle uint64) (table.Table, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.offered[handle]
	delete(h.offered, handle)
	return t, ok
}

// ResolveHandshakeHandle is called by a co-located client, in-process,
// after receiving InitializeConnectionResponse.Address, to obtain its own
// shared reference to the table (§4.10 step 4).
func (s *Service) ResolveHandshakeHandle(handle uint64) (table.Table, bool) {
	return s.handshake.take(handle)
}

// InitializeConnection implements the in-process handshake of §4.10.
func (s *Service) InitializeConnection(stream api.InitializeConnection_Server) error {
	if !isLocalPeer(stream.Context()) {
		// Open Question 1: preserved as specified — OK with no response.
		return nil
	}

	req, err := stream.Recv()
	if err != nil {
		return status.Error(codes.Internal, "failed to read InitializeConnection request")
	}

	if req.Pid != s.pid {
		if err := stream.Send(&api.InitializeConnectionResponse{Address: 0}); err != nil {
			return status.Error(codes.Internal, "failed to write InitializeConnection response")
		}
		return nil
	}

	if err := validation.ValidateStringNonEmpty(req.TableName); err != nil {
		return status.Error(codes.InvalidArgument, "table name must not be empty")
	}
	dst, err := s.registry.Lookup(req.TableName)
	if err != nil {
		return status.Errorf(codes.NotFound, "Priority table %s was not found", req.TableName)
	}

	handle := s.handshake.offer(dst)
	if err := stream.Send(&api.InitializeConnectionResponse{Address: handle}); err != nil {
		s.handshake.take(handle)
		return status.Error(codes.Internal, "failed to write InitializeConnection response")
	}

	confirm, err := stream.RecvConfirmation()
	if err != nil {
		s.handshake.take(handle)
		return status.Error(codes.Internal, "failed to read InitializeConnection confirmation")
	}
	if !confirm.OwnershipTransferred {
		s.handshake.take(handle)
		return status.Error(codes.Internal, "unexpected InitializeConnection confirmation payload")
	}

	if s.log != nil {
		s.log.ConnectionEstablished(peerAddrString(stream.Context()))
	}
	return nil
}

// isLocalPeer reports whether the stream's peer address is loopback, the
// gate for the in-process fast path (§4.10 step 1).
func isLocalPeer(ctx context.Context) bool {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		host = p.Addr.String()
	}
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost") || strings.HasPrefix(p.Addr.Network(), "unix")
}

func peerAddrString(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	return p.Addr.String()
}
