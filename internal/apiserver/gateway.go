// Package apiserver starts the gRPC listener and a REST/JSON mux fronting
// the unary RPCs, the way daemon/api/server/gateway.go splits gRPC and
// gateway startup in the teacher.
package apiserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/quantarax/replaybuffer/internal/api"
	"github.com/quantarax/replaybuffer/internal/observability"
	"github.com/quantarax/replaybuffer/internal/ratelimit"
	"github.com/quantarax/replaybuffer/internal/service"
)

// connsPerSecond/connBurst bound new gRPC TCP connections the way the
// teacher's accept loop rate-limits new QUIC connections.
const (
	connsPerSecond = 200
	connBurst      = 400
)

// rateLimitedListener gates Accept behind a token bucket so a burst of new
// connections can't starve the server the way an unbounded accept loop can.
type rateLimitedListener struct {
	net.Listener
	tb *ratelimit.TokenBucket
}

func (l *rateLimitedListener) Accept() (net.Conn, error) {
	l.tb.Wait(1)
	return l.Listener.Accept()
}

// StartAPIServers starts the gRPC server (grpcAddr) carrying the full RPC
// surface of §6, and a REST/JSON mux (restAddr) fronting the four unary
// RPCs. extra, if non-nil, is mounted at "/" on the REST mux (health and
// metrics handlers).
func StartAPIServers(ctx context.Context, grpcAddr, restAddr string, svc *service.Service, metrics *observability.Metrics, extra http.Handler) (grpcStop func(), restStop func(), err error) {
	grpcServer := grpc.NewServer(
		api.ServerCodecOption(),
		grpc.ChainUnaryInterceptor(metricsUnaryInterceptor(metrics)),
		grpc.ChainStreamInterceptor(metricsStreamInterceptor(metrics)),
	)
	api.RegisterReplayBufferServer(grpcServer, svc)

	l, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, nil, err
	}
	l = &rateLimitedListener{Listener: l, tb: ratelimit.NewTokenBucket(connsPerSecond, connBurst)}
	go func() { _ = grpcServer.Serve(l) }()
	grpcStop = func() { grpcServer.GracefulStop(); _ = l.Close() }

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkpoint", restUnary(svc.Checkpoint, func() *api.CheckpointRequest { return &api.CheckpointRequest{} }))
	mux.HandleFunc("/v1/mutate-priorities", restUnary(svc.MutatePriorities, func() *api.MutatePrioritiesRequest { return &api.MutatePrioritiesRequest{} }))
	mux.HandleFunc("/v1/reset", restUnary(svc.Reset, func() *api.ResetRequest { return &api.ResetRequest{} }))
	mux.HandleFunc("/v1/server-info", restUnary(svc.ServerInfo, func() *api.ServerInfoRequest { return &api.ServerInfoRequest{} }))
	if extra != nil {
		mux.Handle("/", extra)
	}

	httpServer := &http.Server{Addr: restAddr, Handler: mux}
	go func() { _ = httpServer.ListenAndServe() }()
	restStop = func() { _ = httpServer.Close() }

	return grpcStop, restStop, nil
}

// metricsUnaryInterceptor records replaybuffer_rpc_requests_total and
// replaybuffer_rpc_errors_total for every unary call, the same role
// grpcmon.UnaryServerInterceptor plays ahead of the handler in a chained
// interceptor stack.
func metricsUnaryInterceptor(metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		recordRPCMetrics(metrics, info.FullMethod, err)
		return resp, err
	}
}

// metricsStreamInterceptor is metricsUnaryInterceptor's streaming-call
// counterpart, covering InsertStream/SampleStream/InitializeConnection.
func metricsStreamInterceptor(metrics *observability.Metrics) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		recordRPCMetrics(metrics, info.FullMethod, err)
		return err
	}
}

func recordRPCMetrics(metrics *observability.Metrics, method string, err error) {
	if metrics == nil {
		return
	}
	metrics.RPCRequestsTotal.WithLabelValues(method).Inc()
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method, status.Code(err).String()).Inc()
	}
}

// restUnary adapts one of Service's unary RPC methods into a plain JSON
// HTTP handler, the hand-rolled equivalent of a grpc-gateway generated
// pass-through handler since this build carries no protoc-generated gateway
// stubs.
func restUnary[Req any, Resp any](call func(context.Context, Req) (Resp, error), newReq func() Req) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := newReq()
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(req); err != nil && err != io.EOF {
				writeJSONError(w, status.Error(codes.InvalidArgument, err.Error()))
				return
			}
		}

		resp, err := call(r.Context(), req)
		if err != nil {
			writeJSONError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// writeJSONError converts a gRPC status error to the normalized JSON error
// model the teacher's JSONErrorHandler produced, using grpc-gateway's
// status-to-HTTP-code mapping.
func writeJSONError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"INTERNAL","message":"internal error"}`))
		return
	}
	httpStatus := runtime.HTTPStatusFromCode(st.Code())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	payload := map[string]interface{}{"code": codeToString(st.Code()), "message": st.Message()}
	b, _ := json.Marshal(payload)
	_, _ = w.Write(b)
}

func codeToString(c codes.Code) string {
	switch c {
	case codes.InvalidArgument:
		return "INVALID_ARGUMENT"
	case codes.NotFound:
		return "NOT_FOUND"
	case codes.FailedPrecondition:
		return "FAILED_PRECONDITION"
	case codes.AlreadyExists:
		return "ALREADY_EXISTS"
	case codes.PermissionDenied:
		return "PERMISSION_DENIED"
	case codes.Unauthenticated:
		return "UNAUTHENTICATED"
	case codes.Unimplemented:
		return "UNIMPLEMENTED"
	case codes.Unavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
