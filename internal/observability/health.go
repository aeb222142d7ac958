package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse represents the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthChecker performs health checks on system components.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// HealthCheckFunc defines a function that checks component health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check performs all health checks.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health

		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an HTTP handler for health checks.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case HealthStatusOK:
			w.WriteHeader(http.StatusOK)
		case HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	}
}

// Common health check functions, retargeted at the replay buffer's own
// collaborators instead of the teacher's QUIC/keystore/database trio.

// GRPCServerCheck reports the gRPC address as OK; it does not probe the
// listener.
func GRPCServerCheck(addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{
			Status:  HealthStatusOK,
			Message: fmt.Sprintf("gRPC server listening on %s", addr),
		}
	}
}

// ChunkStoreCheck reports whether the chunk store has been closed.
func ChunkStoreCheck(closed func() bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if closed() {
			return ComponentHealth{Status: HealthStatusUnhealthy, Message: "chunk store is closed"}
		}
		return ComponentHealth{Status: HealthStatusOK, Message: "chunk store accepting inserts"}
	}
}

// CheckpointerCheck reports whether a checkpoint backend is configured.
func CheckpointerCheck(configured bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if configured {
			return ComponentHealth{Status: HealthStatusOK, Message: "checkpointer configured"}
		}
		return ComponentHealth{Status: HealthStatusDegraded, Message: "no checkpointer configured"}
	}
}

// MemoryCheck reports host memory pressure via gopsutil, degrading the
// service before the OOM killer does.
func MemoryCheck(maxUsedPercent float64) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("memory stats unavailable: %v", err)}
		}
		if vm.UsedPercent > maxUsedPercent {
			return ComponentHealth{Status: HealthStatusDegraded, Message: fmt.Sprintf("memory used %.1f%%", vm.UsedPercent)}
		}
		return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("memory used %.1f%%", vm.UsedPercent)}
	}
}
