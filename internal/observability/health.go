package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const serviceName = "barberbot"

// Version is stamped at build time with -ldflags
var Version = "dev"

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	ActiveCalls  *int                        `json:"active_calls,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(ctx context.Context) error

// Readiness aggregates named dependency checks.
// It is shared by the HTTP readiness handler and the gRPC health service.
type Readiness struct {
	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

// NewReadiness creates an empty check set
func NewReadiness() *Readiness {
	return &Readiness{checks: make(map[string]HealthCheckFunc)}
}

// Register adds or replaces a named check
func (r *Readiness) Register(name string, check HealthCheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check runs every registered check and reports whether all passed
func (r *Readiness) Check(ctx context.Context) (bool, map[string]DependencyStatus) {
	r.mu.RLock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()
	sort.Strings(names)

	deps := make(map[string]DependencyStatus, len(names))
	healthy := true
	for _, name := range names {
		start := time.Now()
		err := checks[name](ctx)
		dep := DependencyStatus{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			healthy = false
			dep.Status = "unhealthy"
			dep.Message = err.Error()
		}
		deps[name] = dep
	}
	return healthy, deps
}

// HealthCheckHandler reports liveness. activeCalls may be nil.
func HealthCheckHandler(activeCalls func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   Version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if activeCalls != nil {
			n := activeCalls()
			status.ActiveCalls = &n
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// ReadinessHandler reports 503 while any dependency check fails
func ReadinessHandler(readiness *Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		healthy, deps := readiness.Check(ctx)
		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      Version,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: deps,
		}
		code := http.StatusOK
		if !healthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
