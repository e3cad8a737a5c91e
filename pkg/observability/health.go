package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// ReadinessCheck reports whether one startup dependency is ready.
type ReadinessCheck func(ctx context.Context) error

// HealthChecker provides liveness and readiness probes for the gateway.
// Liveness succeeds as soon as the process is up; readiness succeeds only
// once the routing table is loaded and upstream resolution has completed.
type HealthChecker struct {
	checks map[string]ReadinessCheck
	ready  atomic.Bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a named readiness dependency. Must be called
// before the health server starts serving; the map is not locked.
func (h *HealthChecker) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetReady marks startup as complete. Until this is called readiness
// always fails, regardless of individual checks.
func (h *HealthChecker) SetReady() {
	h.ready.Store(true)
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusStarting  = "starting"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe (checks all registered dependencies)
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	if status.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a readiness check across all registered dependencies
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	if !h.ready.Load() {
		status.Status = StatusStarting
		return status
	}

	for name, check := range h.checks {
		dep := DependencyStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}
		if err := check(ctx); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
			status.Status = StatusUnhealthy
		}
		status.Dependencies[name] = dep
	}

	return status
}
