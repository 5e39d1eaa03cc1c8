package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeResponse(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeResponse(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeResponse(w http.ResponseWriter, statusCode int, response HealthResponse, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", zap.Error(err))
	}
}

// Component states reported by Status.
const (
	StateReady    = "ready"
	StateNotReady = "not ready"
	StateFailed   = "failed"
)

// Status is a HealthChecker fed by the components it tracks. It is ready
// once every registered component is ready and alive until one has failed.
type Status struct {
	mu         sync.RWMutex
	components map[string]string
}

// NewStatus creates a Status tracking components, all initially not ready.
func NewStatus(components ...string) *Status {
	s := &Status{components: make(map[string]string, len(components))}
	for _, c := range components {
		s.components[c] = StateNotReady
	}
	return s
}

// SetReady marks a component ready or not ready.
func (s *Status) SetReady(component string, ready bool) {
	state := StateNotReady
	if ready {
		state = StateReady
	}
	s.set(component, state)
}

// SetFailed marks a component failed, which fails liveness.
func (s *Status) SetFailed(component string) {
	s.set(component, StateFailed)
}

func (s *Status) set(component, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[component] = state
}

// Liveness reports false once any component has failed.
func (s *Status) Liveness() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.components {
		if state == StateFailed {
			return false
		}
	}
	return true
}

// Readiness reports whether every component is ready.
func (s *Status) Readiness(context.Context) bool {
	return s.IsHealthy()
}

// IsHealthy reports whether every component is ready.
func (s *Status) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.components {
		if state != StateReady {
			return false
		}
	}
	return true
}

// GetStatus returns a copy of the component states.
func (s *Status) GetStatus() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.components)
}
