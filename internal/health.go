package internal

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health of a component
type HealthStatus string

const (
	// StatusUp indicates the component is healthy
	StatusUp HealthStatus = "UP"

	// StatusDown indicates the component is unhealthy
	StatusDown HealthStatus = "DOWN"

	// StatusDegraded indicates the component is functioning but degraded
	StatusDegraded HealthStatus = "DEGRADED"
)

// ComponentHealth represents the health of a specific component
type ComponentHealth struct {
	Status      HealthStatus      `json:"status"`
	Details     map[string]string `json:"details,omitempty"`
	Message     string            `json:"message,omitempty"`
	LastChecked time.Time         `json:"lastChecked"`
}

// SystemHealth represents the overall health of the process
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// HealthChecker runs registered component checks on demand
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]func() ComponentHealth
	startTime time.Time
}

// NewHealthChecker creates an empty checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]func() ComponentHealth),
		startTime: time.Now(),
	}
}

// Register registers a health check for a component
func (h *HealthChecker) Register(component string, check func() ComponentHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks[component] = check
	log.Printf("Registered health check for component: %s", component)
}

// Run executes all registered health checks
func (h *HealthChecker) Run() SystemHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := SystemHealth{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(h.checks)),
		Version:    ConfigVersion,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}

	for component, check := range h.checks {
		health := check()
		result.Components[component] = health

		if health.Status == StatusDown {
			result.Status = StatusDown
		} else if health.Status == StatusDegraded && result.Status != StatusDown {
			result.Status = StatusDegraded
		}
	}

	return result
}

// Handler creates an HTTP handler for health checks
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.Run()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		json.NewEncoder(w).Encode(health)
	}
}

// CreateComponentHealth creates a component health status
func CreateComponentHealth(status HealthStatus, message string) ComponentHealth {
	return ComponentHealth{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
		Details:     make(map[string]string),
	}
}
