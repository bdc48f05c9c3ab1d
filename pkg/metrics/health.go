package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Component names checked by readiness
const (
	ComponentStorage = "storage"
	ComponentHub     = "hub"
	ComponentGateway = "gateway"
)

// HealthStatus represents the health status of the process
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// Probe actively checks a component when health is requested
type Probe func(ctx context.Context) error

// HealthChecker manages health checks for the process components
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	probes     map[string]Probe
	critical   []string
	startTime  time.Time
	version    string
	timeout    time.Duration
}

// NewHealthChecker creates a checker whose readiness requires the given
// components. With no arguments storage, hub and gateway are critical.
func NewHealthChecker(critical ...string) *HealthChecker {
	if len(critical) == 0 {
		critical = []string{ComponentStorage, ComponentHub, ComponentGateway}
	}
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		probes:     make(map[string]Probe),
		critical:   critical,
		startTime:  time.Now(),
		timeout:    2 * time.Second,
	}
}

// SetVersion sets the version string for health responses
func (hc *HealthChecker) SetVersion(version string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.version = version
}

// SetComponent records the health status of a component
func (hc *HealthChecker) SetComponent(name string, healthy bool, message string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// RegisterProbe registers a probe that refreshes the component's status
// every time health or readiness is evaluated
func (hc *HealthChecker) RegisterProbe(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes[name] = probe
}

func (hc *HealthChecker) runProbes(ctx context.Context) {
	hc.mu.RLock()
	probes := make(map[string]Probe, len(hc.probes))
	for name, p := range hc.probes {
		probes[name] = p
	}
	timeout := hc.timeout
	hc.mu.RUnlock()

	for name, probe := range probes {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := probe(pctx)
		cancel()
		if err != nil {
			hc.SetComponent(name, false, err.Error())
		} else {
			hc.SetComponent(name, true, "")
		}
	}
}

// Health returns the overall health status
func (hc *HealthChecker) Health(ctx context.Context) HealthStatus {
	hc.runProbes(ctx)

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, comp := range hc.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).String(),
	}
}

// Readiness returns readiness status (checks if critical components are ready)
func (hc *HealthChecker) Readiness(ctx context.Context) HealthStatus {
	hc.runProbes(ctx)

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	critical := append([]string(nil), hc.critical...)
	sort.Strings(critical)

	for _, name := range critical {
		comp, exists := hc.components[name]
		switch {
		case !exists:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).String(),
	}
}

// IsReady reports whether all critical components are healthy
func (hc *HealthChecker) IsReady(ctx context.Context) bool {
	return hc.Readiness(ctx).Status == "ready"
}

// HealthHandler returns an HTTP handler for the /health endpoint
func (hc *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hc.Health(r.Context())

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, health)
	}
}

// ReadyHandler returns an HTTP handler for the /ready endpoint
func (hc *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := hc.Readiness(r.Context())

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, readiness)
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(hc.startTime).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
