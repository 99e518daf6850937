package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// criticalClasses are the scheduler task classes this agent's own work
// runs under: "DBTable" is every db.Table's shard-drain task and
// pkg/lifetime's retirement sweep, "FlowHandler" is pkg/flow's aging
// and export loop. A class being paused means the scheduler has
// applied OVERLOAD backpressure to it (pkg/db.Table.Enqueue, spec.md
// section 7) — a live signal the agent can't make forward progress on
// writes or aging, not a label some bootstrap code has to remember to
// flip healthy.
var criticalClasses = []string{"DBTable", "FlowHandler"}

// HealthStatus is the JSON body served by HealthHandler/ReadyHandler.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy"/"unhealthy", "ready"/"not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// HealthChecker derives health and readiness directly from a live
// StatsSource — the same interface Collector polls — rather than a
// component registry some bootstrap path has to populate by hand. A
// critical class missing from the scheduler's snapshot, or paused for
// overload, is itself the unhealthy signal.
type HealthChecker struct {
	source    StatsSource
	startTime time.Time

	mu      sync.RWMutex
	version string
}

// NewHealthChecker constructs a HealthChecker reading live stats from
// source (normally an *agent.Agent).
func NewHealthChecker(source StatsSource) *HealthChecker {
	return &HealthChecker{source: source, startTime: time.Now()}
}

// SetVersion records the build version reported in health responses.
func (h *HealthChecker) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

func (h *HealthChecker) readVersion() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *HealthChecker) classSnapshot(name string) (ClassSnapshot, bool) {
	for _, cs := range h.source.SchedulerClassStats() {
		if cs.Class == name {
			return cs, true
		}
	}
	return ClassSnapshot{}, false
}

// GetHealth reports "unhealthy" if any critical class is missing from
// the scheduler (it hasn't been registered, meaning that component
// never started) or paused (OVERLOAD backpressure is engaged).
func (h *HealthChecker) GetHealth() HealthStatus {
	status := "healthy"
	components := make(map[string]string, len(criticalClasses))

	for _, name := range criticalClasses {
		cs, ok := h.classSnapshot(name)
		switch {
		case !ok:
			status = "unhealthy"
			components[name] = "not registered"
		case cs.Paused:
			status = "unhealthy"
			components[name] = "paused: overload backpressure"
		default:
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    h.readVersion(),
		Uptime:     time.Since(h.startTime).String(),
	}
}

// GetReadiness is GetHealth with "ready"/"not_ready" status naming and
// an explanatory message on failure, matching the conventional
// liveness/readiness split of a Kubernetes-style probe.
func (h *HealthChecker) GetReadiness() HealthStatus {
	health := h.GetHealth()
	if health.Status == "healthy" {
		health.Status = "ready"
		return health
	}
	health.Status = "not_ready"
	health.Message = "a critical task class is unregistered or paused for overload"
	return health
}

// HealthHandler serves /healthz: 200 if every critical class is
// registered and unpaused, 503 otherwise.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := h.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler serves /readyz using GetReadiness.
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := h.GetReadiness()
		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler serves /livez: always 200 while the process can
// still answer HTTP requests at all, independent of task-class health.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(h.startTime).String(),
		})
	}
}
