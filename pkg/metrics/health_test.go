package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeStatsSource lets tests drive HealthChecker with an arbitrary
// scheduler snapshot without constructing a real agent.Agent.
type fakeStatsSource struct {
	classes []ClassSnapshot
}

func (f fakeStatsSource) SchedulerClassStats() []ClassSnapshot { return f.classes }
func (f fakeStatsSource) TableStatsSnapshots() []TableSnapshot { return nil }

func healthySnapshot() []ClassSnapshot {
	return []ClassSnapshot{
		{Class: "DBTable", Running: 1},
		{Class: "FlowHandler", Running: 1},
	}
}

func TestGetHealth_AllCriticalClassesRunningUnpaused(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{classes: healthySnapshot()})
	h.SetVersion("1.0.0")

	health := h.GetHealth()
	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", health.Status)
	}
	if health.Components["DBTable"] != "healthy" || health.Components["FlowHandler"] != "healthy" {
		t.Errorf("expected both critical classes healthy, got %+v", health.Components)
	}
	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %q", health.Version)
	}
}

func TestGetHealth_PausedClassIsUnhealthy(t *testing.T) {
	classes := healthySnapshot()
	classes[0].Paused = true // DBTable paused: a shard hit its high watermark
	h := NewHealthChecker(fakeStatsSource{classes: classes})

	health := h.GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", health.Status)
	}
	if health.Components["DBTable"] != "paused: overload backpressure" {
		t.Errorf("unexpected DBTable status: %q", health.Components["DBTable"])
	}
}

func TestGetHealth_MissingClassIsUnhealthy(t *testing.T) {
	// FlowHandler never registered — e.g. the agent hasn't finished
	// constructing its flow loop yet.
	h := NewHealthChecker(fakeStatsSource{classes: []ClassSnapshot{{Class: "DBTable"}}})

	health := h.GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %q", health.Status)
	}
	if health.Components["FlowHandler"] != "not registered" {
		t.Errorf("unexpected FlowHandler status: %q", health.Components["FlowHandler"])
	}
}

func TestGetReadiness_HealthyBecomesReady(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{classes: healthySnapshot()})

	readiness := h.GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got %q", readiness.Status)
	}
}

func TestGetReadiness_PausedClassIsNotReady(t *testing.T) {
	classes := healthySnapshot()
	classes[1].Paused = true // FlowHandler paused
	h := NewHealthChecker(fakeStatsSource{classes: classes})

	readiness := h.GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got %q", readiness.Status)
	}
	if readiness.Message == "" {
		t.Error("expected a message explaining why not ready")
	}
}

func TestHealthHandler_HealthyReturns200(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{classes: healthySnapshot()})
	h.SetVersion("test")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}
	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_PausedClassReturns503(t *testing.T) {
	classes := healthySnapshot()
	classes[0].Paused = true
	h := NewHealthChecker(fakeStatsSource{classes: classes})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	h.HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestReadyHandler_ReadyReturns200(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{classes: healthySnapshot()})

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	h.ReadyHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_MissingClassReturns503(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{classes: []ClassSnapshot{{Class: "DBTable"}}})

	req := httptest.NewRequest("GET", "/readyz", nil)
	w := httptest.NewRecorder()
	h.ReadyHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	h := NewHealthChecker(fakeStatsSource{})

	req := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()
	h.LivenessHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}
	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
