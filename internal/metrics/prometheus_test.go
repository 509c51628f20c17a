package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// value reads the current value of a counter or gauge
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to read metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSessionStarted()
	m.RecordSessionFailed("backend")
	m.RecordSessionEnded("stopped", 1)
	m.RecordUpload(true, 0.1)
	m.TaskStarted()
	m.TaskFinished("upload", errors.New("boom"))
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
}

func TestSessionLifecycleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSessionStarted()
	if got := value(t, m.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}

	m.RecordSessionEnded("recorder_exit", 12)
	if got := value(t, m.ActiveSessions); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
	if got := value(t, m.SessionsEnded.WithLabelValues("recorder_exit")); got != 1 {
		t.Errorf("Expected 1 recorder_exit ending, got %v", got)
	}

	m.RecordUpload(false, 0.2)
	m.RecordUpload(true, 0.2)
	m.RecordUpload(true, 0.3)
	if got := value(t, m.Uploads.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful uploads, got %v", got)
	}

	m.TaskStarted()
	m.TaskFinished("finalize", errors.New("404"))
	if got := value(t, m.TasksInFlight); got != 0 {
		t.Errorf("Expected no tasks in flight, got %v", got)
	}
	if got := value(t, m.TaskFailures.WithLabelValues("finalize")); got != 1 {
		t.Errorf("Expected 1 finalize failure, got %v", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide when registered on different registries.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
