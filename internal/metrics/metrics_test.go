package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fakeyudi/promptwatch/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.SetActiveSessions("x", 3)
	m.ForgetMonitor("x")
	m.Scan(false)
	m.Capture("direct", "success")
	m.Conversation("stored")
	m.MonitorStarted()
	m.MonitorStopped()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := metrics.New()
	m.SessionOpened()
	m.SessionOpened()
	m.Conversation("stored")
	m.Conversation("duplicate")
	m.Capture("script", "timeout")
	m.SetActiveSessions("m-1", 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"promptwatch_sessions_opened_total 2",
		`promptwatch_conversations_total{outcome="stored"} 1`,
		`promptwatch_captures_total{method="script",status="timeout"} 1`,
		`promptwatch_active_sessions{monitor="m-1"} 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestForgetMonitor(t *testing.T) {
	m := metrics.New()
	m.SetActiveSessions("m-1", 4)
	m.ForgetMonitor("m-1")
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "promptwatch_active_sessions" && len(f.GetMetric()) != 0 {
			t.Errorf("active_sessions still has %d series", len(f.GetMetric()))
		}
	}
}
