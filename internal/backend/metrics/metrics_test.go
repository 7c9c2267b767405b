package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveRequest("/detect", 200)
	m.ObserveRequest("/detect", 200)
	m.ObserveRequest("/detect/count", 400)
	m.ObserveDetections([]string{"pothole", "pothole", "crack"})
	m.ObserveDuplicateFrame()
	m.ObserveInference(120 * time.Millisecond)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ObserveLedgerFailure()

	families := gather(t, m)

	requests := families["roadwatch_requests_total"]
	if requests == nil || len(requests.GetMetric()) != 2 {
		t.Fatalf("expected two request series, got %v", requests)
	}

	detections := families["roadwatch_detections_total"]
	for _, metric := range detections.GetMetric() {
		class := metric.GetLabel()[0].GetValue()
		want := map[string]float64{"pothole": 2, "crack": 1}[class]
		if metric.GetCounter().GetValue() != want {
			t.Errorf("class %s: expected %v, got %v", class, want, metric.GetCounter().GetValue())
		}
	}

	if got := families["roadwatch_duplicate_frames_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("expected 1 duplicate frame, got %v", got)
	}
	if got := families["roadwatch_websocket_connections"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("expected 1 open connection, got %v", got)
	}
	if got := families["roadwatch_inference_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("expected 1 inference sample, got %v", got)
	}
	if got := families["roadwatch_ledger_failures_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("expected 1 ledger failure, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("/probe", 200)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `roadwatch_requests_total{code="200",endpoint="/probe"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveDuplicateFrame()
	if got := gather(t, b)["roadwatch_duplicate_frames_total"].GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Errorf("expected registries to be independent, got %v", got)
	}
}
