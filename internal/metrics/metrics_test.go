package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.EventPublished()
	m.DeliveryFailed()
	m.IngestRequest(OutcomeOK)
	if got := m.SessionsOpen(); got != 0 {
		t.Errorf("SessionsOpen() on nil = %d, want 0", got)
	}
	if got := m.IngestCount(OutcomeOK); got != 0 {
		t.Errorf("IngestCount() on nil = %d, want 0", got)
	}

	var sb strings.Builder
	if err := m.WriteText(&sb); err != nil || sb.Len() != 0 {
		t.Errorf("WriteText() on nil = %q, %v", sb.String(), err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("nil Handler() status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "neurobot_") {
		t.Errorf("nil Handler() exposed metrics:\n%s", rec.Body.String())
	}
}

func TestIngestCountDoesNotCreateSeries(t *testing.T) {
	m := New()
	if got := m.IngestCount(OutcomeDegraded); got != 0 {
		t.Errorf("IngestCount() = %d, want 0", got)
	}
	m.IngestRequest(OutcomeOK)
	if got := m.IngestCount(OutcomeOK); got != 1 {
		t.Errorf("IngestCount(ok) = %d, want 1", got)
	}

	var sb strings.Builder
	if err := m.WriteText(&sb); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sb.String(), `outcome="degraded"`) {
		t.Errorf("reading a count exposed an empty series:\n%s", sb.String())
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.EventPublished()
	m.DeliveryFailed()
	m.DeliveryFailed()
	m.IngestRequest(OutcomeOK)
	m.IngestRequest(OutcomeOK)
	m.IngestRequest(OutcomeInvalid)

	if got := m.SessionsOpen(); got != 1 {
		t.Errorf("SessionsOpen() = %d, want 1", got)
	}

	var sb strings.Builder
	if err := m.WriteText(&sb); err != nil {
		t.Fatalf("WriteText() error: %v", err)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("exposition does not parse: %v\n%s", err, sb.String())
	}

	tests := []struct {
		name string
		want float64
	}{
		{"neurobot_ws_events_published_total", 1},
		{"neurobot_ws_deliveries_failed_total", 2},
	}
	for _, tt := range tests {
		mf, ok := families[tt.name]
		if !ok {
			t.Errorf("family %s missing", tt.name)
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if got := families["neurobot_ws_sessions_open"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("sessions_open = %v, want 1", got)
	}

	ingest := families["neurobot_ingest_requests_total"]
	if ingest == nil || len(ingest.GetMetric()) != 2 {
		t.Fatalf("ingest family = %v, want two outcomes", ingest)
	}
	for _, metric := range ingest.GetMetric() {
		label := metric.GetLabel()[0].GetValue()
		want := map[string]float64{OutcomeOK: 2, OutcomeInvalid: 1}[label]
		if got := metric.GetCounter().GetValue(); got != want {
			t.Errorf("ingest{outcome=%q} = %v, want %v", label, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.EventPublished()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "neurobot_ws_events_published_total 1") {
		t.Errorf("body missing counter:\n%s", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}
