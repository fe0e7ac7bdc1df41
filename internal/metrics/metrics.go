package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeLimited  = "rate_limited"
	OutcomeFailed   = "failed"
	OutcomeDegraded = "degraded"
)

const ingestFamily = "neurobot_ingest_requests_total"

// Metrics collects live-feed and ingest counters in its own registry. Every
// method, including the exposition ones, is safe on a nil receiver so
// components can run without instrumentation.
type Metrics struct {
	reg *prometheus.Registry

	sessionsOpen   prometheus.Gauge
	published      prometheus.Counter
	deliveryFailed prometheus.Counter
	ingest         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		sessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "neurobot_ws_sessions_open",
			Help: "Open live-feed sessions.",
		}),
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "neurobot_ws_events_published_total",
			Help: "Events published to live-feed groups.",
		}),
		deliveryFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "neurobot_ws_deliveries_failed_total",
			Help: "Per-session deliveries that were dropped.",
		}),
		ingest: f.NewCounterVec(prometheus.CounterOpts{
			Name: ingestFamily,
			Help: "EEG ingest requests by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessionsOpen.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessionsOpen.Dec()
	}
}

func (m *Metrics) EventPublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Metrics) DeliveryFailed() {
	if m != nil {
		m.deliveryFailed.Inc()
	}
}

func (m *Metrics) IngestRequest(outcome string) {
	if m != nil {
		m.ingest.WithLabelValues(outcome).Inc()
	}
}

// IngestCount returns the ingest counter for outcome without creating the
// series when it has never been incremented.
func (m *Metrics) IngestCount(outcome string) uint64 {
	families, _ := m.Gather()
	for _, mf := range families {
		if mf.GetName() != ingestFamily {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == outcome {
					return uint64(metric.GetCounter().GetValue())
				}
			}
		}
	}
	return 0
}

// SessionsOpen returns the current open-session gauge.
func (m *Metrics) SessionsOpen() int64 {
	if m == nil {
		return 0
	}
	var pb dto.Metric
	if err := m.sessionsOpen.Write(&pb); err != nil {
		return 0
	}
	return int64(pb.GetGauge().GetValue())
}

// Gather returns the registry's current metric families.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	if m == nil {
		return nil, nil
	}
	return m.reg.Gather()
}

// WriteText writes the text exposition format to w.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry. A nil Metrics serves an empty exposition.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		Registry:      m.reg,
		ErrorHandling: promhttp.ContinueOnError,
	})
}
