package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for dsv_reports_total.
const (
	OutcomeAccepted         = "accepted"
	OutcomeInvalid          = "invalid"
	OutcomeAllocationFailed = "allocation_failed"
	OutcomeDeliveryFailed   = "delivery_failed"
)

type Metrics struct {
	reports      *prometheus.CounterVec
	codesIssued  prometheus.Counter
	sendDuration prometheus.Histogram
}

// NewMetrics registers the intake collectors on reg. A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dsv_reports_total",
			Help: "Report submissions by outcome.",
		}, []string{"outcome"}),
		codesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "dsv_practice_codes_issued_total",
			Help: "Practice codes allocated.",
		}),
		sendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsv_mail_send_duration_seconds",
			Help:    "Time spent handing a report email to the mail provider.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeCode() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) observeSend(seconds float64) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(seconds)
}
