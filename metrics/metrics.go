package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for card sessions.
type Metrics struct {
	// Classified sessions by classification kind and brand
	Sessions *prometheus.CounterVec

	// Aborted sessions by reason
	Aborted *prometheus.CounterVec

	// Time from detection to classification
	SessionDuration prometheus.Histogram

	// Apdu exchanges by instruction and status word class
	Exchanges *prometheus.CounterVec

	// Single command round trip
	ExchangeLatency prometheus.Histogram
}

// New registers the card session metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardid_sessions_total",
			Help: "Classified card sessions by classification kind and brand",
		}, []string{"kind", "brand"}),

		Aborted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardid_sessions_aborted_total",
			Help: "Card sessions aborted before classification by reason",
		}, []string{"reason"}), // reason: "removed", "unresponsive", "cancelled", "hardware"

		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardid_session_duration_seconds",
			Help:    "Duration from card detection to classification",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),

		Exchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardid_apdu_exchanges_total",
			Help: "Apdu exchanges by instruction byte and status word class",
		}, []string{"ins", "sw"}),

		ExchangeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardid_apdu_duration_seconds",
			Help:    "Duration of a single apdu round trip",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		}),
	}
}

// IncrementSession records a classified session.
func (m *Metrics) IncrementSession(kind, brand string) {
	if m != nil {
		m.Sessions.WithLabelValues(kind, brand).Inc()
	}
}

// IncrementAborted records an aborted session.
func (m *Metrics) IncrementAborted(reason string) {
	if m != nil {
		m.Aborted.WithLabelValues(reason).Inc()
	}
}

// ObserveSession records the session duration.
func (m *Metrics) ObserveSession(d time.Duration) {
	if m != nil {
		m.SessionDuration.Observe(d.Seconds())
	}
}

// ObserveExchange records one apdu round trip. Transport failures have sw 0.
func (m *Metrics) ObserveExchange(ins uint8, sw uint16, d time.Duration) {
	if m != nil {
		m.Exchanges.WithLabelValues(fmt.Sprintf("%02X", ins), swClass(sw)).Inc()
		m.ExchangeLatency.Observe(d.Seconds())
	}
}

func swClass(sw uint16) string {
	switch {
	case sw == 0:
		return "error"
	case sw == 0x9000:
		return "9000"
	default:
		return fmt.Sprintf("%02XXX", sw>>8)
	}
}
