package session

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-i2p/go-sam-session/lib/util"
)

// Metrics contains the registry's prometheus collectors.
type Metrics struct {
	Handshakes        *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
	ActiveSessions    prometheus.Gauge
	AttachedStreams   prometheus.Gauge
	InFlight          prometheus.Gauge
	Waiters           prometheus.Gauge
	Teardowns         *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samsession",
				Subsystem: "handshake",
				Name:      "total",
				Help:      "Session handshakes by outcome",
			},
			[]string{"outcome"},
		),

		HandshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "samsession",
				Subsystem: "handshake",
				Name:      "duration_seconds",
				Help:      "Time from dial to established or failed",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "samsession",
				Subsystem: "registry",
				Name:      "active_sessions",
				Help:      "Sessions currently registered",
			},
		),

		AttachedStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "samsession",
				Subsystem: "registry",
				Name:      "attached_streams",
				Help:      "Streams attached across all sessions",
			},
		),

		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "samsession",
				Subsystem: "registry",
				Name:      "inflight_handshakes",
				Help:      "Handshakes currently in progress",
			},
		),

		Waiters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "samsession",
				Subsystem: "registry",
				Name:      "waiters",
				Help:      "Callers waiting on an in-flight handshake",
			},
		),

		Teardowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "samsession",
				Subsystem: "registry",
				Name:      "teardowns_total",
				Help:      "Sessions torn down by reason",
			},
			[]string{"reason"},
		),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Handshakes,
		m.HandshakeDuration,
		m.ActiveSessions,
		m.AttachedStreams,
		m.InFlight,
		m.Waiters,
		m.Teardowns,
	}
}

// Register registers every collector with reg. Collectors that are
// already registered are left in place.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Outcome labels for Handshakes.
const (
	OutcomeOK         = "ok"
	OutcomeCanceled   = "canceled"
	OutcomeConnection = "connection"
	OutcomeSyntax     = "syntax"
	OutcomeValidation = "validation"
	OutcomeOther      = "other"
)

// Teardown reasons.
const (
	ReasonDetached = "detached"
	ReasonEvicted  = "evicted"
	ReasonClosed   = "registry_closed"
)

// outcome maps a handshake error to a low-cardinality label. Router
// result codes are used as-is since the set is closed.
func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var sce *util.SessionCreationError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.As(err, &sce):
		return sce.Result
	case errors.Is(err, util.ErrValidation):
		return OutcomeValidation
	case errors.Is(err, util.ErrProtocolSyntax):
		return OutcomeSyntax
	case errors.Is(err, util.ErrConnection):
		return OutcomeConnection
	default:
		return OutcomeOther
	}
}
