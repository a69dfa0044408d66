package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes Prometheus observability primitives for the gateway.
type Metrics struct {
	lookups          *prometheus.CounterVec
	lookupRetries    *prometheus.CounterVec
	creditsCharged   *prometheus.CounterVec
	creditsRefunded  prometheus.Counter
	providerDuration *prometheus.HistogramVec
	reservationsOpen prometheus.Gauge
	sweepReleased    prometheus.Counter
	ledgerEntries    *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics for the gateway core.
func NewMetrics() *Metrics {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_lookups_total",
		Help: "Counts lookup invocations by operation and terminal status.",
	}, []string{"operation", "status"})

	lookupRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_lookup_retries_total",
		Help: "Counts automatic lookup retries by operation and error kind.",
	}, []string{"operation", "kind"})

	creditsCharged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_credits_charged_total",
		Help: "Total credits charged per operation.",
	}, []string{"operation"})

	creditsRefunded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verigate_credits_refunded_total",
		Help: "Total credits returned through refund entries.",
	})

	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verigate_provider_duration_seconds",
		Help:    "Provider call latency per provider family.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	reservationsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verigate_reservations_open",
		Help: "Reservations currently pending settlement.",
	})

	sweepReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verigate_reservation_sweep_released_total",
		Help: "Orphaned reservations released by the background sweep.",
	})

	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verigate_ledger_entries_total",
		Help: "Ledger entries appended by action.",
	}, []string{"action"})

	prometheus.MustRegister(
		lookups,
		lookupRetries,
		creditsCharged,
		creditsRefunded,
		providerDuration,
		reservationsOpen,
		sweepReleased,
		ledgerEntries,
	)

	return &Metrics{
		lookups:          lookups,
		lookupRetries:    lookupRetries,
		creditsCharged:   creditsCharged,
		creditsRefunded:  creditsRefunded,
		providerDuration: providerDuration,
		reservationsOpen: reservationsOpen,
		sweepReleased:    sweepReleased,
		ledgerEntries:    ledgerEntries,
	}
}

func (m *Metrics) ObserveLookup(operation, status string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveRetry(operation, kind string) {
	if m == nil {
		return
	}
	m.lookupRetries.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) ObserveCreditsCharged(operation string, credits int64) {
	if m == nil {
		return
	}
	m.creditsCharged.WithLabelValues(operation).Add(float64(credits))
}

func (m *Metrics) ObserveCreditsRefunded(credits int64) {
	if m == nil {
		return
	}
	m.creditsRefunded.Add(float64(credits))
}

func (m *Metrics) ObserveProviderCall(provider string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) ReservationOpened() {
	if m == nil {
		return
	}
	m.reservationsOpen.Inc()
}

func (m *Metrics) ReservationSettled() {
	if m == nil {
		return
	}
	m.reservationsOpen.Dec()
}

func (m *Metrics) ObserveSweepReleased(count int) {
	if m == nil {
		return
	}
	m.sweepReleased.Add(float64(count))
}

func (m *Metrics) ObserveLedgerEntry(action string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(action).Inc()
}

// Module provides gateway metrics.
var Module = fx.Module("telemetry",
	fx.Provide(NewMetrics),
)
