package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry coordinator. All helper
// methods are nil-safe so wiring metrics stays optional.
type Metrics struct {
	// Registry lifecycle
	Registrations prometheus.Counter
	Unregistered  prometheus.Counter
	Evictions     prometheus.Counter

	// Fan-out size per multicast call
	MulticastTargets prometheus.Histogram

	// Delivery outcomes by terminal status
	Deliveries *prometheus.CounterVec

	// Per-target delivery latency
	DeliveryLatency prometheus.Histogram

	// Deliveries currently in flight across all multicast calls
	InflightDeliveries prometheus.Gauge
}

// New creates a Metrics instance with all registry metrics registered on
// the default registerer.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regcast_registrations_total",
			Help: "Total identities registered, including replacements",
		}),
		Unregistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regcast_unregistered_total",
			Help: "Total identities removed by Unregister",
		}),
		Evictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regcast_evictions_total",
			Help: "Total identities removed by TTL eviction",
		}),
		MulticastTargets: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "regcast_multicast_targets",
			Help:    "Resolved target count per multicast call",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regcast_deliveries_total",
			Help: "Delivery outcomes by terminal status",
		}, []string{"status"}), // status: "delivered", "failed", "timed_out"
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "regcast_delivery_duration_seconds",
			Help:    "Per-target delivery duration including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		InflightDeliveries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "regcast_inflight_deliveries",
			Help: "Deliveries currently in flight across all multicast calls",
		}),
	}
}

// IncRegistered records a successful registration.
func (m *Metrics) IncRegistered() {
	if m != nil {
		m.Registrations.Inc()
	}
}

// IncUnregistered records an explicit removal.
func (m *Metrics) IncUnregistered() {
	if m != nil {
		m.Unregistered.Inc()
	}
}

// IncEvicted records a TTL eviction.
func (m *Metrics) IncEvicted() {
	if m != nil {
		m.Evictions.Inc()
	}
}

// ObserveFanout records the resolved target count of a multicast call.
func (m *Metrics) ObserveFanout(targets int) {
	if m != nil {
		m.MulticastTargets.Observe(float64(targets))
	}
}

// ObserveDelivery records one terminal delivery outcome and its latency.
func (m *Metrics) ObserveDelivery(status string, d time.Duration) {
	if m != nil {
		m.Deliveries.WithLabelValues(status).Inc()
		m.DeliveryLatency.Observe(d.Seconds())
	}
}

// DeliveryStarted marks a delivery entering the in-flight pool.
func (m *Metrics) DeliveryStarted() {
	if m != nil {
		m.InflightDeliveries.Inc()
	}
}

// DeliveryDone marks a delivery leaving the in-flight pool.
func (m *Metrics) DeliveryDone() {
	if m != nil {
		m.InflightDeliveries.Dec()
	}
}
