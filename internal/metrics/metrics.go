// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamzrod/battery-coordinator/internal/poller"
)

const namespace = "battery"

// Metrics holds the coordinator's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	writes   *prometheus.CounterVec
	values   *prometheus.GaugeVec
	health   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by outcome state.",
		}, []string{"device", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of one poll cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"device"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_writes_total",
			Help:      "Register write attempts by result.",
		}, []string{"device", "result"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Last committed register value.",
		}, []string{"device", "register"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_health",
			Help:      "Device health code (0 unknown, 1 ok, 2 error, 3 stale, 4 disabled).",
		}, []string{"device"}),
	}

	for _, c := range []prometheus.Collector{m.cycles, m.duration, m.writes, m.values, m.health} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCycle records one poll result and, if committed, its values.
func (m *Metrics) ObserveCycle(res poller.PollResult) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(res.DeviceID, res.State.String()).Inc()
	m.duration.WithLabelValues(res.DeviceID).Observe(res.Duration.Seconds())

	for name, v := range res.Values {
		m.values.WithLabelValues(res.DeviceID, name).Set(v)
	}
}

// ObserveWrite counts one write attempt.
func (m *Metrics) ObserveWrite(device, register string, value float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.values.WithLabelValues(device, register).Set(value)
	}
	m.writes.WithLabelValues(device, result).Inc()
}

// SetHealth publishes a device's health code.
func (m *Metrics) SetHealth(device string, health uint16) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(device).Set(float64(health))
}
