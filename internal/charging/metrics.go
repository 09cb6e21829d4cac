package charging

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports per-consumer recharge figures to Prometheus.
type Metrics struct {
	deficit        *prometheus.GaugeVec
	storedPower    *prometheus.GaugeVec
	reservePower   *prometheus.GaugeVec
	producedPower  *prometheus.CounterVec
	acceptedPower  *prometheus.CounterVec
	nonRenewableOn *prometheus.CounterVec
	ticks          *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deficit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cyclops",
			Name:      "power_deficit",
			Help:      "Power deficit seen at the start of the last tick.",
		}, []string{"consumer"}),
		storedPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cyclops",
			Name:      "stored_power",
			Help:      "Energy stored in the consumer's relay after the last tick.",
		}, []string{"consumer"}),
		reservePower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cyclops",
			Name:      "reserve_power",
			Help:      "Total reserve power reported by the consumer's chargers.",
		}, []string{"consumer"}),
		producedPower: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclops",
			Name:      "produced_power_total",
			Help:      "Raw power produced by chargers, before the recharge penalty.",
		}, []string{"consumer", "tier"}),
		acceptedPower: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclops",
			Name:      "accepted_power_total",
			Help:      "Energy accepted by the consumer's relay.",
		}, []string{"consumer"}),
		nonRenewableOn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclops",
			Name:      "non_renewable_activations_total",
			Help:      "Ticks in which the non-renewable tier was engaged.",
		}, []string{"consumer"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cyclops",
			Name:      "recharge_ticks_total",
			Help:      "Recharge ticks executed.",
		}, []string{"consumer"}),
	}

	collectors := []prometheus.Collector{
		m.deficit, m.storedPower, m.reservePower, m.producedPower,
		m.acceptedPower, m.nonRenewableOn, m.ticks,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("registering charging metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) Observe(consumerID string, report TickReport, stored float64, reserve int) {
	if m == nil {
		return
	}

	m.ticks.WithLabelValues(consumerID).Inc()
	m.deficit.WithLabelValues(consumerID).Set(report.Deficit)
	m.storedPower.WithLabelValues(consumerID).Set(stored)
	m.reservePower.WithLabelValues(consumerID).Set(float64(reserve))

	if report.RenewablePower > 0 {
		m.producedPower.WithLabelValues(consumerID, "renewable").Add(report.RenewablePower)
	}
	if report.NonRenewablePower > 0 {
		m.producedPower.WithLabelValues(consumerID, "non_renewable").Add(report.NonRenewablePower)
	}
	if report.AcceptedPower > 0 {
		m.acceptedPower.WithLabelValues(consumerID).Add(report.AcceptedPower)
	}
	if report.NonRenewableEngaged {
		m.nonRenewableOn.WithLabelValues(consumerID).Inc()
	}
}
