package escrow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Deposit Escrow.
type Metrics struct {
	DepositsTotal    prometheus.Counter
	DepositAmount    prometheus.Histogram
	ResolutionsTotal *prometheus.CounterVec
	HeldBalance      prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		DepositsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "escrow_deposits_total",
				Help: "Total number of collateral deposits accepted",
			},
		),

		DepositAmount: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "escrow_deposit_amount",
				Help:    "Collateral amounts per deposit",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrow_resolutions_total",
				Help: "Total escrow resolutions by outcome",
			},
			[]string{"outcome"}, // outcome: returned, forfeited, failed
		),

		HeldBalance: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "escrow_held_balance",
				Help: "Total collateral currently held in escrow",
			},
		),
	}
}

// RecordDeposit records an accepted deposit.
func (m *Metrics) RecordDeposit(amount int64) {
	m.DepositsTotal.Inc()
	m.DepositAmount.Observe(float64(amount))
	m.HeldBalance.Add(float64(amount))
}

// RecordResolution records a resolution outcome.
func (m *Metrics) RecordResolution(outcome string, amount int64) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	if outcome != "failed" {
		m.HeldBalance.Sub(float64(amount))
	}
}
