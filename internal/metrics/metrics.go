// Package metrics exposes the monitor's view as Prometheus gauges.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tnunamak/gravmeter/internal/alert"
	"github.com/tnunamak/gravmeter/internal/monitor"
)

var (
	// Usage metrics
	UsagePercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_usage_percent",
			Help: "Share of the credit allowance consumed",
		},
	)

	CreditsUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_credits_used",
			Help: "Credits consumed in the current window",
		},
	)

	CreditsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_credits_total",
			Help: "Credit allowance for the current window",
		},
	)

	CreditsRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_credits_remaining",
			Help: "Credits left in the current window",
		},
	)

	ResetTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_reset_timestamp_seconds",
			Help: "Unix time of the next quota reset",
		},
	)

	ModelRemainingPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gravmeter_model_remaining_percent",
			Help: "Per-model remaining quota",
		},
		[]string{"model"},
	)

	// Health metrics
	Stale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gravmeter_stale",
			Help: "1 when the published usage is a last-known value",
		},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravmeter_polls_total",
			Help: "Published polls by outcome",
		},
		[]string{"result"},
	)

	// Alert metrics
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gravmeter_alerts_total",
			Help: "Threshold alerts fired",
		},
		[]string{"threshold", "severity"},
	)
)

func init() {
	prometheus.MustRegister(
		UsagePercent,
		CreditsUsed,
		CreditsTotal,
		CreditsRemaining,
		ResetTimestamp,
		ModelRemainingPercent,
		Stale,
		PollsTotal,
		AlertsTotal,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Sink records snapshots and alerts. It is stateless; the registry holds
// the values.
type Sink struct{}

func (Sink) Loading() {}

func (Sink) Update(s monitor.Snapshot) {
	result := "ok"
	if s.ErrKind != "" {
		result = string(s.ErrKind)
	}
	PollsTotal.WithLabelValues(result).Inc()

	if s.Stale {
		Stale.Set(1)
	} else {
		Stale.Set(0)
	}

	rec := s.Record
	if rec == nil {
		return
	}
	UsagePercent.Set(rec.Percentage)
	CreditsUsed.Set(float64(rec.Used))
	CreditsTotal.Set(float64(rec.Total))
	CreditsRemaining.Set(float64(rec.Remaining))
	if !rec.ResetTime.IsZero() {
		ResetTimestamp.Set(float64(rec.ResetTime.Unix()))
	}
	ModelRemainingPercent.Reset()
	for _, q := range rec.ModelQuotas {
		ModelRemainingPercent.WithLabelValues(q.Name).Set(q.RemainingPercent)
	}
}

func (Sink) Alert(a alert.Alert) {
	AlertsTotal.WithLabelValues(strconv.Itoa(a.Threshold), string(a.Severity)).Inc()
}
