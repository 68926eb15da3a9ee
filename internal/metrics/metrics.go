package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the refresh cycle.
type Metrics struct {
	RefreshDuration  prometheus.Histogram
	RefreshTotal     *prometheus.CounterVec // labels: trigger=poll|manual|mutation
	QuoteFetchErrors prometheus.Counter
	StaleDiscarded   prometheus.Counter
	AlertsTriggered  prometheus.Counter
	PortfolioValue   prometheus.Gauge
	DayChange        prometheus.Gauge
	UsingMockData    prometheus.Gauge
	WSClients        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalist_refresh_duration_seconds",
			Help:    "Duration of a quote pull plus valuation and alert evaluation",
			Buckets: prometheus.DefBuckets,
		}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalist_refresh_total",
			Help: "Completed refresh cycles",
		}, []string{"trigger"}),
		QuoteFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalist_quote_fetch_errors_total",
			Help: "Refreshes where the live quote source failed",
		}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalist_stale_refresh_discarded_total",
			Help: "Refresh results dropped because a newer refresh had already been applied",
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalist_alerts_triggered_total",
			Help: "Price alerts that fired",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalist_portfolio_value",
			Help: "Total portfolio value at the last refresh",
		}),
		DayChange: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalist_portfolio_day_change",
			Help: "Portfolio day change at the last refresh",
		}),
		UsingMockData: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalist_using_mock_data",
			Help: "1 when the last refresh was served from the mock dataset",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalist_ws_clients",
			Help: "Connected websocket clients",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RefreshDuration,
			m.RefreshTotal,
			m.QuoteFetchErrors,
			m.StaleDiscarded,
			m.AlertsTriggered,
			m.PortfolioValue,
			m.DayChange,
			m.UsingMockData,
			m.WSClients,
		)
	}
	return m
}

func (m *Metrics) ObserveRefresh(trigger string, d time.Duration) {
	m.RefreshDuration.Observe(d.Seconds())
	m.RefreshTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) SetPortfolio(value, dayChange float64) {
	m.PortfolioValue.Set(value)
	m.DayChange.Set(dayChange)
}

func (m *Metrics) SetUsingMockData(v bool) {
	if v {
		m.UsingMockData.Set(1)
		return
	}
	m.UsingMockData.Set(0)
}
