package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters exported on /metrics.
var (
	ForecastCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkpulse_forecast_cycles_total",
		Help: "Forecast pipeline cycles, by result.",
	}, []string{"result"})

	ForecastsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_forecasts_stored_total",
		Help: "Forecasts persisted by the pipeline.",
	})

	SpikeAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_spike_alerts_total",
		Help: "Spike alert e-mails sent.",
	})

	Redirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkpulse_redirects_total",
		Help: "Successful short-link resolutions.",
	})
)
