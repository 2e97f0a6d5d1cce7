package thermolight

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes cycle results in Prometheus format on a private registry
type Metrics struct {
	registry *prometheus.Registry

	temperature      prometheus.Gauge
	colour           *prometheus.GaugeVec
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	sessionConnected prometheus.Gauge
	sessionRebuilds  prometheus.Gauge
	offWindow        prometheus.Gauge
	failureStreak    prometheus.Gauge
}

// NewMetrics registers the thermolight collectors plus the Go runtime collectors
func NewMetrics(location string) *Metrics {
	labels := prometheus.Labels{"location": location}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "temperature_celsius",
			Help:        "Last temperature read from the sensor.",
			ConstLabels: labels,
		}),
		colour: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "colour_channel",
			Help:        "Last colour sent to the light, per channel in 0-255.",
			ConstLabels: labels,
		}, []string{"channel"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "thermolight",
			Name:        "cycles_total",
			Help:        "Poll cycles by outcome and action.",
			ConstLabels: labels,
		}, []string{"outcome", "action"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "thermolight",
			Name:        "cycle_duration_seconds",
			Help:        "Duration of a poll cycle.",
			ConstLabels: labels,
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		sessionConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "session_connected",
			Help:        "1 when the device session is connected.",
			ConstLabels: labels,
		}),
		sessionRebuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "session_rebuilds",
			Help:        "Number of device session rebuilds since start.",
			ConstLabels: labels,
		}),
		offWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "off_window",
			Help:        "1 while the schedule forces the light off.",
			ConstLabels: labels,
		}),
		failureStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "thermolight",
			Name:        "consecutive_failures",
			Help:        "Current run of non-successful cycles.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.temperature,
		m.colour,
		m.cycles,
		m.cycleDuration,
		m.sessionConnected,
		m.sessionRebuilds,
		m.offWindow,
		m.failureStreak,
	)
	return m
}

// Observe records a finished cycle
func (m *Metrics) Observe(res CycleResult, state SessionState, rebuilds, failureStreak int) {
	if m == nil {
		return
	}

	m.cycles.WithLabelValues(res.Outcome.String(), res.Action).Inc()
	m.cycleDuration.Observe(res.Duration.Seconds())

	if res.HasTemperature {
		m.temperature.Set(res.Temperature)
	}
	if res.HasColor {
		m.colour.WithLabelValues("r").Set(res.Color.R)
		m.colour.WithLabelValues("g").Set(res.Color.G)
		m.colour.WithLabelValues("b").Set(res.Color.B)
	}

	m.sessionConnected.Set(boolGauge(state == SessionConnected))
	m.sessionRebuilds.Set(float64(rebuilds))
	m.offWindow.Set(boolGauge(res.InOffWindow))
	m.failureStreak.Set(float64(failureStreak))
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
