package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "rmb"

// PromMetrics mirrors events into Prometheus collectors on a private
// registry.
type PromMetrics struct {
	registry       *prometheus.Registry
	events         *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	charsFetched   prometheus.Counter
	favoritesTotal prometheus.Gauge
}

// NewPromMetrics registers the browser collectors plus the Go runtime and
// process collectors.
func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PromMetrics{
		registry: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "events_total",
			Help:      "Events recorded, by type.",
		}, []string{"type"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Character page fetch latency, by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		charsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "characters_fetched_total",
			Help:      "Characters received from the API.",
		}),
		favoritesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: promNamespace,
			Name:      "favorites",
			Help:      "Characters currently starred.",
		}),
	}
}

// Observe records one event.
func (p *PromMetrics) Observe(eventType string, data map[string]any) {
	p.events.WithLabelValues(eventType).Inc()

	switch eventType {
	case "fetch.page_loaded":
		p.observeFetch("ok", data)
		if n, ok := number(data["results"]); ok {
			p.charsFetched.Add(n)
		}
	case "fetch.initial_failed", "fetch.load_more_failed":
		p.observeFetch("error", data)
	case "favorite.toggled":
		if starred, _ := data["starred"].(bool); starred {
			p.favoritesTotal.Inc()
		} else {
			p.favoritesTotal.Dec()
		}
	}
}

func (p *PromMetrics) observeFetch(outcome string, data map[string]any) {
	if ms, ok := number(data["elapsed_ms"]); ok {
		p.fetchDuration.WithLabelValues(outcome).Observe(ms / 1000)
	}
}

// SetFavorites sets the starred gauge, typically after loading annotations.
func (p *PromMetrics) SetFavorites(n int) {
	p.favoritesTotal.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
