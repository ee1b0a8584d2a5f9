package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"getbox/internal/download"
	"getbox/internal/proxy"
)

// Metrics is the service's Prometheus registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	resolutions *prometheus.CounterVec
}

// NewMetrics creates a registry with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "getbox_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "getbox_resolutions_total",
			Help: "Extractor attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.resolutions,
	)
	return m
}

// ObserveResolution counts one extractor attempt. It matches
// extract.ResolverConfig.Observe.
func (m *Metrics) ObserveResolution(platform, outcome string) {
	m.resolutions.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) observeRequest(route, code string) {
	m.requests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// watch exports live pipeline and proxy counters.
func (m *Metrics) watch(p *download.Pipeline, px *proxy.Proxy) {
	register := func(c prometheus.Collector) {
		var are prometheus.AlreadyRegisteredError
		if err := m.registry.Register(c); err != nil && !errors.As(err, &are) {
			panic(err)
		}
	}
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "getbox_ffmpeg_processes",
		Help: "Running ffmpeg processes.",
	}, func() float64 { return float64(p.Active()) }))
	register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "getbox_proxy_bytes_total",
		Help: "Bytes relayed by the file proxy.",
	}, func() float64 { return float64(px.Relayed()) }))
}
