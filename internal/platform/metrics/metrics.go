package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the pull-stream proxy.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	activeProxies      prometheus.Gauge
	proxiesCreated     prometheus.Counter
	proxiesClosedTotal prometheus.Counter
	playSuccessTotal   prometheus.Counter
	playFailedTotal    prometheus.Counter
	repullsTotal       prometheus.Counter
}

// New creates and registers Prometheus metrics for the proxy server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeProxies := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pullproxy_active_proxies",
		Help: "Number of proxies currently connected to their upstream",
	})
	proxiesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_proxies_created_total",
		Help: "Total number of proxies created",
	})
	proxiesClosedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_proxies_closed_total",
		Help: "Total number of proxies torn down",
	})
	playSuccessTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_play_success_total",
		Help: "Total number of successful upstream connects",
	})
	playFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_play_failed_total",
		Help: "Total number of failed upstream connect attempts",
	})
	repullsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullproxy_repulls_total",
		Help: "Total number of scheduled reconnect attempts",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeProxies,
		proxiesCreated,
		proxiesClosedTotal,
		playSuccessTotal,
		playFailedTotal,
		repullsTotal,
	)

	return &Metrics{
		registry:           registry,
		requestsTotal:      requestsTotal,
		errorsTotal:        errorsTotal,
		activeProxies:      activeProxies,
		proxiesCreated:     proxiesCreated,
		proxiesClosedTotal: proxiesClosedTotal,
		playSuccessTotal:   playSuccessTotal,
		playFailedTotal:    playFailedTotal,
		repullsTotal:       repullsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveProxies sets the connected-proxies gauge.
func (m *Metrics) SetActiveProxies(n int) {
	m.activeProxies.Set(float64(n))
}

// IncProxiesCreated increments the proxies created counter.
func (m *Metrics) IncProxiesCreated() {
	m.proxiesCreated.Inc()
}

// IncProxiesClosed increments the proxies closed counter.
func (m *Metrics) IncProxiesClosed() {
	m.proxiesClosedTotal.Inc()
}

// IncPlaySuccess increments the successful connects counter.
func (m *Metrics) IncPlaySuccess() {
	m.playSuccessTotal.Inc()
}

// IncPlayFailed increments the failed connects counter.
func (m *Metrics) IncPlayFailed() {
	m.playFailedTotal.Inc()
}

// IncRepulls increments the scheduled reconnects counter.
func (m *Metrics) IncRepulls() {
	m.repullsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// active proxies).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
