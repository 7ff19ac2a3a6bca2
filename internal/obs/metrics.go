package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ResolutionsTotal    *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	CacheCoalescedTotal prometheus.Counter
	RateLimitDropsTotal prometheus.Counter

	ProviderErrors      *prometheus.CounterVec
	ProviderLatency     *prometheus.HistogramVec
	RateLimitWait       *prometheus.HistogramVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_resolutions_total",
			Help: "Price resolutions by data source",
		}, []string{"data_source"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_cache_hits_total",
			Help: "Number of resolutions served from the cache",
		}),
		CacheCoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "price_cache_coalesced_total",
			Help: "Requests that joined an in-flight resolution for the same key",
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Failures returned by each provider",
		}, []string{"provider"},
		),
		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_ratelimit_drops_total",
			Help: "Inbound requests dropped due to rate limiting",
		}),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_latency_seconds",
				Help:    "Latency of provider fetches",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"provider"},
		),
		RateLimitWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "domain_permit_wait_seconds",
				Help:    "Time spent waiting for a per-domain permit",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"domain"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	// Register metrics with Prometheus
	p.MustRegister(
		m.ResolutionsTotal,
		m.CacheHitsTotal,
		m.CacheCoalescedTotal,
		m.ProviderErrors,
		m.RateLimitDropsTotal,
		m.ProviderLatency,
		m.RateLimitWait,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncResolutions(dataSource string) {
	m.ResolutionsTotal.WithLabelValues(dataSource).Inc()
}

func (m *Metrics) IncCacheHits()      { m.CacheHitsTotal.Inc() }
func (m *Metrics) IncCacheCoalesced() { m.CacheCoalescedTotal.Inc() }

func (m *Metrics) IncRateLimitDrops() { m.RateLimitDropsTotal.Inc() }

func (m *Metrics) ObserveProviderLatency(provider string, seconds float64) {
	m.ProviderLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) IncProviderFailure(provider string) {
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObservePermitWait(domain string, seconds float64) {
	m.RateLimitWait.WithLabelValues(domain).Observe(seconds)
}

func (m *Metrics) ObserveHTTPRequestDuration(method string, path string, status string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

func (m *Metrics) IncHTTPRequestsTotal(method string, path string, status string) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
