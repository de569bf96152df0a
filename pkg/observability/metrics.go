package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the distribution engine.
type Metrics struct {
	registry *prometheus.Registry

	// Download metrics
	DownloadsTotal     *prometheus.CounterVec
	DownloadBytesTotal prometheus.Counter
	DownloadDuration   prometheus.Histogram

	// Registry metrics
	RegistryRequestsTotal *prometheus.CounterVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter

	// Resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration prometheus.Histogram

	// Installation metrics
	InstalledPlugins prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// creates a private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimux_plugin_downloads_total",
				Help: "Total number of plugin download attempts",
			},
			[]string{"result"},
		),
		DownloadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aimux_plugin_download_bytes_total",
				Help: "Total bytes downloaded for plugin artifacts",
			},
		),
		DownloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aimux_plugin_download_duration_seconds",
				Help:    "Plugin download duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		RegistryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimux_registry_requests_total",
				Help: "Total number of registry API requests",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aimux_registry_cache_hits_total",
				Help: "Registry metadata cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aimux_registry_cache_misses_total",
				Help: "Registry metadata cache misses",
			},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aimux_resolutions_total",
				Help: "Total number of dependency resolutions",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aimux_resolution_duration_seconds",
				Help:    "Dependency resolution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		InstalledPlugins: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aimux_installed_plugins",
				Help: "Number of currently installed plugins",
			},
		),
	}

	registry.MustRegister(
		m.DownloadsTotal,
		m.DownloadBytesTotal,
		m.DownloadDuration,
		m.RegistryRequestsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.InstalledPlugins,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDownload records a completed download attempt.
func (m *Metrics) RecordDownload(result string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.DownloadBytesTotal.Add(float64(bytes))
	}
	m.DownloadDuration.Observe(duration.Seconds())
}

// RecordRegistryRequest records a registry API request outcome.
func (m *Metrics) RecordRegistryRequest(result string) {
	if m == nil {
		return
	}
	m.RegistryRequestsTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit records a registry cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a registry cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordResolution records a resolution outcome.
func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.Observe(duration.Seconds())
}

// SetInstalledPlugins updates the installed-plugin gauge.
func (m *Metrics) SetInstalledPlugins(n int) {
	if m == nil {
		return
	}
	m.InstalledPlugins.Set(float64(n))
}
