// Package metrics exposes Prometheus metrics for the HTTP API, storage and reconciliation.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/gallery"
)

const namespace = "gallerystore"

// statsTimeout bounds a storage scan triggered by a scrape.
const statsTimeout = 10 * time.Second

// StatsSource provides storage statistics.
type StatsSource interface {
	Stats(ctx context.Context) (assets.Stats, error)
}

// Metrics holds the registry and the application collectors.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	reconcileOrphans prometheus.Gauge
	reconcileRemoved prometheus.Counter
	reconcileRuns    prometheus.Counter
}

// New creates the metrics registry. When stats is not nil, storage
// statistics are collected on every scrape.
func New(stats StatsSource, logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		reconcileOrphans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphan_directories",
			Help:      "Upload directories without a catalog gallery at the last reconcile pass",
		}),
		reconcileRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_directories_removed_total",
			Help:      "Orphaned upload directories deleted by reconciliation",
		}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Completed reconcile passes",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.reconcileOrphans,
		m.reconcileRemoved,
		m.reconcileRuns,
	)

	if stats != nil {
		registry.MustRegister(newStorageCollector(stats, logger))
	}

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveReconcile records the outcome of a reconcile pass.
func (m *Metrics) ObserveReconcile(report gallery.Report) {
	m.reconcileRuns.Inc()
	m.reconcileOrphans.Set(float64(len(report.Orphans) - len(report.Removed)))
	m.reconcileRemoved.Add(float64(len(report.Removed)))
}

// storageCollector scans the uploads directory at scrape time.
type storageCollector struct {
	stats     StatsSource
	logger    *slog.Logger
	files     *prometheus.Desc
	bytes     *prometheus.Desc
	galleries *prometheus.Desc
	up        *prometheus.Desc
}

func newStorageCollector(stats StatsSource, logger *slog.Logger) *storageCollector {
	return &storageCollector{
		stats:  stats,
		logger: logger,
		files: prometheus.NewDesc(prometheus.BuildFQName(namespace, "storage", "files"),
			"Files stored across all gallery directories", nil, nil),
		bytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "storage", "bytes"),
			"Bytes stored across all gallery directories", nil, nil),
		galleries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "storage", "galleries"),
			"Gallery directories under the uploads root", nil, nil),
		up: prometheus.NewDesc(prometheus.BuildFQName(namespace, "storage", "scan_success"),
			"Whether the last storage scan succeeded", nil, nil),
	}
}

func (c *storageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.files
	ch <- c.bytes
	ch <- c.galleries
	ch <- c.up
}

func (c *storageCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := c.stats.Stats(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "storage scan for metrics failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.files, prometheus.GaugeValue, float64(stats.TotalFiles))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(stats.TotalSize))
	ch <- prometheus.MustNewConstMetric(c.galleries, prometheus.GaugeValue, float64(stats.GalleriesCount))
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
}
