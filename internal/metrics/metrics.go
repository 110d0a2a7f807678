// Package metrics exposes the service counters to Prometheus. A nil *Metrics is
// valid and records nothing, so components can be built without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestSeconds   *prometheus.SummaryVec
	imagesGenerated  prometheus.Counter
	imagesEncoded    prometheus.Counter
	batches          prometheus.Counter
	failedBatches    prometheus.Counter
	queueDepth       prometheus.Gauge
	generatorSeconds prometheus.Summary
	ffmpegSeconds    prometheus.Summary
	cacheLookups     *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestSeconds: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "request_processing_seconds",
			Help: "Time spent processing a request.",
		}, []string{"route"}),
		imagesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_generating",
			Help: "Images produced by the generator.",
		}),
		imagesEncoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "image_encoding",
			Help: "Images sent to the encoder service.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_batches_total",
			Help: "Inference batches run.",
		}),
		failedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generator_batches_failed_total",
			Help: "Inference batches abandoned after an error.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "job_queue",
			Help: "Jobs waiting for the generator.",
		}),
		generatorSeconds: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "generator_network_seconds",
			Help: "Time spent in one inference call.",
		}),
		ffmpegSeconds: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "ffmpeg_processing_seconds",
			Help: "Time spent encoding videos with ffmpeg.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Artifact cache lookups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestSeconds,
		m.imagesGenerated,
		m.imagesEncoded,
		m.batches,
		m.failedBatches,
		m.queueDepth,
		m.generatorSeconds,
		m.ffmpegSeconds,
		m.cacheLookups,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestSeconds.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ImagesGenerated(n int) {
	if m == nil {
		return
	}
	m.imagesGenerated.Add(float64(n))
}

func (m *Metrics) ImageEncoded() {
	if m == nil {
		return
	}
	m.imagesEncoded.Inc()
}

func (m *Metrics) BatchDone(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.batches.Inc()
	if err != nil {
		m.failedBatches.Inc()
		return
	}
	m.generatorSeconds.Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) ObserveFFmpeg(d time.Duration) {
	if m == nil {
		return
	}
	m.ffmpegSeconds.Observe(d.Seconds())
}

// CacheLookup records a hit or a miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
