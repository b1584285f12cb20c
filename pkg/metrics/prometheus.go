package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics and queue.Observer using Prometheus.
type Recorder struct {
	fetches       *prometheus.CounterVec
	fetchAttempts *prometheus.HistogramVec
	trainings     *prometheus.CounterVec
	trainLatency  *prometheus.HistogramVec
	activeVersion *prometheus.GaugeVec
	publishTime   *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_fetch_total",
			Help: "History fetches by asset and result",
		}, []string{"asset", "result"}),
		fetchAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_fetch_attempts",
			Help:    "Provider attempts needed per fetch",
			Buckets: []float64{1, 2, 3, 4},
		}, []string{"result"}),
		trainings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_training_runs_total",
			Help: "Training runs by asset and status",
		}, []string{"asset", "status"}),
		trainLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_training_duration_seconds",
			Help:    "Training run duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		activeVersion: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fincast_model_active_version",
			Help: "Active model version per asset",
		}, []string{"asset"}),
		publishTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_publish_duration_seconds",
			Help:    "Atomic publish transaction duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"asset"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_cache_lookups_total",
			Help: "Forecast cache lookups by kind and result",
		}, []string{"kind", "result"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_jobs_total",
			Help: "Background jobs handled by type and result",
		}, []string{"type", "result"}),
		jobLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_job_duration_seconds",
			Help:    "Background job duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"type"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fincast_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordFetch(asset, result string, attempts int) {
	r.fetches.WithLabelValues(asset, result).Inc()
	r.fetchAttempts.WithLabelValues(result).Observe(float64(attempts))
}

func (r *Recorder) RecordTraining(asset string, status string, seconds float64) {
	r.trainings.WithLabelValues(asset, status).Inc()
	r.trainLatency.WithLabelValues(status).Observe(seconds)
}

func (r *Recorder) RecordPublish(asset string, version int, seconds float64) {
	r.activeVersion.WithLabelValues(asset).Set(float64(version))
	r.publishTime.WithLabelValues(asset).Observe(seconds)
}

func (r *Recorder) RecordCache(kind, result string) {
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// ObserveJob implements queue.Observer.
func (r *Recorder) ObserveJob(jobType, result string, elapsed time.Duration) {
	r.jobs.WithLabelValues(jobType, result).Inc()
	r.jobLatency.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordFetch(string, string, int) {}
func (Nop) RecordTraining(string, string, float64) {}
func (Nop) RecordPublish(string, int, float64) {}
func (Nop) RecordCache(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) ObserveJob(string, string, time.Duration) {}
