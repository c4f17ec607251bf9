package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks asynchronous ingestion runs. Every series carries the
// service label fixed at construction.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	records  *prometheus.CounterVec
	inFlight prometheus.Gauge
	queueLag prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	labels := prometheus.Labels{"service": service}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}
	}

	m := &WorkerMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("ingestion_runs_total", "Ingestion runs by final ledger status.")),
			[]string{"status"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts(opts("ingestion_records_total", "Records produced and upserted by the worker.")),
			[]string{"kind"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts(opts("ingestion_in_flight", "Ingestion runs currently processing.")),
		),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "ingestion_duration_seconds",
			Help:        "Extract, chunk and index duration by final status.",
			ConstLabels: labels,
			Buckets:     []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between scheduling an ingestion and the worker picking it up.",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.records, m.inFlight, m.queueLag)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track marks a run as in flight until the returned func is called with the
// run's final ledger status and record counts.
func (m *WorkerMetrics) Track() func(status string, records, upserted int) {
	start := time.Now()
	m.inFlight.Inc()
	return func(status string, records, upserted int) {
		m.inFlight.Dec()
		if status == "" {
			status = "unknown"
		}
		m.runs.WithLabelValues(status).Inc()
		m.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		if records > 0 {
			m.records.WithLabelValues("produced").Add(float64(records))
		}
		if upserted > 0 {
			m.records.WithLabelValues("upserted").Add(float64(upserted))
		}
	}
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}
