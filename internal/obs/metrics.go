// Copyright 2025 James Ross
package obs

import (
    "fmt"
    "net/http"

    "github.com/flyingrobots/go-redis-work-queue/internal/config"
    "github.com/prometheus/client_golang/prometheus"
    promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    JobsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sharq_jobs_enqueued_total",
        Help: "Total number of jobs enqueued, by queue type",
    }, []string{"queue_type"})
    JobsDequeued = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sharq_jobs_dequeued_total",
        Help: "Total number of jobs dequeued, by queue type",
    }, []string{"queue_type"})
    DequeueRateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sharq_dequeue_rate_limited_total",
        Help: "Total number of dequeue calls that returned no job (no tenant ready), by queue type",
    }, []string{"queue_type"})
    JobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sharq_jobs_finished_total",
        Help: "Total number of jobs marked finished, by queue type",
    }, []string{"queue_type"})
    JobsRequeued = prometheus.NewCounterVec(prometheus.CounterOpts{
        Name: "sharq_jobs_requeued_total",
        Help: "Total number of jobs recovered by a requeue sweep, by queue type",
    }, []string{"queue_type"})
    JobProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
        Name:    "sharq_job_processing_duration_seconds",
        Help:    "Histogram of job handler durations",
        Buckets: prometheus.DefBuckets,
    })
    ReadySetSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Name: "sharq_ready_set_size",
        Help: "Number of tenants currently eligible for dequeue, by queue type",
    }, []string{"queue_type"})
    ActiveSetSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Name: "sharq_active_set_size",
        Help: "Number of jobs currently dequeued but not yet finished, by queue type",
    }, []string{"queue_type"})
    CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "sharq_circuit_breaker_state",
        Help: "0 Closed, 1 HalfOpen, 2 Open",
    })
    CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
        Name: "sharq_circuit_breaker_trips_total",
        Help: "Count of times the circuit breaker transitioned to Open",
    })
    WorkerActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Name: "sharq_worker_active",
        Help: "Number of active consumer goroutines",
    })
)

func init() {
    prometheus.MustRegister(
        JobsEnqueued, JobsDequeued, DequeueRateLimited, JobsFinished, JobsRequeued,
        JobProcessingDuration, ReadySetSize, ActiveSetSize,
        CircuitBreakerState, CircuitBreakerTrips, WorkerActive,
    )
}

// StartMetricsServer exposes /metrics and returns a server for controlled
// shutdown. Retained for compatibility; StartHTTPServer also registers the
// health endpoints and is preferred for new callers.
func StartMetricsServer(cfg *config.Config) *http.Server {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.Handler())
    srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
    go func() { _ = srv.ListenAndServe() }()
    return srv
}
