package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zkgrants/aggregator/log"
)

const namespace = "zkagg"

var (
	ExecutorTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Total number of proof tasks executed by node kind and result",
		},
		[]string{"node_kind", "result"},
	)

	ExecutorTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Duration of proof tasks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15),
		},
		[]string{"node_kind"},
	)

	ExecutorInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "tasks_in_flight",
			Help:      "Number of proof tasks currently dispatched",
		},
	)

	SchedulerNodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "node_transitions_total",
			Help:      "Total number of tree node state transitions",
		},
		[]string{"state"},
	)

	FinalizerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finalizer",
			Name:      "jobs_total",
			Help:      "Total number of aggregation jobs by final status",
		},
		[]string{"status"},
	)

	SubmissionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finalizer",
			Name:      "submission_attempts_total",
			Help:      "Total number of on-chain submission attempts by result",
		},
		[]string{"result"},
	)

	WorkerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of worker jobs by final status",
		},
		[]string{"status"},
	)

	WorkerCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "cache_hits_total",
			Help:      "Total number of tasks answered from the result cache",
		},
	)
)

// Config is the configuration of the prometheus endpoint
type Config struct {
	// Enabled serves the metrics when true
	Enabled bool `mapstructure:"Enabled"`
	// Host is the address to bind the metrics server
	Host string `mapstructure:"Host"`
	// Port is the port to bind the metrics server
	Port int `mapstructure:"Port"`
}

// RecordResult counts a finished operation as "ok" or "error"
func RecordResult(vec *prometheus.CounterVec, err error, labels ...string) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	vec.WithLabelValues(append(labels, result)...).Inc()
}

// Handler returns the handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Start serves /metrics until ctx is done
func Start(ctx context.Context, cfg Config, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second, //nolint:mnd
	}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Errorf("error shutting down metrics server: %v", err)
		}
	}()

	logger.Infof("metrics server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
