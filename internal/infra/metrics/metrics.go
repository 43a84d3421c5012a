package metrics

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_created_total",
			Help: "Jobs created, labeled by whether compositing was requested.",
		},
		[]string{"composite"},
	)

	jobsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_terminal_total",
			Help: "Jobs reaching a terminal phase (complete/composite_complete/failed).",
		},
		[]string{"status"},
	)

	advanceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_advance_latency_ms",
			Help:    "Latency of a single advance unit of work in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000, 120000},
		},
		[]string{"phase", "outcome"},
	)

	providerCallLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_provider_call_latency_ms",
			Help:    "External provider call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000},
		},
		[]string{"provider", "op", "success"},
	)

	migratedBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_migrated_bytes_total",
			Help: "Bytes moved from ephemeral provider URLs into durable storage.",
		},
		[]string{"stage"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsCreatedTotal, jobsTerminalTotal,
			advanceLatency, providerCallLatency, migratedBytesTotal,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncJobCreated(composite bool) {
	jobsCreatedTotal.WithLabelValues(strconv.FormatBool(composite)).Inc()
}

func IncJobTerminal(status string) {
	jobsTerminalTotal.WithLabelValues(norm(status)).Inc()
}
