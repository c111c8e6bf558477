/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_scheduler_ticks_total",
		Help: "Scheduler loop ticks.",
	})
	SchedulerFiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_scheduler_fires_total",
		Help: "Job fires by job name.",
	}, []string{"job"})
	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_scheduler_errors_total",
		Help: "Job failures by job name.",
	}, []string{"job"})
	// Fallback chain
	ChainLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_chain_level",
		Help: "Currently selected fallback level ordinal (0=override .. 5=emergency).",
	})
	ChainSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_chain_selections_total",
		Help: "Chain selections by level.",
	}, []string{"level"})

	// Queues
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "muninn_queue_depth",
		Help: "Not-yet-played entries per queue.",
	}, []string{"queue"})
	QueuePushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_queue_pushes_total",
		Help: "Entries pushed per queue.",
	}, []string{"queue"})

	// Freshness guard
	StaleBreaksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_stale_breaks_total",
		Help: "Break segments rejected by the freshness guard.",
	})

	// Drop-in ingestor
	DropinsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_dropins_ingested_total",
		Help: "Drop-in files ingested into the override queue.",
	})
	DropinsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_dropins_rejected_total",
		Help: "Drop-in files rejected, by reason.",
	}, []string{"reason"})

	// Housekeeping
	DiskUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_disk_usage_percent",
		Help: "Disk usage of the media filesystem.",
	})
	DiskPressureAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_disk_pressure_alerts_total",
		Help: "High-water breaches observed by housekeeping.",
	})
	AssetsPrunedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_assets_pruned_total",
		Help: "Assets deleted by housekeeping, by kind.",
	}, []string{"kind"})

	// Producers
	BreaksGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muninn_breaks_generated_total",
		Help: "Break segments generated and published.",
	})
	ProducerSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_producer_skips_total",
		Help: "Producer no-ops, by reason (killswitch, empty_library, full_queue).",
	}, []string{"reason"})

	// Control API
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muninn_api_requests_total",
		Help: "Control API requests.",
	}, []string{"method", "endpoint", "status"})
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "muninn_api_request_duration_seconds",
		Help:    "Control API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "muninn_api_active_connections",
		Help: "In-flight control API requests.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
