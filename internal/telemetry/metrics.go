/*
Copyright (C) 2026 Coup de Feu

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
	// PlacementsTotal counts committed placements by mode (target / scan).
	PlacementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupdefeu_placements_total",
		Help: "Committed order placements.",
	}, []string{"restaurant", "mode"})

	// PlacementInfeasibleTotal counts placement attempts that found no slot.
	PlacementInfeasibleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupdefeu_placement_infeasible_total",
		Help: "Placement attempts rejected as infeasible.",
	}, []string{"restaurant", "mode"})

	// PlacementDuration observes how long a placement decision took.
	PlacementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupdefeu_placement_duration_seconds",
		Help:    "Placement decision duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"restaurant"})

	// SlotQueryDuration observes availableSlots scans.
	SlotQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupdefeu_slot_query_duration_seconds",
		Help:    "Feasibility slot query duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"restaurant"})

	// SnapshotBuildDuration observes timeline snapshot assembly.
	SnapshotBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupdefeu_snapshot_build_duration_seconds",
		Help:    "Timeline snapshot build duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"restaurant"})

	// OverflowSlotsObserved counts slot/resource pairs reported over capacity.
	OverflowSlotsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupdefeu_overflow_slots_observed_total",
		Help: "Slot/resource pairs observed over capacity in snapshots.",
	}, []string{"restaurant", "resource"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupdefeu_api_requests_total",
		Help: "HTTP API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupdefeu_api_request_duration_seconds",
		Help:    "HTTP API request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coupdefeu_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	// TimelineStreamClients gauges connected timeline websocket clients.
	TimelineStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coupdefeu_timeline_stream_clients",
		Help: "Connected timeline stream websocket clients.",
	})

	// DatabaseQueryDuration observes gorm operation latency by table.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupdefeu_db_query_duration_seconds",
		Help:    "Database operation duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupdefeu_db_errors_total",
		Help: "Database operation errors.",
	}, []string{"operation", "kind"})

	// DatabaseConnectionsActive gauges open pool connections.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coupdefeu_db_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
