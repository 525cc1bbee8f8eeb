package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "actions_total",
		Help:      "Total number of dispatched actions",
	}, []string{"action", "outcome"})

	SyncRowsReturned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "sync_rows_returned_total",
		Help:      "Total number of rows returned by delta-sync reads",
	}, []string{"collection"})

	MovementLogsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "movement_logs_appended_total",
		Help:      "Total number of movement log entries appended",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "events_published_total",
		Help:      "Total number of events appended to the event log",
	}, []string{"type"})

	EventsAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "events_acknowledged_total",
		Help:      "Total number of events marked as processed",
	})

	TripRowsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "embarque",
		Name:      "trip_rows_removed_total",
		Help:      "Total number of rows removed by trip closure",
	}, []string{"collection"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "embarque",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "embarque",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
