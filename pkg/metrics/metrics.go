package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the alert engine
var (
	LocationReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoalert_location_reports_total",
			Help: "Location reports received, by result (matched, unmatched, invalid, error)",
		},
		[]string{"result"},
	)

	AlertsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoalert_alerts_created_total",
			Help: "Alerts created, by frozen severity",
		},
		[]string{"severity"},
	)

	AlertsDeduplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "geoalert_alerts_deduplicated_total",
			Help: "Zone matches absorbed by an existing new alert",
		},
	)

	AlertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoalert_alert_transitions_total",
			Help: "Alert status transitions, by target status",
		},
		[]string{"to"},
	)

	GeofenceMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoalert_geofence_mutations_total",
			Help: "Geofence mutations, by operation",
		},
		[]string{"op"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geoalert_ingest_duration_seconds",
			Help:    "Duration of location report ingestion",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LocationReportsTotal,
			AlertsCreatedTotal,
			AlertsDeduplicatedTotal,
			AlertTransitionsTotal,
			GeofenceMutationsTotal,
			IngestDuration,
		)
	})
}
