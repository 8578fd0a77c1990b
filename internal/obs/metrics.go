package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the concrete prometheus-backed implementation of the counters
// and histograms named in §4.9. A Runtime builds exactly one Metrics and
// threads it through every RunContext.
type Metrics struct {
	RecordsSeen       *prometheus.CounterVec
	EntitiesUpserted  *prometheus.CounterVec
	EntitiesDeleted   *prometheus.CounterVec
	MappingFailures   *prometheus.CounterVec
	ResyncDuration    *prometheus.HistogramVec
	WebhookEvents     *prometheus.CounterVec
	CatalogRequests   *prometheus.CounterVec
	CatalogRequestDur *prometheus.HistogramVec
}

// NewMetrics constructs and registers the runtime's metrics against reg.
// Pass prometheus.NewRegistry() in tests to avoid polluting the default
// global registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_records_seen_total",
			Help: "Raw records observed by the resync pipeline, per kind.",
		}, []string{"kind"}),
		EntitiesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_entities_upserted_total",
			Help: "Entities successfully upserted to the catalog, per kind.",
		}, []string{"kind"}),
		EntitiesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_entities_deleted_total",
			Help: "Entities deleted from the catalog by the end-of-resync delete phase or by live events, per kind.",
		}, []string{"kind"}),
		MappingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_mapping_failures_total",
			Help: "Per-record mapping evaluation failures, per kind.",
		}, []string{"kind"}),
		ResyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocean_resync_duration_seconds",
			Help:    "Wall-clock duration of a kind's resync pipeline.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "status"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_webhook_events_total",
			Help: "Webhook events received, per processor and outcome.",
		}, []string{"processor", "outcome"}),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ocean_catalog_requests_total",
			Help: "Catalog API calls, per operation and outcome.",
		}, []string{"op", "outcome"}),
		CatalogRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ocean_catalog_request_duration_seconds",
			Help:    "Catalog API call latency, per operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		m.RecordsSeen, m.EntitiesUpserted, m.EntitiesDeleted, m.MappingFailures,
		m.ResyncDuration, m.WebhookEvents, m.CatalogRequests, m.CatalogRequestDur,
	} {
		reg.MustRegister(c)
	}
	return m
}
