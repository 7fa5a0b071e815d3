// Package metrics defines the Prometheus collectors exported by the
// media-ingest service: HTTP, pipeline, storage, thumbnail, database and
// external-adapter metrics. All collectors are registered via promauto at
// package load; InitializeMetrics pre-populates label combinations so
// dashboards see zero-valued series immediately.
package metrics
