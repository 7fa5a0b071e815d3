// Package middleware provides HTTP middleware for the media-ingest API:
// structured access logging with log-injection sanitization, and Prometheus
// request metrics with low-cardinality path normalization.
package middleware
