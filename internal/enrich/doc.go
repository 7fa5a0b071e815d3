// Package enrich calls the external vision service that turns an uploaded
// image into an advisory listing draft (title, description, category,
// condition, price range). The pipeline treats every failure here as a
// degradation, never as a job failure.
package enrich
