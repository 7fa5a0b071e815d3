// Package handlers provides HTTP request handlers for the media ingest API.
//
// It includes handlers for:
//   - Batch upload submission
//   - Job status and owner job listings
//   - Quota inspection
//   - Health checks and version information
package handlers
