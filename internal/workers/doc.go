// Package workers sizes worker pools for the upload pipeline based on
// available CPUs, honoring container limits and a BATCH_WORKERS override.
package workers
