// Package memory provides heap monitoring and backpressure for the upload
// pipeline. Batch workers hold whole originals in memory, so the monitor
// pauses new job starts when usage crosses a critical watermark and resumes
// them once the heap recovers. ConfigureFromEnv additionally derives
// GOMEMLIMIT from the container memory limit.
package memory
