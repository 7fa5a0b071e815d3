// Package matting calls the external background-removal service. The stage
// is opt-in per batch and best-effort: a failure leaves the job's
// backgroundRemovedUrl unset without failing the job.
package matting
