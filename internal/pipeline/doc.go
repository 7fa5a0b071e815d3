// Package pipeline contains the upload pipeline core: the per-file job state
// machine, the orchestrator that drives one job through its stages, and the
// batch scheduler that admits files against quota and runs jobs on a bounded
// worker pool.
//
// Stages run strictly in order. Validation and the original upload are
// load-bearing; a failure there fails the job and, once storage has been
// touched, deletes everything under the job's storage prefix before the
// failed record is persisted. Thumbnail derivation, AI enrichment, and
// background removal are best-effort; their failures are recorded as
// degradations on an otherwise successful job.
package pipeline
