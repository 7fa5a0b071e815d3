// Package storage defines the object-storage contract used by the upload
// pipeline and provides two backends: a local-disk store with atomic
// rename-into-place writes, and an S3 store for bucket-backed deployments.
// Both report upload progress through a callback and keep deletes idempotent
// so failure cleanup can always be retried.
package storage
