package pipeline

import (
	"context"
	"errors"
	"fmt"

	"media-ingest/internal/matting"
	"media-ingest/internal/quota"
	"media-ingest/internal/storage"
	"media-ingest/internal/validate"

	"media-ingest/internal/enrich"
)

// ErrorKind classifies why a job failed or degraded.
type ErrorKind string

const (
	// KindValidation covers pre-flight validation rejections.
	KindValidation ErrorKind = "validation"
	// KindStorage covers fatal object-storage failures.
	KindStorage ErrorKind = "storage"
	// KindQuotaExceeded covers jobs rejected at admission.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindAIService covers enrichment degradations.
	KindAIService ErrorKind = "ai_service"
	// KindBackgroundRemoval covers matting degradations.
	KindBackgroundRemoval ErrorKind = "background_removal"
	// KindCanceled covers jobs stopped by batch cancellation.
	KindCanceled ErrorKind = "canceled"
	// KindInternal covers everything else.
	KindInternal ErrorKind = "internal"
)

// Failure is the error recorded on a job that reached the failed stage.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// classify maps an underlying error to its taxonomy kind.
func classify(err error) ErrorKind {
	var vErr *validate.ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	var sErr *storage.Error
	if errors.As(err, &sErr) {
		if errors.Is(err, context.Canceled) {
			return KindCanceled
		}
		return KindStorage
	}
	var qErr *quota.ExceededError
	if errors.As(err, &qErr) {
		return KindQuotaExceeded
	}
	var aErr *enrich.ServiceError
	if errors.As(err, &aErr) {
		return KindAIService
	}
	var mErr *matting.ServiceError
	if errors.As(err, &mErr) {
		return KindBackgroundRemoval
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindInternal
}

// failureFor builds the recorded Failure for an error.
func failureFor(err error) *Failure {
	return &Failure{Kind: classify(err), Message: err.Error()}
}
