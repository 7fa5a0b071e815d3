package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"media-ingest/internal/database"
	"media-ingest/internal/enrich"
	"media-ingest/internal/logging"
	"media-ingest/internal/matting"
	"media-ingest/internal/metrics"
	"media-ingest/internal/quota"
	"media-ingest/internal/storage"
	"media-ingest/internal/thumbs"
	"media-ingest/internal/validate"
)

// Progress checkpoints per stage. Within uploading, the storage progress
// callback interpolates between uploadStart and uploadEnd.
const (
	progressValidated   = 10
	progressUploadStart = 15
	progressUploadEnd   = 40
	progressDerived     = 65
	progressEnriched    = 80
	progressMatted      = 90
	progressFinalizing  = 95
)

// cleanupTimeout bounds failure cleanup. Cleanup runs on its own context so
// a canceled batch cannot strand storage objects.
const cleanupTimeout = 30 * time.Second

// BatchFile is one submitted file before admission.
type BatchFile struct {
	Name         string
	DeclaredMime string
	Data         []byte
}

// Options control per-batch pipeline behavior.
type Options struct {
	// Concurrency caps simultaneously running orchestrators. Zero or
	// negative selects DefaultConcurrency.
	Concurrency int
	// EnableAI turns the enrichment stage on.
	EnableAI bool
	// RemoveBackground turns the matting stage on.
	RemoveBackground bool
}

// Orchestrator drives a single job through the pipeline stages in order.
// One orchestrator instance is shared across jobs; all per-job state lives
// on the Job itself.
type Orchestrator struct {
	store    storage.Store
	deriver  *thumbs.Deriver
	analyzer enrich.Analyzer // nil disables enrichment
	remover  matting.Remover // nil disables background removal
	db       *database.Database
	gate     quota.Gate
	classes  []thumbs.SizeClass
	limits   validate.Limits
}

// NewOrchestrator wires the pipeline's collaborators. analyzer and remover
// may be nil when the corresponding external service is not configured.
func NewOrchestrator(store storage.Store, deriver *thumbs.Deriver, analyzer enrich.Analyzer,
	remover matting.Remover, db *database.Database, gate quota.Gate) *Orchestrator {
	return &Orchestrator{
		store:    store,
		deriver:  deriver,
		analyzer: analyzer,
		remover:  remover,
		db:       db,
		gate:     gate,
		classes:  thumbs.DefaultSizeClasses,
		limits:   validate.DefaultLimits(),
	}
}

// jobPrefix is the storage prefix exclusively owned by one job. Cleanup
// deletes this whole tree.
func (o *Orchestrator) jobPrefix(j *Job) string {
	return fmt.Sprintf("uploads/%s/%s", j.OwnerID, j.ID)
}

// Run executes the pipeline for one job: validation, original upload,
// thumbnail derivation, best-effort enrichment and matting, then
// finalization. Cancellation is honored between stages, never mid-stage.
func (o *Orchestrator) Run(ctx context.Context, j *Job, file BatchFile, opts Options) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	// Validating. A rejection here has written nothing, so no cleanup.
	meta, err := o.runValidating(j, file)
	if err != nil {
		o.failJob(j, err, false)
		return
	}

	if err := ctx.Err(); err != nil {
		o.failJob(j, err, false)
		return
	}

	// Uploading. The first stage with storage side effects; from here on a
	// fatal failure must clean the job's prefix.
	if err := o.runUploading(ctx, j, file); err != nil {
		o.failJob(j, err, true)
		return
	}

	if err := ctx.Err(); err != nil {
		o.failJob(j, err, true)
		return
	}

	// Deriving. Per-class failures degrade, they never fail the job.
	o.runDeriving(ctx, j, file)

	if err := ctx.Err(); err != nil {
		o.failJob(j, err, true)
		return
	}

	// Enriching. Best-effort.
	if opts.EnableAI {
		o.runEnriching(ctx, j, file, meta)
	}
	j.setProgress(progressEnriched)

	if err := ctx.Err(); err != nil {
		o.failJob(j, err, true)
		return
	}

	// RemovingBackground. Opt-in and best-effort.
	if opts.RemoveBackground {
		o.runRemovingBackground(ctx, j, file, meta)
	}
	j.setProgress(progressMatted)

	if err := ctx.Err(); err != nil {
		o.failJob(j, err, true)
		return
	}

	// Finalizing. A failure here would leave a corrupt durable record, so
	// it is fatal.
	if err := o.runFinalizing(ctx, j); err != nil {
		o.failJob(j, err, true)
		return
	}

	j.complete()
	metrics.JobsTotal.WithLabelValues("completed").Inc()

	// Exactly one increment, exactly on the completed transition. Runs on
	// its own context so batch cancellation cannot drop it.
	incCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.gate.Increment(incCtx, j.OwnerID, 1); err != nil {
		logging.Error("Job %s: quota increment failed: %v", j.ID, err)
	}

	logging.Info("Job %s completed (%s, %d bytes)", j.ID, meta.Name, meta.ByteSize)
}

func (o *Orchestrator) runValidating(j *Job, file BatchFile) (validate.SourceMeta, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageValidating)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageValidating)

	meta, err := validate.Validate(file.Name, file.Data, file.DeclaredMime, o.limits)
	if err != nil {
		return validate.SourceMeta{}, err
	}

	j.setSourceMeta(meta)
	j.setProgress(progressValidated)
	return meta, nil
}

func (o *Orchestrator) runUploading(ctx context.Context, j *Job, file BatchFile) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageUploading)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageUploading)
	j.setProgress(progressUploadStart)

	key := o.jobPrefix(j) + "/original" + extForMime(file.DeclaredMime)
	size := int64(len(file.Data))

	url, err := o.store.Put(ctx, key, bytes.NewReader(file.Data), size, file.DeclaredMime,
		func(written, total int64) {
			if total <= 0 {
				return
			}
			span := int64(progressUploadEnd - progressUploadStart)
			j.setProgress(progressUploadStart + int(span*written/total))
		})
	if err != nil {
		return err
	}

	j.setOriginalURL(url)
	j.setProgress(progressUploadEnd)
	return nil
}

func (o *Orchestrator) runDeriving(ctx context.Context, j *Job, file BatchFile) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageDeriving)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageDeriving)

	variants, sizeErrs := o.deriver.Derive(file.Data, o.classes)
	for _, se := range sizeErrs {
		o.degrade(j, StageDeriving, "thumbnail_"+string(se.Class), se.Err)
	}

	span := progressDerived - progressUploadEnd
	done := 0
	for _, class := range o.classes {
		data, ok := variants[class]
		if !ok {
			continue
		}

		key := fmt.Sprintf("%s/thumbs/%s.jpg", o.jobPrefix(j), class)
		url, err := o.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg", nil)
		if err != nil {
			o.degrade(j, StageDeriving, "thumbnail_"+string(class), err)
			continue
		}

		j.addThumbnail(class, url)
		done++
		j.setProgress(progressUploadEnd + span*done/len(o.classes))
	}

	j.setProgress(progressDerived)
}

func (o *Orchestrator) runEnriching(ctx context.Context, j *Job, file BatchFile, meta validate.SourceMeta) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageEnriching)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageEnriching)

	if o.analyzer == nil {
		o.degrade(j, StageEnriching, string(KindAIService), fmt.Errorf("no enrichment service configured"))
		return
	}

	draft, err := o.analyzer.Analyze(ctx, enrich.Request{
		ImageURL:   j.resultsSnapshot().OriginalURL,
		ImageBytes: file.Data,
		MimeType:   meta.MimeType,
	})
	if err != nil {
		o.degrade(j, StageEnriching, string(KindAIService), err)
		return
	}

	j.setAIAnalysis(draft)
}

func (o *Orchestrator) runRemovingBackground(ctx context.Context, j *Job, file BatchFile, meta validate.SourceMeta) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageRemovingBackground)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageRemovingBackground)

	if o.remover == nil {
		o.degrade(j, StageRemovingBackground, string(KindBackgroundRemoval), fmt.Errorf("no background removal service configured"))
		return
	}

	processed, err := o.remover.RemoveBackground(ctx, file.Data, meta.MimeType)
	if err != nil {
		o.degrade(j, StageRemovingBackground, string(KindBackgroundRemoval), err)
		return
	}

	key := o.jobPrefix(j) + "/processed/background-removed.png"
	url, err := o.store.Put(ctx, key, bytes.NewReader(processed), int64(len(processed)), "image/png", nil)
	if err != nil {
		o.degrade(j, StageRemovingBackground, string(KindBackgroundRemoval), err)
		return
	}

	j.setBackgroundRemovedURL(url)
}

func (o *Orchestrator) runFinalizing(ctx context.Context, j *Job) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(StageFinalizing)).Observe(time.Since(start).Seconds())
	}()

	j.setStage(StageFinalizing)
	j.setProgress(progressFinalizing)

	rec, err := o.recordFor(j, StageCompleted, 100)
	if err != nil {
		return err
	}
	now := time.Now()
	rec.CompletedAt = &now

	if err := o.db.FinalizeJob(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist job record: %w", err)
	}
	return nil
}

// degrade records a best-effort failure on the job and in metrics.
func (o *Orchestrator) degrade(j *Job, stage Stage, kind string, err error) {
	j.addDegradation(Degradation{Stage: stage, Kind: kind, Message: err.Error()})
	metrics.StageDegradations.WithLabelValues(string(stage)).Inc()
	logging.Warn("Job %s: %s degraded (%s): %v", j.ID, stage, kind, err)
}

// failJob is the single fatal-failure path: cleanup (when storage was
// touched), then the terminal transition, then the durable failed record.
// Cleanup completes before the record is finalized.
func (o *Orchestrator) failJob(j *Job, err error, cleanupNeeded bool) {
	f := failureFor(err)
	failedStage := j.Stage()

	if cleanupNeeded {
		o.cleanup(j)
	}

	j.fail(f)

	metrics.JobsTotal.WithLabelValues("failed").Inc()
	metrics.JobFailures.WithLabelValues(string(f.Kind)).Inc()
	logging.Error("Job %s failed at %s: %v", j.ID, failedStage, err)

	rec, recErr := o.recordFor(j, StageFailed, j.Progress())
	if recErr != nil {
		logging.Error("Job %s: cannot build failed record: %v", j.ID, recErr)
		return
	}
	rec.ErrorKind = string(f.Kind)
	rec.ErrorMessage = f.Message
	now := time.Now()
	rec.CompletedAt = &now

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if dbErr := o.db.FinalizeJob(persistCtx, rec); dbErr != nil {
		logging.Error("Job %s: failed to persist failure record: %v", j.ID, dbErr)
	}
}

// cleanup deletes everything under the job's storage prefix. Errors are
// logged and counted, never propagated; a failed cleanup must not mask the
// original failure.
func (o *Orchestrator) cleanup(j *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	prefix := o.jobPrefix(j)
	if err := o.store.DeleteTree(ctx, prefix); err != nil {
		metrics.CleanupRuns.WithLabelValues("error").Inc()
		logging.Error("Job %s: cleanup of %s failed: %v", j.ID, prefix, err)
		return
	}

	metrics.CleanupRuns.WithLabelValues("success").Inc()
	logging.Debug("Job %s: cleaned storage prefix %s", j.ID, prefix)
}

// recordFor builds the durable record for a terminal transition.
func (o *Orchestrator) recordFor(j *Job, stage Stage, progress int) (*database.JobRecord, error) {
	meta := j.SourceMeta()

	resultsJSON, err := json.Marshal(j.resultsSnapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}

	var degradationsJSON []byte
	if degs := j.degradationsSnapshot(); len(degs) > 0 {
		degradationsJSON, err = json.Marshal(degs)
		if err != nil {
			return nil, fmt.Errorf("marshal degradations: %w", err)
		}
	}

	return &database.JobRecord{
		ID:           j.ID,
		OwnerID:      j.OwnerID,
		Name:         meta.Name,
		ByteSize:     meta.ByteSize,
		MimeType:     meta.MimeType,
		PixelWidth:   meta.PixelWidth,
		PixelHeight:  meta.PixelHeight,
		Stage:        string(stage),
		Progress:     progress,
		Results:      resultsJSON,
		Degradations: degradationsJSON,
	}, nil
}

// extForMime maps an allowed MIME type to the stored file extension.
func extForMime(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
