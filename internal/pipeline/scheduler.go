package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-ingest/internal/database"
	"media-ingest/internal/logging"
	"media-ingest/internal/memory"
	"media-ingest/internal/metrics"
	"media-ingest/internal/quota"
)

// DefaultConcurrency is the worker count used when a batch does not request
// one. Three keeps memory bounded with 20 MiB originals in flight.
const DefaultConcurrency = 3

// JobSummary is one admitted job's outcome in the batch result.
type JobSummary struct {
	JobID string `json:"jobId"`
	Name  string `json:"name"`
}

// JobError is one rejected or failed file in the batch result.
type JobError struct {
	JobID   string    `json:"jobId,omitempty"`
	Name    string    `json:"name"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// BatchResult summarizes a finished batch. Every submitted file appears in
// exactly one of the two lists.
type BatchResult struct {
	Successful []JobSummary `json:"successful"`
	Failed     []JobError   `json:"failed"`
}

// Scheduler admits batches against the owner's quota and fans admitted jobs
// out to a bounded worker pool.
type Scheduler struct {
	orchestrator *Orchestrator
	registry     *Registry
	db           *database.Database
	gate         quota.Gate
	monitor      *memory.Monitor // nil disables memory backpressure
}

// NewScheduler builds a scheduler around an orchestrator. monitor may be nil
// when memory backpressure is not configured.
func NewScheduler(orchestrator *Orchestrator, registry *Registry, db *database.Database,
	gate quota.Gate, monitor *memory.Monitor) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		registry:     registry,
		db:           db,
		gate:         gate,
		monitor:      monitor,
	}
}

// Submit runs one batch to completion and returns its summary. The quota is
// checked once up front; files beyond the owner's remaining budget are
// rejected without creating jobs. Admitted jobs run concurrently, capped by
// opts.Concurrency, and each succeeds or fails independently. Canceling ctx
// stops jobs at their next stage boundary.
func (s *Scheduler) Submit(ctx context.Context, ownerID string, files []BatchFile, opts Options) (*BatchResult, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if len(files) == 0 {
		return nil, errors.New("batch contains no files")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	metrics.BatchesTotal.Inc()
	start := time.Now()

	result := &BatchResult{}

	remaining, err := s.gate.Remaining(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("quota check for %s: %w", ownerID, err)
	}

	admitted := files
	if len(files) > remaining {
		admitted = files[:remaining]
		for _, f := range files[remaining:] {
			metrics.QuotaRejections.Inc()
			result.Failed = append(result.Failed, JobError{
				Name: f.Name,
				Kind: KindQuotaExceeded,
				Message: fmt.Sprintf("owner %s has %d job(s) remaining, batch needs %d more",
					ownerID, remaining, len(files)-remaining),
			})
		}
		logging.Warn("Batch for %s: rejected %d of %d files over quota (remaining=%d)",
			ownerID, len(files)-remaining, len(files), remaining)
	}

	jobs := make([]*Job, 0, len(admitted))
	for _, f := range admitted {
		j := NewJob(uuid.NewString(), ownerID, f.Name, int64(len(f.Data)))
		s.registry.Add(j)
		if err := s.db.InsertJob(ctx, &database.JobRecord{
			ID:       j.ID,
			OwnerID:  ownerID,
			Name:     f.Name,
			ByteSize: int64(len(f.Data)),
			Stage:    string(StageValidating),
		}); err != nil {
			logging.Error("Batch for %s: could not record job %s: %v", ownerID, j.ID, err)
		}
		jobs = append(jobs, j)
	}

	logging.Info("Batch for %s: %d admitted, %d rejected, concurrency %d",
		ownerID, len(jobs), len(result.Failed), concurrency)

	type task struct {
		job  *Job
		file BatchFile
	}
	tasks := make(chan task)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if s.monitor != nil {
					s.monitor.WaitIfPaused()
				}
				s.orchestrator.Run(ctx, t.job, t.file, opts)
			}
		}()
	}

	for i, j := range jobs {
		tasks <- task{job: j, file: admitted[i]}
	}
	close(tasks)
	wg.Wait()

	// Aggregate in submission order, then retire the live entries. Status
	// queries after this point are served from the durable records.
	for _, j := range jobs {
		st := j.Status()
		if st.Stage == StageCompleted {
			result.Successful = append(result.Successful, JobSummary{JobID: j.ID, Name: st.SourceMeta.Name})
		} else {
			je := JobError{JobID: j.ID, Name: st.SourceMeta.Name, Kind: KindInternal}
			if st.Error != nil {
				je.Kind = st.Error.Kind
				je.Message = st.Error.Message
			}
			result.Failed = append(result.Failed, je)
		}
		s.registry.Remove(j.ID)
	}

	logging.Info("Batch for %s finished in %v: %d succeeded, %d failed",
		ownerID, time.Since(start).Round(time.Millisecond), len(result.Successful), len(result.Failed))
	return result, nil
}

// LiveJobs returns the number of jobs currently tracked in the registry.
func (s *Scheduler) LiveJobs() int {
	return s.registry.Len()
}

// JobStatus looks a job up by id, preferring the live registry and falling
// back to the durable record.
func (s *Scheduler) JobStatus(ctx context.Context, id string) (Status, error) {
	if j := s.registry.Get(id); j != nil {
		return j.Status(), nil
	}

	rec, err := s.db.GetJob(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return statusFromRecord(rec)
}

// OwnerJobs lists an owner's durable job records as status snapshots, newest
// first.
func (s *Scheduler) OwnerJobs(ctx context.Context, ownerID string, limit int) ([]Status, error) {
	recs, err := s.db.ListJobsByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(recs))
	for _, rec := range recs {
		st, err := statusFromRecord(rec)
		if err != nil {
			logging.Warn("Skipping unreadable job record %s: %v", rec.ID, err)
			continue
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// statusFromRecord rehydrates a status snapshot from a durable job record.
func statusFromRecord(rec *database.JobRecord) (Status, error) {
	st := Status{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Stage:     Stage(rec.Stage),
		Progress:  rec.Progress,
		CreatedAt: rec.CreatedAt,
	}
	st.SourceMeta.Name = rec.Name
	st.SourceMeta.ByteSize = rec.ByteSize
	st.SourceMeta.MimeType = rec.MimeType
	st.SourceMeta.PixelWidth = rec.PixelWidth
	st.SourceMeta.PixelHeight = rec.PixelHeight

	if len(rec.Results) > 0 {
		var r Results
		if err := json.Unmarshal(rec.Results, &r); err != nil {
			return Status{}, fmt.Errorf("decode results for job %s: %w", rec.ID, err)
		}
		st.Results = &r
	}
	if len(rec.Degradations) > 0 {
		if err := json.Unmarshal(rec.Degradations, &st.Degradations); err != nil {
			return Status{}, fmt.Errorf("decode degradations for job %s: %w", rec.ID, err)
		}
	}
	if rec.ErrorKind != "" {
		st.Error = &Failure{Kind: ErrorKind(rec.ErrorKind), Message: rec.ErrorMessage}
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		st.CompletedAt = &t
	}
	return st, nil
}
