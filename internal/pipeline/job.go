package pipeline

import (
	"sync"
	"time"

	"media-ingest/internal/enrich"
	"media-ingest/internal/thumbs"
	"media-ingest/internal/validate"
)

// Stage is one step of the linear upload pipeline.
type Stage string

const (
	// StageValidating runs the pre-flight validation gate.
	StageValidating Stage = "validating"
	// StageUploading writes the original to object storage.
	StageUploading Stage = "uploading"
	// StageDeriving produces the thumbnail variants.
	StageDeriving Stage = "deriving"
	// StageEnriching requests the AI listing draft.
	StageEnriching Stage = "enriching"
	// StageRemovingBackground requests the matted variant.
	StageRemovingBackground Stage = "removing_background"
	// StageFinalizing persists the completed job record.
	StageFinalizing Stage = "finalizing"
	// StageCompleted is the successful terminal stage.
	StageCompleted Stage = "completed"
	// StageFailed is the failure terminal stage.
	StageFailed Stage = "failed"
)

// IsTerminal reports whether the stage ends the pipeline.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Results is the incrementally populated output of one job. Fields are only
// ever added, never retracted.
type Results struct {
	OriginalURL          string                     `json:"originalUrl,omitempty"`
	Thumbnails           map[thumbs.SizeClass]string `json:"thumbnails,omitempty"`
	AIAnalysis           *enrich.Draft              `json:"aiAnalysis,omitempty"`
	BackgroundRemovedURL string                     `json:"backgroundRemovedUrl,omitempty"`
}

// Degradation records a best-effort stage that failed without failing the
// job. Modeled explicitly rather than swallowed at the call site so the
// outcome is visible on the job record.
type Degradation struct {
	Stage   Stage  `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is one file's path through the pipeline. Mutated exclusively by the
// orchestrator instance that owns it; concurrent readers get consistent
// snapshots through Status.
type Job struct {
	ID      string
	OwnerID string

	mu           sync.RWMutex
	sourceMeta   validate.SourceMeta
	stage        Stage
	progress     int
	results      Results
	degradations []Degradation
	failure      *Failure
	createdAt    time.Time
	completedAt  *time.Time
}

// NewJob creates a job at the validating stage.
func NewJob(id, ownerID, fileName string, byteSize int64) *Job {
	return &Job{
		ID:      id,
		OwnerID: ownerID,
		sourceMeta: validate.SourceMeta{
			Name:     fileName,
			ByteSize: byteSize,
		},
		stage:     StageValidating,
		createdAt: time.Now(),
	}
}

// Status is a point-in-time snapshot of a job, safe to serialize.
type Status struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"ownerId"`
	SourceMeta   validate.SourceMeta `json:"sourceMeta"`
	Stage        Stage               `json:"stage"`
	Progress     int                 `json:"progress"`
	Results      *Results            `json:"results,omitempty"`
	Degradations []Degradation       `json:"degradations,omitempty"`
	Error        *Failure            `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
}

// Status returns a consistent snapshot of the job.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	st := Status{
		ID:         j.ID,
		OwnerID:    j.OwnerID,
		SourceMeta: j.sourceMeta,
		Stage:      j.stage,
		Progress:   j.progress,
		CreatedAt:  j.createdAt,
	}
	if j.results.OriginalURL != "" || len(j.results.Thumbnails) > 0 ||
		j.results.AIAnalysis != nil || j.results.BackgroundRemovedURL != "" {
		r := j.results
		if j.results.Thumbnails != nil {
			r.Thumbnails = make(map[thumbs.SizeClass]string, len(j.results.Thumbnails))
			for k, v := range j.results.Thumbnails {
				r.Thumbnails[k] = v
			}
		}
		st.Results = &r
	}
	if len(j.degradations) > 0 {
		st.Degradations = append([]Degradation(nil), j.degradations...)
	}
	if j.failure != nil {
		f := *j.failure
		st.Error = &f
	}
	if j.completedAt != nil {
		t := *j.completedAt
		st.CompletedAt = &t
	}
	return st
}

// setStage advances the job to the next stage.
func (j *Job) setStage(s Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = s
}

// Stage returns the current stage.
func (j *Job) Stage() Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stage
}

// setProgress raises progress to p. Progress is monotonically non-decreasing
// until a terminal stage, so lower values are ignored.
func (j *Job) setProgress(p int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p > 100 {
		p = 100
	}
	if p > j.progress {
		j.progress = p
	}
}

// Progress returns the current progress value (0-100).
func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

func (j *Job) setSourceMeta(meta validate.SourceMeta) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sourceMeta = meta
}

// SourceMeta returns the validated upload metadata.
func (j *Job) SourceMeta() validate.SourceMeta {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.sourceMeta
}

func (j *Job) setOriginalURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results.OriginalURL = url
}

func (j *Job) addThumbnail(class thumbs.SizeClass, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.results.Thumbnails == nil {
		j.results.Thumbnails = make(map[thumbs.SizeClass]string)
	}
	j.results.Thumbnails[class] = url
}

func (j *Job) setAIAnalysis(draft *enrich.Draft) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results.AIAnalysis = draft
}

func (j *Job) setBackgroundRemovedURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results.BackgroundRemovedURL = url
}

func (j *Job) addDegradation(d Degradation) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.degradations = append(j.degradations, d)
}

// complete moves the job to the successful terminal stage.
func (j *Job) complete() {
	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = StageCompleted
	j.progress = 100
	j.completedAt = &now
}

// fail moves the job to the failed terminal stage with the given failure.
func (j *Job) fail(f *Failure) {
	now := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stage = StageFailed
	j.failure = f
	j.completedAt = &now
}

// resultsSnapshot returns a copy of the current results.
func (j *Job) resultsSnapshot() Results {
	j.mu.RLock()
	defer j.mu.RUnlock()
	r := j.results
	if j.results.Thumbnails != nil {
		r.Thumbnails = make(map[thumbs.SizeClass]string, len(j.results.Thumbnails))
		for k, v := range j.results.Thumbnails {
			r.Thumbnails[k] = v
		}
	}
	return r
}

func (j *Job) degradationsSnapshot() []Degradation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Degradation(nil), j.degradations...)
}
