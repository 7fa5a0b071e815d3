package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"media-ingest/internal/database"
	"media-ingest/internal/enrich"
	"media-ingest/internal/matting"
	"media-ingest/internal/storage"
	"media-ingest/internal/thumbs"
)

// fakeStore is an in-memory object store with failure injection.
type fakeStore struct {
	mu              sync.Mutex
	objects         map[string][]byte
	failPutPrefix   string
	putHook         func(key string)
	deleteTreeCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, progress storage.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &storage.Error{Op: "put", Key: key, Err: err}
	}
	if f.putHook != nil {
		f.putHook(key)
	}
	if f.failPutPrefix != "" && strings.Contains(key, f.failPutPrefix) {
		return "", &storage.Error{Op: "put", Key: key, Err: errors.New("injected failure")}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", &storage.Error{Op: "put", Key: key, Err: err}
	}
	if progress != nil {
		progress(int64(len(data)), size)
	}

	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return "/media/" + key, nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, &storage.Error{Op: "get", Key: key, Err: errors.New("not found")}
	}
	return data, nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) DeleteTree(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteTreeCalls = append(f.deleteTreeCalls, prefix)
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
		}
	}
	return nil
}

func (f *fakeStore) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeGate is an in-memory quota gate.
type fakeGate struct {
	remaining  int
	increments atomic.Int32
	failCheck  error
}

func (g *fakeGate) Remaining(ctx context.Context, ownerID string) (int, error) {
	if g.failCheck != nil {
		return 0, g.failCheck
	}
	return g.remaining, nil
}

func (g *fakeGate) Increment(ctx context.Context, ownerID string, n int) error {
	g.increments.Add(int32(n))
	return nil
}

// fakeAnalyzer returns a canned draft or an error.
type fakeAnalyzer struct {
	draft *enrich.Draft
	err   error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, req enrich.Request) (*enrich.Draft, error) {
	if a.err != nil {
		return nil, &enrich.ServiceError{Err: a.err}
	}
	return a.draft, nil
}

// fakeRemover returns canned processed bytes or an error.
type fakeRemover struct {
	out []byte
	err error
}

func (r *fakeRemover) RemoveBackground(ctx context.Context, imageBytes []byte, mimeType string) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.out, nil
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	// Gradient so the encoded file clears the minimum byte size.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

func testDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

type orchestratorFixture struct {
	store *fakeStore
	gate  *fakeGate
	orch  *Orchestrator
	db    *database.Database
}

func newOrchestratorFixture(t *testing.T, analyzer enrich.Analyzer, remover matting.Remover) *orchestratorFixture {
	t.Helper()
	store := newFakeStore()
	gate := &fakeGate{remaining: 100}
	db := testDB(t)
	orch := NewOrchestrator(store, thumbs.NewDeriver(false), analyzer, remover, db, gate)
	return &orchestratorFixture{store: store, gate: gate, orch: orch, db: db}
}

func TestRunCompletesWithAllResults(t *testing.T) {
	draft := &enrich.Draft{Title: "Vintage lamp", Category: "home"}
	fx := newOrchestratorFixture(t, &fakeAnalyzer{draft: draft}, &fakeRemover{out: []byte("matted-png")})

	j := NewJob("job-1", "alice", "lamp.jpg", 0)
	file := BatchFile{Name: "lamp.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{EnableAI: true, RemoveBackground: true})

	st := j.Status()
	if st.Stage != StageCompleted {
		t.Fatalf("stage = %s, want completed (error: %v)", st.Stage, st.Error)
	}
	if st.Progress != 100 {
		t.Errorf("progress = %d, want 100", st.Progress)
	}
	if st.Results == nil {
		t.Fatal("results missing")
	}
	if st.Results.OriginalURL != "/media/uploads/alice/job-1/original.jpg" {
		t.Errorf("original URL = %q", st.Results.OriginalURL)
	}
	if len(st.Results.Thumbnails) != len(thumbs.DefaultSizeClasses) {
		t.Errorf("thumbnails = %d, want %d", len(st.Results.Thumbnails), len(thumbs.DefaultSizeClasses))
	}
	if st.Results.AIAnalysis == nil || st.Results.AIAnalysis.Title != "Vintage lamp" {
		t.Errorf("ai analysis = %+v", st.Results.AIAnalysis)
	}
	if st.Results.BackgroundRemovedURL == "" {
		t.Error("background removed URL missing")
	}
	if len(st.Degradations) != 0 {
		t.Errorf("unexpected degradations: %v", st.Degradations)
	}
	if got := fx.gate.increments.Load(); got != 1 {
		t.Errorf("quota increments = %d, want 1", got)
	}
	if st.CompletedAt == nil {
		t.Error("completedAt not set")
	}
}

func TestRunValidationFailureWritesNothing(t *testing.T) {
	fx := newOrchestratorFixture(t, nil, nil)

	j := NewJob("job-2", "alice", "notes.txt", 0)
	file := BatchFile{Name: "notes.txt", DeclaredMime: "text/plain", Data: bytes.Repeat([]byte("a"), 1024)}

	fx.orch.Run(context.Background(), j, file, Options{})

	st := j.Status()
	if st.Stage != StageFailed {
		t.Fatalf("stage = %s, want failed", st.Stage)
	}
	if st.Error == nil || st.Error.Kind != KindValidation {
		t.Errorf("error = %+v, want validation kind", st.Error)
	}
	if fx.store.objectCount() != 0 {
		t.Errorf("store has %d objects after validation failure", fx.store.objectCount())
	}
	if len(fx.store.deleteTreeCalls) != 0 {
		t.Errorf("cleanup ran for a job that wrote nothing: %v", fx.store.deleteTreeCalls)
	}
	if got := fx.gate.increments.Load(); got != 0 {
		t.Errorf("quota increments = %d, want 0", got)
	}
}

func TestRunUploadFailureCleansUp(t *testing.T) {
	fx := newOrchestratorFixture(t, nil, nil)
	fx.store.failPutPrefix = "/original"

	j := NewJob("job-3", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{})

	st := j.Status()
	if st.Stage != StageFailed {
		t.Fatalf("stage = %s, want failed", st.Stage)
	}
	if st.Error == nil || st.Error.Kind != KindStorage {
		t.Errorf("error = %+v, want storage kind", st.Error)
	}
	if len(fx.store.deleteTreeCalls) != 1 || fx.store.deleteTreeCalls[0] != "uploads/alice/job-3" {
		t.Errorf("deleteTree calls = %v, want job prefix once", fx.store.deleteTreeCalls)
	}
	if fx.store.objectCount() != 0 {
		t.Errorf("store has %d objects after cleanup", fx.store.objectCount())
	}
	if got := fx.gate.increments.Load(); got != 0 {
		t.Errorf("quota increments = %d, want 0", got)
	}
}

func TestRunFailureLogsFailingStage(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	fx := newOrchestratorFixture(t, nil, nil)
	fx.store.failPutPrefix = "/original"

	j := NewJob("job-log", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{})

	if j.Stage() != StageFailed {
		t.Fatalf("stage = %s, want failed", j.Stage())
	}
	logs := buf.String()
	if !strings.Contains(logs, "Job job-log failed at uploading") {
		t.Errorf("failure log does not name the uploading stage:\n%s", logs)
	}
	if strings.Contains(logs, "failed at failed") {
		t.Errorf("failure log names the terminal stage instead of the failing one:\n%s", logs)
	}
}

func TestRunEnrichmentFailureDegrades(t *testing.T) {
	fx := newOrchestratorFixture(t, &fakeAnalyzer{err: errors.New("model overloaded")}, nil)

	j := NewJob("job-4", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{EnableAI: true})

	st := j.Status()
	if st.Stage != StageCompleted {
		t.Fatalf("stage = %s, want completed despite enrichment failure", st.Stage)
	}
	if st.Results == nil || st.Results.AIAnalysis != nil {
		t.Error("ai analysis should be absent")
	}
	if len(st.Degradations) != 1 {
		t.Fatalf("degradations = %v, want exactly one", st.Degradations)
	}
	if st.Degradations[0].Stage != StageEnriching {
		t.Errorf("degradation stage = %s, want enriching", st.Degradations[0].Stage)
	}
	if got := fx.gate.increments.Load(); got != 1 {
		t.Errorf("quota increments = %d, want 1", got)
	}
}

func TestRunThumbnailFailuresDegrade(t *testing.T) {
	fx := newOrchestratorFixture(t, nil, nil)
	fx.store.failPutPrefix = "/thumbs/"

	j := NewJob("job-5", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{})

	st := j.Status()
	if st.Stage != StageCompleted {
		t.Fatalf("stage = %s, want completed despite thumbnail failures", st.Stage)
	}
	if len(st.Results.Thumbnails) != 0 {
		t.Errorf("thumbnails = %v, want none", st.Results.Thumbnails)
	}
	if len(st.Degradations) != len(thumbs.DefaultSizeClasses) {
		t.Errorf("degradations = %d, want one per class", len(st.Degradations))
	}
}

func TestRunCanceledBetweenStages(t *testing.T) {
	fx := newOrchestratorFixture(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := NewJob("job-6", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(ctx, j, file, Options{})

	st := j.Status()
	if st.Stage != StageFailed {
		t.Fatalf("stage = %s, want failed", st.Stage)
	}
	if st.Error == nil || st.Error.Kind != KindCanceled {
		t.Errorf("error = %+v, want canceled kind", st.Error)
	}
	if got := fx.gate.increments.Load(); got != 0 {
		t.Errorf("quota increments = %d, want 0", got)
	}
}

func TestRunBackgroundRemovalSkippedByDefault(t *testing.T) {
	rem := &fakeRemover{out: []byte("matted")}
	fx := newOrchestratorFixture(t, nil, rem)

	j := NewJob("job-7", "alice", "photo.jpg", 0)
	file := BatchFile{Name: "photo.jpg", DeclaredMime: "image/jpeg", Data: testJPEG(t, 640, 480)}

	fx.orch.Run(context.Background(), j, file, Options{})

	st := j.Status()
	if st.Stage != StageCompleted {
		t.Fatalf("stage = %s, want completed", st.Stage)
	}
	if st.Results.BackgroundRemovedURL != "" {
		t.Error("background removal ran without being requested")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "Storage error", err: &storage.Error{Op: "put", Key: "k", Err: errors.New("boom")}, want: KindStorage},
		{name: "Storage error from cancellation", err: &storage.Error{Op: "put", Key: "k", Err: context.Canceled}, want: KindCanceled},
		{name: "Enrichment error", err: &enrich.ServiceError{Err: errors.New("overloaded")}, want: KindAIService},
		{name: "Plain cancellation", err: context.Canceled, want: KindCanceled},
		{name: "Deadline", err: context.DeadlineExceeded, want: KindCanceled},
		{name: "Anything else", err: fmt.Errorf("weird: %w", errors.New("x")), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
