package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
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

func TestInsertAndGetJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := &JobRecord{
		ID:       "job-1",
		OwnerID:  "alice",
		Name:     "photo.jpg",
		ByteSize: 12345,
		Stage:    "validating",
	}
	if err := db.InsertJob(ctx, rec); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}

	got, err := db.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.ID != "job-1" || got.OwnerID != "alice" || got.Name != "photo.jpg" {
		t.Errorf("GetJob returned %+v", got)
	}
	if got.ByteSize != 12345 {
		t.Errorf("ByteSize = %d, want 12345", got.ByteSize)
	}
	if got.Stage != "validating" {
		t.Errorf("Stage = %q, want validating", got.Stage)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v for a fresh job", got.CompletedAt)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob error = %v, want ErrJobNotFound", err)
	}
}

func TestFinalizeJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.InsertJob(ctx, &JobRecord{ID: "job-2", OwnerID: "bob", Name: "a.png", Stage: "validating"}); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}

	results := json.RawMessage(`{"originalUrl":"/media/uploads/bob/job-2/original.png"}`)
	degradations := json.RawMessage(`[{"stage":"enriching","kind":"ai_service","message":"timeout"}]`)
	now := time.Now()

	final := &JobRecord{
		ID:           "job-2",
		OwnerID:      "bob",
		Name:         "a.png",
		ByteSize:     999,
		MimeType:     "image/png",
		PixelWidth:   640,
		PixelHeight:  480,
		Stage:        "completed",
		Progress:     100,
		Results:      results,
		Degradations: degradations,
		CompletedAt:  &now,
	}
	if err := db.FinalizeJob(ctx, final); err != nil {
		t.Fatalf("FinalizeJob failed: %v", err)
	}

	got, err := db.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Stage != "completed" || got.Progress != 100 {
		t.Errorf("stage/progress = %s/%d", got.Stage, got.Progress)
	}
	if got.MimeType != "image/png" || got.PixelWidth != 640 || got.PixelHeight != 480 {
		t.Errorf("source meta not persisted: %+v", got)
	}
	if string(got.Results) != string(results) {
		t.Errorf("Results = %s", got.Results)
	}
	if string(got.Degradations) != string(degradations) {
		t.Errorf("Degradations = %s", got.Degradations)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}

func TestFinalizeJobFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.InsertJob(ctx, &JobRecord{ID: "job-3", OwnerID: "bob", Name: "b.png", Stage: "validating"}); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}

	now := time.Now()
	final := &JobRecord{
		ID:           "job-3",
		OwnerID:      "bob",
		Name:         "b.png",
		Stage:        "failed",
		Progress:     40,
		ErrorKind:    "storage",
		ErrorMessage: "disk full",
		CompletedAt:  &now,
	}
	if err := db.FinalizeJob(ctx, final); err != nil {
		t.Fatalf("FinalizeJob failed: %v", err)
	}

	got, err := db.GetJob(ctx, "job-3")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Stage != "failed" {
		t.Errorf("Stage = %q, want failed", got.Stage)
	}
	if got.ErrorKind != "storage" || got.ErrorMessage != "disk full" {
		t.Errorf("error fields = %q/%q", got.ErrorKind, got.ErrorMessage)
	}
}

func TestListJobsByOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := db.InsertJob(ctx, &JobRecord{ID: id, OwnerID: "carol", Name: id + ".jpg", Stage: "validating"}); err != nil {
			t.Fatalf("InsertJob %s failed: %v", id, err)
		}
	}
	if err := db.InsertJob(ctx, &JobRecord{ID: "other", OwnerID: "dave", Name: "x.jpg", Stage: "validating"}); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}

	jobs, err := db.ListJobsByOwner(ctx, "carol", 0)
	if err != nil {
		t.Fatalf("ListJobsByOwner failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	for _, j := range jobs {
		if j.OwnerID != "carol" {
			t.Errorf("job %s has owner %s", j.ID, j.OwnerID)
		}
	}

	limited, err := db.ListJobsByOwner(ctx, "carol", 2)
	if err != nil {
		t.Fatalf("ListJobsByOwner with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d jobs with limit 2", len(limited))
	}

	none, err := db.ListJobsByOwner(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("ListJobsByOwner for unknown owner failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown owner returned %d jobs", len(none))
	}
}
