package database

import (
	"context"
	"testing"
)

func TestQuotaLimitDefault(t *testing.T) {
	db := newTestDB(t)

	limit, err := db.QuotaLimit(context.Background(), "nobody", 25)
	if err != nil {
		t.Fatalf("QuotaLimit failed: %v", err)
	}
	if limit != 25 {
		t.Errorf("limit = %d, want default 25", limit)
	}
}

func TestSetQuotaLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SetQuotaLimit(ctx, "alice", 10); err != nil {
		t.Fatalf("SetQuotaLimit failed: %v", err)
	}

	limit, err := db.QuotaLimit(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("QuotaLimit failed: %v", err)
	}
	if limit != 10 {
		t.Errorf("limit = %d, want 10", limit)
	}

	// Upsert replaces the previous limit.
	if err := db.SetQuotaLimit(ctx, "alice", 30); err != nil {
		t.Fatalf("SetQuotaLimit update failed: %v", err)
	}
	limit, err = db.QuotaLimit(ctx, "alice", 100)
	if err != nil {
		t.Fatalf("QuotaLimit failed: %v", err)
	}
	if limit != 30 {
		t.Errorf("limit after update = %d, want 30", limit)
	}
}

func TestQuotaUsage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	used, err := db.QuotaUsed(ctx, "bob")
	if err != nil {
		t.Fatalf("QuotaUsed failed: %v", err)
	}
	if used != 0 {
		t.Errorf("fresh owner usage = %d, want 0", used)
	}

	for i := 0; i < 3; i++ {
		if err := db.IncrementQuotaUsage(ctx, "bob", 1); err != nil {
			t.Fatalf("IncrementQuotaUsage failed: %v", err)
		}
	}
	if err := db.IncrementQuotaUsage(ctx, "bob", 2); err != nil {
		t.Fatalf("IncrementQuotaUsage failed: %v", err)
	}

	used, err = db.QuotaUsed(ctx, "bob")
	if err != nil {
		t.Fatalf("QuotaUsed failed: %v", err)
	}
	if used != 5 {
		t.Errorf("usage = %d, want 5", used)
	}

	// Another owner's usage is independent.
	other, err := db.QuotaUsed(ctx, "carol")
	if err != nil {
		t.Fatalf("QuotaUsed failed: %v", err)
	}
	if other != 0 {
		t.Errorf("carol usage = %d, want 0", other)
	}
}
