package quota

import (
	"context"
	"path/filepath"
	"testing"

	"media-ingest/internal/database"
)

func newTestGate(t *testing.T, defaultLimit int) (*DBGate, *database.Database) {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return NewDBGate(db, defaultLimit), db
}

func TestRemainingFreshOwner(t *testing.T) {
	gate, _ := newTestGate(t, 10)

	remaining, err := gate.Remaining(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 10 {
		t.Errorf("remaining = %d, want default limit 10", remaining)
	}
}

func TestRemainingAfterIncrements(t *testing.T) {
	gate, _ := newTestGate(t, 5)
	ctx := context.Background()

	if err := gate.Increment(ctx, "alice", 3); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	remaining, err := gate.Remaining(ctx, "alice")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}

func TestRemainingFlooredAtZero(t *testing.T) {
	gate, db := newTestGate(t, 100)
	ctx := context.Background()

	if err := db.SetQuotaLimit(ctx, "bob", 2); err != nil {
		t.Fatalf("SetQuotaLimit failed: %v", err)
	}
	if err := gate.Increment(ctx, "bob", 5); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	remaining, err := gate.Remaining(ctx, "bob")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestUnlimitedOwner(t *testing.T) {
	gate, db := newTestGate(t, 100)
	ctx := context.Background()

	if err := db.SetQuotaLimit(ctx, "carol", 0); err != nil {
		t.Fatalf("SetQuotaLimit failed: %v", err)
	}
	if err := gate.Increment(ctx, "carol", 1000); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	remaining, err := gate.Remaining(ctx, "carol")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining < 1<<30 {
		t.Errorf("remaining = %d, want effectively unlimited", remaining)
	}
}

func TestIncrementNonPositive(t *testing.T) {
	gate, db := newTestGate(t, 10)
	ctx := context.Background()

	if err := gate.Increment(ctx, "dave", 0); err != nil {
		t.Errorf("Increment(0) returned error: %v", err)
	}
	if err := gate.Increment(ctx, "dave", -3); err != nil {
		t.Errorf("Increment(-3) returned error: %v", err)
	}

	used, err := db.QuotaUsed(ctx, "dave")
	if err != nil {
		t.Fatalf("QuotaUsed failed: %v", err)
	}
	if used != 0 {
		t.Errorf("usage = %d after non-positive increments, want 0", used)
	}
}

func TestExceededError(t *testing.T) {
	err := &ExceededError{OwnerID: "alice", Remaining: 2}
	want := "quota exceeded for owner alice (2 remaining)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
