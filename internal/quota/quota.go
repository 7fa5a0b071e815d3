package quota

import (
	"context"
	"fmt"

	"media-ingest/internal/database"
)

// ExceededError is attached to jobs rejected at admission because the owner
// has no remaining quota.
type ExceededError struct {
	OwnerID   string
	Remaining int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for owner %s (%d remaining)", e.OwnerID, e.Remaining)
}

// Gate limits how many jobs an owner may complete. The scheduler checks it
// once per batch before any work starts; the orchestrator increments usage
// exactly once per completed job.
type Gate interface {
	Remaining(ctx context.Context, ownerID string) (int, error)
	Increment(ctx context.Context, ownerID string, n int) error
}

// DBGate is the SQLite-backed Gate implementation.
type DBGate struct {
	db           *database.Database
	defaultLimit int
}

// NewDBGate builds a gate over the shared database. defaultLimit applies to
// owners without an explicit quota_limits row; 0 or negative means unlimited.
func NewDBGate(db *database.Database, defaultLimit int) *DBGate {
	return &DBGate{db: db, defaultLimit: defaultLimit}
}

// Remaining returns limit minus completed usage, floored at zero. Unlimited
// owners report a large constant so batch admission never truncates.
func (g *DBGate) Remaining(ctx context.Context, ownerID string) (int, error) {
	limit, err := g.db.QuotaLimit(ctx, ownerID, g.defaultLimit)
	if err != nil {
		return 0, fmt.Errorf("quota limit lookup: %w", err)
	}
	if limit <= 0 {
		return int(^uint(0) >> 1), nil // effectively unlimited
	}

	used, err := g.db.QuotaUsed(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("quota usage lookup: %w", err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Increment atomically adds n completed jobs to the owner's usage.
func (g *DBGate) Increment(ctx context.Context, ownerID string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := g.db.IncrementQuotaUsage(ctx, ownerID, n); err != nil {
		return fmt.Errorf("quota increment: %w", err)
	}
	return nil
}
