package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// QuotaLimit returns the job limit for an owner, falling back to
// defaultLimit when the owner has no explicit row.
func (d *Database) QuotaLimit(ctx context.Context, ownerID string, defaultLimit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var limit int
	err := d.db.QueryRowContext(ctx,
		`SELECT job_limit FROM quota_limits WHERE owner_id = ?`, ownerID).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultLimit, nil
	}
	if err != nil {
		return 0, err
	}
	return limit, nil
}

// SetQuotaLimit sets an owner's explicit job limit.
func (d *Database) SetQuotaLimit(ctx context.Context, ownerID string, limit int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_quota_limit", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO quota_limits (owner_id, job_limit) VALUES (?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET job_limit = excluded.job_limit`,
		ownerID, limit)
	return err
}

// QuotaUsed returns how many jobs an owner has completed.
func (d *Database) QuotaUsed(ctx context.Context, ownerID string) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("quota_remaining", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var used int
	err = d.db.QueryRowContext(ctx,
		`SELECT used FROM quota_usage WHERE owner_id = ?`, ownerID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

// IncrementQuotaUsage atomically adds n to an owner's completed-job count.
// The UPSERT runs as a single statement, so concurrent batches from the same
// owner can never drop an increment.
func (d *Database) IncrementQuotaUsage(ctx context.Context, ownerID string, n int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("quota_increment", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO quota_usage (owner_id, used, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			used = used + excluded.used,
			updated_at = excluded.updated_at`,
		ownerID, n, time.Now().Unix())
	return err
}
