package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrJobNotFound is returned when no job record exists for an id.
var ErrJobNotFound = errors.New("job not found")

// InsertJob creates the durable record for a newly admitted job.
func (d *Database) InsertJob(ctx context.Context, rec *JobRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, name, byte_size, mime_type, pixel_width, pixel_height,
			stage, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.Name, rec.ByteSize, rec.MimeType,
		rec.PixelWidth, rec.PixelHeight, rec.Stage, rec.Progress, createdAt.Unix(),
	)
	return err
}

// FinalizeJob writes the terminal state of a job in one statement, so a
// partially finalized record can never be observed.
func (d *Database) FinalizeJob(ctx context.Context, rec *JobRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finalize_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var completedAt interface{}
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.Unix()
	}

	_, err = d.db.ExecContext(ctx, `
		UPDATE jobs SET
			pixel_width = ?, pixel_height = ?, stage = ?, progress = ?,
			results_json = ?, degradations_json = ?,
			error_kind = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		rec.PixelWidth, rec.PixelHeight, rec.Stage, rec.Progress,
		nullableJSON(rec.Results), nullableJSON(rec.Degradations),
		nullString(rec.ErrorKind), nullString(rec.ErrorMessage), completedAt,
		rec.ID,
	)
	return err
}

// GetJob fetches one job record by id.
func (d *Database) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, byte_size, mime_type, pixel_width, pixel_height,
			stage, progress, results_json, degradations_json,
			error_kind, error_message, created_at, completed_at
		FROM jobs WHERE id = ?`, id)

	rec, scanErr := scanJob(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		err = scanErr
		return nil, scanErr
	}
	return rec, nil
}

// ListJobsByOwner returns an owner's most recent job records.
func (d *Database) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]*JobRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, owner_id, name, byte_size, mime_type, pixel_width, pixel_height,
			stage, progress, results_json, degradations_json,
			error_kind, error_message, created_at, completed_at
		FROM jobs WHERE owner_id = ?
		ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*JobRecord
	for rows.Next() {
		rec, scanErr := scanJob(rows)
		if scanErr != nil {
			err = scanErr
			return nil, scanErr
		}
		records = append(records, rec)
	}
	err = rows.Err()
	return records, err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*JobRecord, error) {
	var rec JobRecord
	var results, degradations, errorKind, errorMessage sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := s.Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.ByteSize, &rec.MimeType,
		&rec.PixelWidth, &rec.PixelHeight, &rec.Stage, &rec.Progress,
		&results, &degradations, &errorKind, &errorMessage,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if results.Valid {
		rec.Results = []byte(results.String)
	}
	if degradations.Valid {
		rec.Degradations = []byte(degradations.String)
	}
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	rec.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		rec.CompletedAt = &t
	}

	return &rec, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
