package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, public_id, owner_id, source_type, source_asset_id, audio_asset_id, status, stage, progress_percent, params_json, result_json, error_code, error_message, error_details, attempts, max_attempts, locked_by, locked_at, created_at, updated_at"

// NewJob describes a job submission accepted by Enqueue.
type NewJob struct {
	OwnerID       string
	SourceType    SourceType
	SourceAssetID string
	AudioAssetID  string
	Params        Params
	MaxAttempts   int
}

// Enqueue inserts a queued job and returns the stored row.
func (s *Store) Enqueue(ctx context.Context, req NewJob) (*Job, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("encode job params: %w", err)
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	publicID := uuid.NewString()

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO import_jobs (
            public_id, owner_id, source_type, source_asset_id, audio_asset_id,
            status, stage, progress_percent, params_json, max_attempts,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		publicID,
		req.OwnerID,
		string(req.SourceType),
		req.SourceAssetID,
		nullableString(req.AudioAssetID),
		StatusQueued,
		StageQueued,
		0,
		string(paramsJSON),
		maxAttempts,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by rowid.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByPublicID fetches a job by its public identifier, scoped to an owner.
func (s *Store) GetByPublicID(ctx context.Context, ownerID, publicID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE public_id = ? AND owner_id = ?`,
		publicID, ownerID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by public id: %w", err)
	}
	return job, nil
}

// List returns jobs matching the provided statuses, oldest first. An empty
// status list returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ErrClaimLost reports that a transition was refused because the job is no
// longer processing under the given worker's lock. A worker seeing it must
// stop touching the job: another claimer owns it now.
var ErrClaimLost = errors.New("job claim lost")

// UpdateStageProgress records the stage checkpoint for a processing job.
// Progress only moves forward: a smaller percent than the stored value is
// ignored so observers never see progress regress. The update only applies
// while workerID still holds the claim.
func (s *Store) UpdateStageProgress(ctx context.Context, id int64, workerID string, stage Stage, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE import_jobs
         SET stage = ?,
             progress_percent = CASE WHEN progress_percent < ? THEN ? ELSE progress_percent END,
             updated_at = ?
         WHERE id = ? AND status = ? AND locked_by = ?`,
		string(stage),
		percent, percent,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("update stage progress: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update stage progress for job %d: %w", id, ErrClaimLost)
	}
	return nil
}

// MarkAwaitingReview finalizes a successful job: result persisted, progress
// complete, lock released. Refused with ErrClaimLost when workerID no
// longer holds the claim, so a stale worker cannot overwrite a finished
// job.
func (s *Store) MarkAwaitingReview(ctx context.Context, id int64, workerID string, result Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE import_jobs
         SET status = ?, stage = ?, progress_percent = 100, result_json = ?,
             error_code = NULL, error_message = NULL, error_details = NULL,
             locked_by = NULL, locked_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND locked_by = ?`,
		StatusAwaitingReview,
		StageComplete,
		string(resultJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("mark awaiting review: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("mark awaiting review for job %d: %w", id, ErrClaimLost)
	}
	return nil
}

// MarkFailed finalizes a failed job with a user-facing message and captured
// technical detail, releasing the lock. No partial result survives. The
// same claim guard applies: a worker whose lock went stale and was
// reclaimed cannot flip a job another worker already finished.
func (s *Store) MarkFailed(ctx context.Context, id int64, workerID, code, message, details string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE import_jobs
         SET status = ?, stage = ?, result_json = NULL,
             error_code = ?, error_message = ?, error_details = ?,
             locked_by = NULL, locked_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND locked_by = ?`,
		StatusFailed,
		StageFailed,
		code,
		message,
		nullableString(details),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("mark failed for job %d: %w", id, ErrClaimLost)
	}
	return nil
}

// Health returns aggregate queue counts.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM import_jobs GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusQueued:
			summary.Queued = count
		case StatusProcessing:
			summary.Processing = count
		case StatusAwaitingReview:
			summary.AwaitingReview = count
		case StatusFailed:
			summary.Failed = count
		case StatusCompleted:
			summary.Completed = count
		}
	}
	return summary, rows.Err()
}

// ClearFailed removes failed jobs, returning the number deleted.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM import_jobs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes completed jobs, returning the number deleted.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM import_jobs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		publicID     string
		ownerID      string
		sourceType   string
		sourceAsset  string
		audioAsset   sql.NullString
		statusStr    string
		stageStr     string
		progress     int
		paramsJSON   sql.NullString
		resultJSON   sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		errorDetails sql.NullString
		attempts     int
		maxAttempts  int
		lockedBy     sql.NullString
		lockedAtRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id, &publicID, &ownerID, &sourceType, &sourceAsset, &audioAsset,
		&statusStr, &stageStr, &progress, &paramsJSON, &resultJSON,
		&errorCode, &errorMessage, &errorDetails, &attempts, &maxAttempts,
		&lockedBy, &lockedAtRaw, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		PublicID:        publicID,
		OwnerID:         ownerID,
		SourceType:      SourceType(sourceType),
		SourceAssetID:   sourceAsset,
		AudioAssetID:    audioAsset.String,
		Status:          Status(statusStr),
		Stage:           Stage(stageStr),
		ProgressPercent: progress,
		ParamsJSON:      paramsJSON.String,
		ResultJSON:      resultJSON.String,
		ErrorCode:       errorCode.String,
		ErrorMessage:    errorMessage.String,
		ErrorDetails:    errorDetails.String,
		Attempts:        attempts,
		MaxAttempts:     maxAttempts,
		LockedBy:        lockedBy.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if lockedAtRaw.Valid {
		if lockedAt, err := parseTimeString(lockedAtRaw.String); err == nil {
			job.LockedAt = &lockedAt
		}
	}
	return job, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
