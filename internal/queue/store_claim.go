package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MaxAttemptsErrorCode is recorded on jobs retired by the claim path after
// too many reclaim cycles.
const MaxAttemptsErrorCode = "max_attempts_exceeded"

// ClaimNext atomically claims the oldest claimable job: either queued, or
// processing with a lock older than the staleness cutoff (a dead worker).
// The claim is a guarded UPDATE re-checking the eligibility predicate, so two
// claimers racing on the same row see exactly one winner; the loser moves on
// to the next candidate or comes back empty.
//
// A job whose attempt budget would be exhausted by this claim is finalized as
// failed instead of being handed out again.
func (s *Store) ClaimNext(ctx context.Context, workerID string, staleBefore time.Time) (*Job, error) {
	ctx = ensureContext(ctx)
	cutoff := staleBefore.UTC().Format(time.RFC3339Nano)

	for {
		candidate, err := s.nextClaimable(ctx, cutoff)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, nil
		}

		if candidate.Attempts+1 > candidate.MaxAttempts {
			if err := s.retireExhausted(ctx, candidate, cutoff); err != nil {
				return nil, err
			}
			continue
		}

		now := time.Now().UTC()
		res, err := s.execWithRetry(
			ctx,
			`UPDATE import_jobs
             SET status = ?, stage = ?, locked_by = ?, locked_at = ?,
                 attempts = attempts + 1,
                 error_code = NULL, error_message = NULL, error_details = NULL,
                 updated_at = ?
             WHERE id = ?
               AND (status = ? OR (status = ? AND locked_at IS NOT NULL AND locked_at < ?))`,
			StatusProcessing,
			StageValidatingAssets,
			workerID,
			now.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
			candidate.ID,
			StatusQueued,
			StatusProcessing,
			cutoff,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race for this row; try the next candidate.
			continue
		}
		return s.GetByID(ctx, candidate.ID)
	}
}

func (s *Store) nextClaimable(ctx context.Context, cutoff string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM import_jobs
         WHERE status = ? OR (status = ? AND locked_at IS NOT NULL AND locked_at < ?)
         ORDER BY created_at ASC, id ASC
         LIMIT 1`,
		StatusQueued,
		StatusProcessing,
		cutoff,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable job: %w", err)
	}
	return job, nil
}

// retireExhausted finalizes a job whose attempts budget is spent. Guarded by
// the same eligibility predicate so a concurrent claimer cannot double-retire.
func (s *Store) retireExhausted(ctx context.Context, job *Job, cutoff string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE import_jobs
         SET status = ?, stage = ?, result_json = NULL,
             error_code = ?, error_message = ?, error_details = ?,
             locked_by = NULL, locked_at = NULL, updated_at = ?
         WHERE id = ?
           AND (status = ? OR (status = ? AND locked_at IS NOT NULL AND locked_at < ?))`,
		StatusFailed,
		StageFailed,
		MaxAttemptsErrorCode,
		"Import failed after repeated attempts.",
		fmt.Sprintf("gave up after %d attempts", job.Attempts),
		time.Now().UTC().Format(time.RFC3339Nano),
		job.ID,
		StatusQueued,
		StatusProcessing,
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("retire exhausted job: %w", err)
	}
	return nil
}
