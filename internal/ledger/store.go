package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const dispatchColumns = "id, pass_id, job_id, stage, outcome, error_kind, error_message, started_at, finished_at"

// UpsertJob records or refreshes a job index entry.
func (s *Store) UpsertJob(ctx context.Context, rec JobRecord) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, discriminator, label, statepoint_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             discriminator = excluded.discriminator,
             label = excluded.label,
             statepoint_json = excluded.statepoint_json,
             updated_at = excluded.updated_at`,
		rec.ID, rec.Discriminator, rec.Label, rec.StatepointJSON, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// GetJob fetches a job index entry. Unknown ids return nil without error.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, discriminator, label, statepoint_json, created_at, updated_at FROM jobs WHERE id = ?`, id)
	var (
		rec                    JobRecord
		createdRaw, updatedRaw string
	)
	err := row.Scan(&rec.ID, &rec.Discriminator, &rec.Label, &rec.StatepointJSON, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	rec.CreatedAt, _ = parseTimeString(createdRaw)
	rec.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &rec, nil
}

// RenameJob moves history from oldID to newID after a statepoint re-key.
func (s *Store) RenameJob(ctx context.Context, oldID, newID string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `UPDATE dispatches SET job_id = ? WHERE job_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rename dispatches: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("drop old job: %w", err)
		}
		return tx.Commit()
	})
}

// RecordDispatch appends d and returns its row id.
func (s *Store) RecordDispatch(ctx context.Context, d Dispatch) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO dispatches (pass_id, job_id, stage, outcome, error_kind, error_message, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.PassID, d.JobID, d.Stage, string(d.Outcome),
		nullableString(d.ErrorKind), nullableString(d.ErrorMessage),
		d.StartedAt.UTC().Format(time.RFC3339Nano), d.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("record dispatch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns the newest dispatches first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Dispatch, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryDispatches(ctx, `SELECT `+dispatchColumns+` FROM dispatches ORDER BY id DESC LIMIT ?`, limit)
}

// ForJob returns a job's dispatches, newest first.
func (s *Store) ForJob(ctx context.Context, jobID string, limit int) ([]Dispatch, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryDispatches(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE job_id = ? ORDER BY id DESC LIMIT ?`, jobID, limit)
}

// ForPass returns the dispatches of one pass in insertion order.
func (s *Store) ForPass(ctx context.Context, passID string) ([]Dispatch, error) {
	return s.queryDispatches(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE pass_id = ? ORDER BY id`, passID)
}

// RepeatedFailures lists (job, stage) pairs whose most recent dispatches
// failed at least threshold times in a row. These need an operator.
func (s *Store) RepeatedFailures(ctx context.Context, threshold int) ([]StageFailure, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT job_id, stage, outcome, COALESCE(error_message, ''), finished_at
         FROM dispatches ORDER BY job_id, stage, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var (
		out     []StageFailure
		current *StageFailure
		broken  bool
	)
	flush := func() {
		if current != nil && current.Failures >= threshold {
			out = append(out, *current)
		}
	}
	for rows.Next() {
		var jobID, stage, outcome, message, finishedRaw string
		if err := rows.Scan(&jobID, &stage, &outcome, &message, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if current == nil || current.JobID != jobID || current.Stage != stage {
			flush()
			current = &StageFailure{JobID: jobID, Stage: stage}
			broken = false
		}
		if broken {
			continue
		}
		if Outcome(outcome) != OutcomeFailed {
			broken = true
			continue
		}
		if current.Failures == 0 {
			current.LastError = message
			current.LastFailure, _ = parseTimeString(finishedRaw)
		}
		current.Failures++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	flush()
	return out, nil
}

// Stats summarizes the ledger contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	var (
		stats   Stats
		lastRaw sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&stats.Jobs); err != nil {
		return Stats{}, fmt.Errorf("count jobs: %w", err)
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
                COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
                COUNT(DISTINCT pass_id),
                MAX(finished_at)
         FROM dispatches`, string(OutcomeFailed),
	).Scan(&stats.Dispatches, &stats.Failures, &stats.Passes, &lastRaw)
	if err != nil {
		return Stats{}, fmt.Errorf("summarize dispatches: %w", err)
	}
	if lastRaw.Valid {
		stats.LastPassAt, _ = parseTimeString(lastRaw.String)
	}
	return stats, nil
}

func (s *Store) queryDispatches(ctx context.Context, query string, args ...any) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var out []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return out, nil
}
