package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

// RunRepository handles database operations for dispatch runs and their
// per-recipient outcome log.
type RunRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun stores the run header and all recipients (status pending) in one
// transaction, so a run is never visible without its recipient list.
func (r *RunRepository) CreateRun(ctx context.Context, run *domain.DispatchRun, recipients []domain.Recipient) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	runQuery := `
		INSERT INTO dispatch_runs (id, company_id, kind, instance, status, total, sent_count, error_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`
	if _, err := tx.ExecContext(ctx, runQuery,
		run.ID, run.CompanyID, run.Kind, run.Instance, run.Status, run.Total); err != nil {
		return fmt.Errorf("failed to create dispatch run: %w", err)
	}

	recipientQuery := `
		INSERT INTO dispatch_recipients (run_id, position, name, address, status)
		VALUES (?, ?, ?, ?, 'pending')
	`
	for i, recipient := range recipients {
		if _, err := tx.ExecContext(ctx, recipientQuery, run.ID, i, recipient.Name, recipient.Address); err != nil {
			return fmt.Errorf("failed to create dispatch recipient %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dispatch run: %w", err)
	}

	return nil
}

// RecordOutcome is the single durable write performed after each completed
// send. It also bumps the matching run counter.
func (r *RunRepository) RecordOutcome(ctx context.Context, outcome domain.Outcome) error {
	query := `
		UPDATE dispatch_recipients
		SET status = ?, message_id = ?, error_detail = ?, attempted_at = ?
		WHERE run_id = ? AND position = ?
	`

	var messageID, errorDetail *string
	if outcome.MessageID != "" {
		messageID = &outcome.MessageID
	}
	if outcome.ErrorDetail != "" {
		errorDetail = &outcome.ErrorDetail
	}

	result, err := r.db.ExecContext(ctx, query,
		outcome.Status, messageID, errorDetail, outcome.AttemptedAt, outcome.RunID, outcome.Position)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no recipient found for run %s position %d", outcome.RunID, outcome.Position)
	}

	if err := r.syncRunCounters(ctx, outcome.RunID); err != nil {
		return err
	}

	return nil
}

// syncRunCounters recomputes the run tallies from the recipient log. The
// log is the source of truth; recomputing keeps the counters correct across
// resumed runs where a recipient moves from error back to sent.
func (r *RunRepository) syncRunCounters(ctx context.Context, runID string) error {
	query := `
		UPDATE dispatch_runs
		SET sent_count = (SELECT COUNT(*) FROM dispatch_recipients WHERE run_id = ? AND status = 'sent'),
		    error_count = (SELECT COUNT(*) FROM dispatch_recipients WHERE run_id = ? AND status = 'error'),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, runID, runID, runID); err != nil {
		return fmt.Errorf("failed to sync run counters: %w", err)
	}

	return nil
}

// FinishRun stores the terminal phase of a run and recomputes the final
// tally from the recipient log.
func (r *RunRepository) FinishRun(ctx context.Context, runID string, status domain.RunStatus) error {
	if err := r.syncRunCounters(ctx, runID); err != nil {
		return err
	}

	query := `
		UPDATE dispatch_runs
		SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no run found with id %s", runID)
	}

	return nil
}

// MarkRunning flips a stored run back to running, used when a resume starts.
func (r *RunRepository) MarkRunning(ctx context.Context, runID string) error {
	query := `
		UPDATE dispatch_runs
		SET status = 'running', completed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := r.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to mark run as running: %w", err)
	}

	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, runID string) (*domain.DispatchRun, error) {
	query := `
		SELECT id, company_id, kind, instance, status, total, sent_count, error_count, created_at, updated_at, completed_at
		FROM dispatch_runs
		WHERE id = ?
	`

	var run domain.DispatchRun
	if err := r.db.GetContext(ctx, &run, query, runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

func (r *RunRepository) GetRecipients(ctx context.Context, runID string) ([]domain.RunRecipient, error) {
	query := `
		SELECT id, run_id, position, name, address, status, message_id, error_detail, attempted_at
		FROM dispatch_recipients
		WHERE run_id = ?
		ORDER BY position ASC
	`

	var recipients []domain.RunRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get recipients: %w", err)
	}

	return recipients, nil
}

// GetUnreached returns the recipients a resumed run still has to attempt:
// everything that never reached status sent, in original dispatch order.
func (r *RunRepository) GetUnreached(ctx context.Context, runID string) ([]domain.RunRecipient, error) {
	query := `
		SELECT id, run_id, position, name, address, status, message_id, error_detail, attempted_at
		FROM dispatch_recipients
		WHERE run_id = ? AND status != 'sent'
		ORDER BY position ASC
	`

	var recipients []domain.RunRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get unreached recipients: %w", err)
	}

	return recipients, nil
}

// ResetForResume puts not-yet-sent recipients back to pending so the resumed
// loop attempts them again (failed ones included).
func (r *RunRepository) ResetForResume(ctx context.Context, runID string) (int64, error) {
	query := `
		UPDATE dispatch_recipients
		SET status = 'pending', message_id = NULL, error_detail = NULL, attempted_at = NULL
		WHERE run_id = ? AND status != 'sent'
	`

	result, err := r.db.ExecContext(ctx, query, runID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset recipients for resume: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, page, pageSize int) ([]domain.DispatchRun, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM dispatch_runs"
	if err := r.db.GetContext(ctx, &totalCount, countQuery); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT id, company_id, kind, instance, status, total, sent_count, error_count, created_at, updated_at, completed_at
		FROM dispatch_runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	var runs []domain.DispatchRun
	if err := r.db.SelectContext(ctx, &runs, query, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, totalCount, nil
}

// GetRunStats aggregates run counts per status.
func (r *RunRepository) GetRunStats(ctx context.Context) (running, completed, cancelled int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0)   AS running,
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled
		FROM dispatch_runs
	`

	var stats struct {
		Running   int64 `db:"running"`
		Completed int64 `db:"completed"`
		Cancelled int64 `db:"cancelled"`
	}

	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get run stats: %w", err)
	}

	return stats.Running, stats.Completed, stats.Cancelled, nil
}
