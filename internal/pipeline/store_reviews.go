package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const reviewColumns = "id, task_id, stage, pass, decision, comments, actor, inspection_id, created_at"

// RecordReview appends an immutable decision to the ledger. A second decision
// for the same (task, stage, pass) trips the unique constraint and surfaces
// as ErrDuplicateReview.
func (s *Store) RecordReview(ctx context.Context, review *Review) (*Review, error) {
	if review == nil {
		return nil, errors.New("review is nil")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO reviews (task_id, stage, pass, decision, comments, actor, inspection_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		review.TaskID,
		review.Stage,
		review.Pass,
		review.Decision,
		nullableString(review.Comments),
		review.Actor,
		nullableInt64(review.InspectionID),
		formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReview
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetReview(ctx, id)
}

// errSwapLost aborts a decision transaction when the task status no longer
// matches the expected value. It never escapes RecordReviewAndTransition.
var errSwapLost = errors.New("status swap lost")

// RecordReviewAndTransition appends a ledger entry and swaps the task status
// in a single transaction. Both writes commit together: if the task moved
// underneath the caller the ledger insert rolls back and moved=false is
// returned, leaving no trace of the attempted decision. A retry after any
// failure therefore starts from a clean ledger.
func (s *Store) RecordReviewAndTransition(ctx context.Context, review *Review, from, to Status) (*Review, bool, error) {
	if review == nil {
		return nil, false, errors.New("review is nil")
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC()

	var reviewID int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin decision tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		inserted, err := tx.ExecContext(
			ctx,
			`INSERT INTO reviews (task_id, stage, pass, decision, comments, actor, inspection_id, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			review.TaskID,
			review.Stage,
			review.Pass,
			review.Decision,
			nullableString(review.Comments),
			review.Actor,
			nullableInt64(review.InspectionID),
			formatTime(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateReview
			}
			return fmt.Errorf("insert review: %w", err)
		}
		id, err := inserted.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		swapped, err := tx.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to,
			formatTime(now),
			review.TaskID,
			from,
		)
		if err != nil {
			return fmt.Errorf("transition task: %w", err)
		}
		affected, err := swapped.RowsAffected()
		if err != nil {
			return fmt.Errorf("transition rows affected: %w", err)
		}
		if affected != 1 {
			return errSwapLost
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit decision: %w", err)
		}
		reviewID = id
		return nil
	})
	if errors.Is(err, errSwapLost) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	stored, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return nil, true, err
	}
	return stored, true, nil
}

// GetReview fetches a ledger entry by identifier. Missing entries return nil.
func (s *Store) GetReview(ctx context.Context, id int64) (*Review, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return review, nil
}

// ListReviews returns the full decision history for a task, oldest first.
func (s *Store) ListReviews(ctx context.Context, taskID int64) ([]*Review, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE task_id = ? ORDER BY id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	return reviews, rows.Err()
}

// FindReview returns the decision for a (task, stage, pass), or nil when the
// stage has not decided on that pass.
func (s *Store) FindReview(ctx context.Context, taskID int64, stage Stage, pass int) (*Review, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE task_id = ? AND stage = ? AND pass = ?`,
		taskID,
		stage,
		pass,
	)
	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find review: %w", err)
	}
	return review, nil
}

// CreateReport files a technician or inspector write-up against a task.
func (s *Store) CreateReport(ctx context.Context, report *Report) (*Report, error) {
	if report == nil {
		return nil, errors.New("report is nil")
	}
	if strings.TrimSpace(report.Content) == "" {
		return nil, errors.New("report content is required")
	}
	quantity := report.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO reports (task_id, job_order_id, author, role, content, quantity, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.TaskID,
		report.JobOrderID,
		report.Author,
		report.Role,
		report.Content,
		quantity,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, task_id, job_order_id, author, role, content, quantity, created_at
         FROM reports WHERE id = ?`,
		id,
	)
	return scanReport(row)
}

// ListReports returns reports, optionally filtered by job order, newest first.
func (s *Store) ListReports(ctx context.Context, jobOrderID int64) ([]*Report, error) {
	query := `SELECT id, task_id, job_order_id, author, role, content, quantity, created_at FROM reports`
	var args []any
	if jobOrderID != 0 {
		query += ` WHERE job_order_id = ?`
		args = append(args, jobOrderID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanReview(row rowScanner) (*Review, error) {
	var (
		review       Review
		stage        string
		decision     string
		comments     sql.NullString
		inspectionID sql.NullInt64
		createdAt    string
	)
	if err := row.Scan(
		&review.ID,
		&review.TaskID,
		&stage,
		&review.Pass,
		&decision,
		&comments,
		&review.Actor,
		&inspectionID,
		&createdAt,
	); err != nil {
		return nil, err
	}

	parsedStage, ok := ParseStage(stage)
	if !ok {
		return nil, fmt.Errorf("unknown review stage %q", stage)
	}
	review.Stage = parsedStage

	parsedDecision, ok := ParseDecision(decision)
	if !ok {
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
	review.Decision = parsedDecision

	review.Comments = comments.String
	if inspectionID.Valid {
		v := inspectionID.Int64
		review.InspectionID = &v
	}

	var err error
	if review.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &review, nil
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		report    Report
		createdAt string
	)
	if err := row.Scan(
		&report.ID,
		&report.TaskID,
		&report.JobOrderID,
		&report.Author,
		&report.Role,
		&report.Content,
		&report.Quantity,
		&createdAt,
	); err != nil {
		return nil, err
	}
	var err error
	if report.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &report, nil
}
