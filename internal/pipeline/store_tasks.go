package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, job_order_id, device_serial, operation_name, standard_seconds,
    actual_seconds, technician, status, pass, start_time, end_time, notes, created_at, updated_at`

// CreateTask inserts a new available task for a device in a job order.
func (s *Store) CreateTask(ctx context.Context, jobOrderID int64, deviceSerial, operationName string, standardSeconds int64) (*Task, error) {
	deviceSerial = strings.TrimSpace(deviceSerial)
	if deviceSerial == "" {
		return nil, errors.New("device serial is required")
	}
	if standardSeconds <= 0 {
		return nil, errors.New("standard time must be positive")
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            job_order_id, device_serial, operation_name, standard_seconds,
            status, pass, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		jobOrderID,
		deviceSerial,
		strings.TrimSpace(operationName),
		standardSeconds,
		StatusAvailable,
		1,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask fetches a task by identifier. Missing tasks return nil.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// TaskFilter narrows ListTasks results. Zero values mean "any".
type TaskFilter struct {
	JobOrderID int64
	Technician string
	Statuses   []Status
}

// ListTasks returns tasks matching the filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var clauses []string
	var args []any

	if filter.JobOrderID != 0 {
		clauses = append(clauses, "job_order_id = ?")
		args = append(args, filter.JobOrderID)
	}
	if filter.Technician != "" {
		clauses = append(clauses, "technician = ?")
		args = append(args, filter.Technician)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Stats returns task counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		if parsed, ok := ParseStatus(status); ok {
			stats[parsed] += count
		}
	}
	return stats, rows.Err()
}

// Health aggregates the status histogram into the summary buckets the
// health endpoint and CLI report.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	summary := HealthSummary{
		Available: stats[StatusAvailable],
		Rework:    stats[StatusReworkRequired],
		Completed: stats[StatusCompleted],
	}
	for status, count := range stats {
		summary.Total += count
		if _, awaiting := AwaitingStage(status); awaiting {
			summary.InReview += count
		}
	}
	return summary, nil
}

// ClaimTask assigns a technician and moves an available task to in_progress.
// The update is compare-and-swap on the current status: it reports false when
// the task was not available at write time, leaving classification (conflict
// vs not found) to the caller.
func (s *Store) ClaimTask(ctx context.Context, id int64, technician string, now time.Time) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET technician = ?, status = ?, start_time = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		technician,
		StatusInProgress,
		formatTime(now),
		formatTime(now),
		id,
		StatusAvailable,
	)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// CompleteTask records end time and actual duration for an in-progress task
// held by the given technician, moving it to pending_qa.
func (s *Store) CompleteTask(ctx context.Context, id int64, technician string, endTime time.Time, actualSeconds int64, notes string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, end_time = ?, actual_seconds = ?, notes = ?, updated_at = ?
         WHERE id = ? AND status = ? AND technician = ?`,
		StatusPendingQA,
		formatTime(endTime),
		actualSeconds,
		nullableString(notes),
		formatTime(endTime),
		id,
		StatusInProgress,
		technician,
	)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return affected == 1, nil
}

// TransitionStatus applies a compare-and-swap status change with no other
// field mutations. Used for review decisions where the ledger row carries the
// detail.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		formatTime(time.Now().UTC()),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// ResumeTask returns a rework-required task to the available pool, starting a
// new pass. Technician, timestamps, and actual duration reset; the prior
// pass's reviews stay in the ledger for audit.
func (s *Store) ResumeTask(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, pass = pass + 1, technician = NULL,
             start_time = NULL, end_time = NULL, actual_seconds = NULL,
             notes = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusAvailable,
		formatTime(time.Now().UTC()),
		id,
		StatusReworkRequired,
	)
	if err != nil {
		return false, fmt.Errorf("resume task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resume rows affected: %w", err)
	}
	return affected == 1, nil
}

// CloseTask archives a rework-required task whose rework is exhausted.
func (s *Store) CloseTask(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusClosed,
		formatTime(time.Now().UTC()),
		id,
		StatusReworkRequired,
	)
	if err != nil {
		return false, fmt.Errorf("close task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close rows affected: %w", err)
	}
	return affected == 1, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task       Task
		actual     sql.NullInt64
		technician sql.NullString
		status     string
		startTime  sql.NullString
		endTime    sql.NullString
		notes      sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&task.ID,
		&task.JobOrderID,
		&task.DeviceSerial,
		&task.OperationName,
		&task.StandardSeconds,
		&actual,
		&technician,
		&status,
		&task.Pass,
		&startTime,
		&endTime,
		&notes,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, ok := ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown task status %q", status)
	}
	task.Status = parsed

	if actual.Valid {
		v := actual.Int64
		task.ActualSeconds = &v
	}
	task.Technician = technician.String
	task.Notes = notes.String

	var err error
	if startTime.Valid {
		t, parseErr := parseTime(startTime.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse start_time: %w", parseErr)
		}
		task.StartTime = &t
	}
	if endTime.Valid {
		t, parseErr := parseTime(endTime.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse end_time: %w", parseErr)
		}
		task.EndTime = &t
	}
	if task.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &task, nil
}
