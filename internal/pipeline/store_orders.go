package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const orderColumns = "id, code, title, total_devices, due_date, status, created_at, updated_at"

// CreateJobOrder inserts a new job order in the open state.
func (s *Store) CreateJobOrder(ctx context.Context, code, title string, totalDevices int, dueDate time.Time) (*JobOrder, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("job order code is required")
	}
	if totalDevices <= 0 {
		return nil, errors.New("total devices must be positive")
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO job_orders (code, title, total_devices, due_date, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code,
		strings.TrimSpace(title),
		totalDevices,
		formatTime(dueDate),
		OrderOpen,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJobOrder(ctx, id)
}

// GetJobOrder fetches a job order by identifier. Missing orders return nil.
func (s *Store) GetJobOrder(ctx context.Context, id int64) (*JobOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM job_orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job order: %w", err)
	}
	return order, nil
}

// GetJobOrderByCode fetches a job order by its unique code.
func (s *Store) GetJobOrderByCode(ctx context.Context, code string) (*JobOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM job_orders WHERE code = ?`, strings.TrimSpace(code))
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job order by code: %w", err)
	}
	return order, nil
}

// ListJobOrders returns job orders filtered by status; no statuses means all.
func (s *Store) ListJobOrders(ctx context.Context, statuses ...OrderStatus) ([]*JobOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM job_orders`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job orders: %w", err)
	}
	defer rows.Close()

	var orders []*JobOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// SetJobOrderStatus updates a job order's status.
func (s *Store) SetJobOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE job_orders SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		formatTime(time.Now().UTC()),
		id,
	); err != nil {
		return fmt.Errorf("set job order status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*JobOrder, error) {
	var (
		order     JobOrder
		status    string
		dueDate   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&order.ID,
		&order.Code,
		&order.Title,
		&order.TotalDevices,
		&dueDate,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, ok := ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown job order status %q", status)
	}
	order.Status = parsed

	var err error
	if order.DueDate, err = parseTime(dueDate); err != nil {
		return nil, fmt.Errorf("parse due date: %w", err)
	}
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &order, nil
}
