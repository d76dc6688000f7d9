package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"joddb/internal/engine"
	"joddb/internal/pipeline"
	"joddb/internal/services"
)

// TaskService exposes lifecycle and CRUD operations returning API DTOs. It
// wraps the engine for mutations and reads the store directly for queries.
type TaskService struct {
	store  *pipeline.Store
	engine *engine.Engine
}

// NewTaskService constructs a TaskService around the store and engine.
func NewTaskService(store *pipeline.Store, eng *engine.Engine) *TaskService {
	if store == nil || eng == nil {
		return nil
	}
	return &TaskService{store: store, engine: eng}
}

// Start claims a task for a technician.
func (s *TaskService) Start(ctx context.Context, taskID int64, technician string) (Task, error) {
	task, err := s.engine.Claim(ctx, taskID, technician)
	if err != nil {
		return Task{}, err
	}
	return FromTask(task), nil
}

// End finishes a technician's work on a task.
func (s *TaskService) End(ctx context.Context, taskID int64, technician, notes string) (Task, error) {
	task, err := s.engine.Complete(ctx, taskID, technician, notes)
	if err != nil {
		return Task{}, err
	}
	return FromTask(task), nil
}

// Decide applies a review verdict.
func (s *TaskService) Decide(ctx context.Context, req engine.DecisionRequest) (ReviewResponse, error) {
	task, review, err := s.engine.Decide(ctx, req)
	if err != nil {
		return ReviewResponse{}, err
	}
	return ReviewResponse{Task: FromTask(task), Review: FromReview(review)}, nil
}

// Resume returns a rejected task to the pool for another pass.
func (s *TaskService) Resume(ctx context.Context, taskID int64) (Task, error) {
	task, err := s.engine.Resume(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	return FromTask(task), nil
}

// Close archives a rejected task.
func (s *TaskService) Close(ctx context.Context, taskID int64) (Task, error) {
	task, err := s.engine.Close(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	return FromTask(task), nil
}

// List returns tasks filtered by status strings. Unknown statuses are a
// validation error rather than silently matching nothing.
func (s *TaskService) List(ctx context.Context, statuses ...string) ([]Task, error) {
	var filter pipeline.TaskFilter
	for _, raw := range statuses {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		status, ok := pipeline.ParseStatus(trimmed)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list tasks",
				fmt.Sprintf("unknown status %q", trimmed), nil)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	tasks, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "api", "list tasks", "store read failed", err)
	}
	return FromTasks(tasks), nil
}

// Describe fetches a single task with its review history.
func (s *TaskService) Describe(ctx context.Context, taskID int64) (*Task, []Review, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrUnavailable, "api", "describe task", "store read failed", err)
	}
	if task == nil {
		return nil, nil, nil
	}
	history, err := s.store.ListReviews(ctx, taskID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrUnavailable, "api", "describe task", "ledger read failed", err)
	}
	dto := FromTask(task)
	reviews := make([]Review, 0, len(history))
	for _, review := range history {
		reviews = append(reviews, FromReview(review))
	}
	return &dto, reviews, nil
}

// CreateJobOrder registers a new job order.
func (s *TaskService) CreateJobOrder(ctx context.Context, code, title string, totalDevices int, dueDate time.Time) (JobOrder, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return JobOrder{}, services.Wrap(services.ErrValidation, "api", "create job order", "code is required", nil)
	}
	if totalDevices <= 0 {
		return JobOrder{}, services.Wrap(services.ErrValidation, "api", "create job order", "total_devices must be positive", nil)
	}
	order, err := s.store.CreateJobOrder(ctx, code, strings.TrimSpace(title), totalDevices, dueDate)
	if err != nil {
		return JobOrder{}, services.Wrap(services.ErrUnavailable, "api", "create job order", "store write failed", err)
	}
	return FromJobOrder(order), nil
}

// ListJobOrders returns job orders, optionally filtered by status strings.
func (s *TaskService) ListJobOrders(ctx context.Context, statuses ...string) ([]JobOrder, error) {
	var filter []pipeline.OrderStatus
	for _, raw := range statuses {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		status, ok := pipeline.ParseOrderStatus(trimmed)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "api", "list job orders",
				fmt.Sprintf("unknown status %q", trimmed), nil)
		}
		filter = append(filter, status)
	}
	orders, err := s.store.ListJobOrders(ctx, filter...)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "api", "list job orders", "store read failed", err)
	}
	return FromJobOrders(orders), nil
}

// AddTask creates an available task under a job order.
func (s *TaskService) AddTask(ctx context.Context, jobOrderID int64, deviceSerial, operationName string, standardSeconds int64) (Task, error) {
	deviceSerial = strings.TrimSpace(deviceSerial)
	if deviceSerial == "" {
		return Task{}, services.Wrap(services.ErrValidation, "api", "add task", "device_serial is required", nil)
	}
	if standardSeconds <= 0 {
		return Task{}, services.Wrap(services.ErrValidation, "api", "add task", "standard_time_seconds must be positive", nil)
	}
	order, err := s.store.GetJobOrder(ctx, jobOrderID)
	if err != nil {
		return Task{}, services.Wrap(services.ErrUnavailable, "api", "add task", "store read failed", err)
	}
	if order == nil {
		return Task{}, services.Wrap(services.ErrNotFound, "api", "add task",
			fmt.Sprintf("job order %d does not exist", jobOrderID), nil)
	}
	task, err := s.store.CreateTask(ctx, jobOrderID, deviceSerial, strings.TrimSpace(operationName), standardSeconds)
	if err != nil {
		return Task{}, services.Wrap(services.ErrUnavailable, "api", "add task", "store write failed", err)
	}
	return FromTask(task), nil
}

// CreateReport files a write-up against a task.
func (s *TaskService) CreateReport(ctx context.Context, taskID int64, author, role, content string, quantity int) (Report, error) {
	author = strings.TrimSpace(author)
	if author == "" {
		return Report{}, services.Wrap(services.ErrValidation, "api", "create report", "author is required", nil)
	}
	if strings.TrimSpace(content) == "" {
		return Report{}, services.Wrap(services.ErrValidation, "api", "create report", "content is required", nil)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return Report{}, services.Wrap(services.ErrUnavailable, "api", "create report", "store read failed", err)
	}
	if task == nil {
		return Report{}, services.Wrap(services.ErrNotFound, "api", "create report",
			fmt.Sprintf("task %d does not exist", taskID), nil)
	}
	report, err := s.store.CreateReport(ctx, &pipeline.Report{
		TaskID:     taskID,
		JobOrderID: task.JobOrderID,
		Author:     author,
		Role:       strings.TrimSpace(role),
		Content:    strings.TrimSpace(content),
		Quantity:   quantity,
	})
	if err != nil {
		return Report{}, services.Wrap(services.ErrUnavailable, "api", "create report", "store write failed", err)
	}
	return FromReport(report), nil
}

// ListReports returns the reports filed under a job order.
func (s *TaskService) ListReports(ctx context.Context, jobOrderID int64) ([]Report, error) {
	reports, err := s.store.ListReports(ctx, jobOrderID)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "api", "list reports", "store read failed", err)
	}
	return FromReports(reports), nil
}
