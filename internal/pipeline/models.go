package pipeline

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusAvailable         Status = "available"
	StatusInProgress        Status = "in_progress"
	StatusPendingQA         Status = "pending_qa"
	StatusQAApproved        Status = "qa_approved"
	StatusTesterApproved    Status = "tester_approved"
	StatusPendingSupervisor Status = "pending_supervisor"
	StatusReworkRequired    Status = "rework_required"
	StatusCompleted         Status = "completed"
	StatusClosed            Status = "closed"
)

var allStatuses = []Status{
	StatusAvailable,
	StatusInProgress,
	StatusPendingQA,
	StatusQAApproved,
	StatusTesterApproved,
	StatusPendingSupervisor,
	StatusReworkRequired,
	StatusCompleted,
	StatusClosed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// statusAliases maps legacy boundary vocabulary onto canonical statuses. The
// collaborating frontend still sends "done" for technician-finished tasks and
// "rejected" for tasks bounced back to rework.
var statusAliases = map[string]Status{
	"done":                StatusPendingQA,
	"rejected":            StatusReworkRequired,
	"supervisor_approved": StatusCompleted,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status, accepting legacy aliases.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	if alias, ok := statusAliases[normalized]; ok {
		return alias, true
	}
	status := Status(normalized)
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether a status ends the task lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusClosed
}

// Stage identifies a review stage in the QA pipeline.
type Stage string

const (
	StageQA         Stage = "qa"
	StageTester     Stage = "tester"
	StageSupervisor Stage = "supervisor"
)

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	switch Stage(strings.ToLower(strings.TrimSpace(value))) {
	case StageQA:
		return StageQA, true
	case StageTester:
		return StageTester, true
	case StageSupervisor:
		return StageSupervisor, true
	default:
		return "", false
	}
}

// AwaitingStage returns the review stage a task in the given status is
// waiting on, if any.
func AwaitingStage(status Status) (Stage, bool) {
	switch status {
	case StatusPendingQA:
		return StageQA, true
	case StatusQAApproved:
		return StageTester, true
	case StatusTesterApproved, StatusPendingSupervisor:
		return StageSupervisor, true
	default:
		return "", false
	}
}

// Decision is the outcome recorded by a review stage.
type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
)

// ParseDecision converts a string into a known Decision.
func ParseDecision(value string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(value))) {
	case DecisionAccepted:
		return DecisionAccepted, true
	case DecisionRejected:
		return DecisionRejected, true
	default:
		return "", false
	}
}

// OrderStatus represents the lifecycle of a job order.
type OrderStatus string

const (
	OrderOpen     OrderStatus = "open"
	OrderDone     OrderStatus = "done"
	OrderArchived OrderStatus = "archived"
)

// ParseOrderStatus converts a string into a known OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(value))) {
	case OrderOpen:
		return OrderOpen, true
	case OrderDone:
		return OrderDone, true
	case OrderArchived:
		return OrderArchived, true
	default:
		return "", false
	}
}

// IsTerminal reports whether an order status ends the job order lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDone || s == OrderArchived
}

// JobOrder represents a batch of devices to be processed under one due date.
// Progress and rejection counts are never stored; they are recomputed from
// tasks so the aggregate cannot drift.
type JobOrder struct {
	ID           int64
	Code         string
	Title        string
	TotalDevices int
	DueDate      time.Time
	Status       OrderStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Task is the unit of work for one device at one operation step.
type Task struct {
	ID              int64
	JobOrderID      int64
	DeviceSerial    string
	OperationName   string
	StandardSeconds int64
	ActualSeconds   *int64
	Technician      string
	Status          Status
	Pass            int
	StartTime       *time.Time
	EndTime         *time.Time
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Efficiency returns standard/actual as a percentage. The second return is
// false when no actual time has been recorded; efficiency is undefined, not
// zero, for unfinished tasks.
func (t Task) Efficiency() (float64, bool) {
	if t.ActualSeconds == nil || *t.ActualSeconds <= 0 {
		return 0, false
	}
	return float64(t.StandardSeconds) / float64(*t.ActualSeconds) * 100, true
}

// Review is one immutable decision in the ledger, scoped to a pass through
// the pipeline. Supervisor rows reference the QA inspection they adjudicate.
type Review struct {
	ID           int64
	TaskID       int64
	Stage        Stage
	Pass         int
	Decision     Decision
	Comments     string
	Actor        string
	InspectionID *int64
	CreatedAt    time.Time
}

// Report is a free-form write-up a technician or inspector files against a
// task after an operation.
type Report struct {
	ID         int64
	TaskID     int64
	JobOrderID int64
	Author     string
	Role       string
	Content    string
	Quantity   int
	CreatedAt  time.Time
}

// HealthSummary describes aggregated task counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Available int
	InReview  int
	Rework    int
	Completed int
}
