// Package engine coordinates the task lifecycle: claims, completions, and the
// staged review chain. It owns transition legality, atomic decision
// recording, and job-order rollup, delegating persistence to the pipeline
// store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"joddb/internal/config"
	"joddb/internal/logging"
	"joddb/internal/notifications"
	"joddb/internal/pipeline"
	"joddb/internal/services"
	"joddb/internal/telemetry"
)

const component = "engine"

// Dependencies carries everything an Engine needs. Store and Config are
// required; the rest default to inert implementations.
type Dependencies struct {
	Store    *pipeline.Store
	Config   *config.Config
	Logger   *slog.Logger
	Notifier notifications.Service
	Metrics  *telemetry.Collector
	Clock    func() time.Time
}

// Engine applies lifecycle operations against the store with
// compare-and-swap semantics. All methods are safe for concurrent use.
type Engine struct {
	store    *pipeline.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	metrics  *telemetry.Collector
	clock    func() time.Time
}

// New builds an Engine from its dependencies.
func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("engine requires a config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:    deps.Store,
		cfg:      deps.Config,
		logger:   logging.NewComponentLogger(logger, component),
		notifier: notifier,
		metrics:  deps.Metrics,
		clock:    clock,
	}, nil
}

// Claim assigns an available task to a technician and starts its clock.
// Exactly one concurrent claimant wins; the rest see a conflict.
func (e *Engine) Claim(ctx context.Context, taskID int64, technician string) (*pipeline.Task, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return nil, services.Wrap(services.ErrValidation, component, "claim", "technician is required", nil)
	}

	task, err := e.loadTask(ctx, taskID, "claim")
	if err != nil {
		return nil, err
	}
	if _, ok := pipeline.Next(task.Status, pipeline.EventClaim, e.cfg.Pipeline.TesterStage); !ok {
		return nil, services.Wrap(services.ErrInvalidTransition, component, "claim",
			fmt.Sprintf("task is %s, not available", task.Status), nil)
	}

	now := e.clock()
	claimed, err := e.store.ClaimTask(ctx, taskID, technician, now)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, "claim", "store write failed", err)
	}
	if !claimed {
		e.metrics.RecordConflict()
		return nil, services.Wrap(services.ErrConflict, component, "claim", "task was taken by another technician", nil)
	}

	e.metrics.RecordClaim()
	e.logger.InfoContext(ctx, "task claimed",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String(logging.FieldActor, technician),
		logging.Int("pass", task.Pass))
	return e.loadTask(ctx, taskID, "claim")
}

// Complete ends work on an in-progress task, deriving the actual duration
// from the recorded start time, and parks it in the QA review queue. Only
// the owning technician may complete a task.
func (e *Engine) Complete(ctx context.Context, taskID int64, technician, notes string) (*pipeline.Task, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return nil, services.Wrap(services.ErrValidation, component, "complete", "technician is required", nil)
	}

	task, err := e.loadTask(ctx, taskID, "complete")
	if err != nil {
		return nil, err
	}
	if task.Status != pipeline.StatusInProgress {
		return nil, services.Wrap(services.ErrInvalidTransition, component, "complete",
			fmt.Sprintf("task is %s, not in_progress", task.Status), nil)
	}
	if task.Technician != technician {
		return nil, services.Wrap(services.ErrValidation, component, "complete",
			"task is held by a different technician", nil)
	}
	if task.StartTime == nil {
		e.logger.WarnContext(ctx, "in-progress task has no start time",
			logging.Int64(logging.FieldTaskID, taskID),
			logging.Bool(logging.FieldIntegrity, true))
		return nil, services.Wrap(services.ErrInvalidTransition, component, "complete",
			"task has no recorded start time", nil)
	}

	end := e.clock()
	actual := int64(end.Sub(*task.StartTime) / time.Second)
	if actual < 0 {
		return nil, services.Wrap(services.ErrValidation, component, "complete",
			"end time precedes start time", nil)
	}

	done, err := e.store.CompleteTask(ctx, taskID, technician, end, actual, notes)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, "complete", "store write failed", err)
	}
	if !done {
		e.metrics.RecordConflict()
		return nil, services.Wrap(services.ErrConflict, component, "complete", "task changed under completion", nil)
	}

	e.metrics.RecordCompletion(actual)
	e.logger.InfoContext(ctx, "task completed",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.String(logging.FieldActor, technician),
		logging.Int64("actual_seconds", actual))

	updated, err := e.loadTask(ctx, taskID, "complete")
	if err != nil {
		return nil, err
	}
	if notifyErr := e.notifier.NotifyTaskReadyForReview(ctx, updated, pipeline.StageQA); notifyErr != nil {
		e.logger.WarnContext(ctx, "review notification failed", logging.Error(notifyErr))
	}
	return updated, nil
}

// DecisionRequest carries one stage's verdict on a task.
type DecisionRequest struct {
	TaskID       int64
	Stage        pipeline.Stage
	Decision     pipeline.Decision
	Comments     string
	Actor        string
	InspectionID *int64
}

// Decide records a review verdict in the ledger and advances the task. The
// ledger insert and the status swap commit in one transaction, so a failed
// swap leaves no ledger row behind and a retry starts fresh. Supervisor and
// tester verdicts must reference an accepted QA inspection for the current
// pass.
func (e *Engine) Decide(ctx context.Context, req DecisionRequest) (*pipeline.Task, *pipeline.Review, error) {
	if err := e.validateDecision(&req); err != nil {
		return nil, nil, err
	}

	task, err := e.loadTask(ctx, req.TaskID, "decide")
	if err != nil {
		return nil, nil, err
	}
	awaiting, ok := pipeline.AwaitingStage(task.Status)
	if !ok {
		return nil, nil, services.Wrap(services.ErrInvalidTransition, component, "decide",
			fmt.Sprintf("task is %s and not awaiting review", task.Status), nil)
	}
	if awaiting != req.Stage {
		return nil, nil, services.Wrap(services.ErrInvalidTransition, component, "decide",
			fmt.Sprintf("task awaits %s review, not %s", awaiting, req.Stage), nil)
	}

	inspectionID, err := e.resolveInspection(ctx, task, &req)
	if err != nil {
		return nil, nil, err
	}

	event := pipeline.DecisionEvent(req.Decision)
	next, ok := pipeline.Next(task.Status, event, e.cfg.Pipeline.TesterStage)
	if !ok {
		return nil, nil, services.Wrap(services.ErrInvalidTransition, component, "decide",
			fmt.Sprintf("no %s transition from %s", event, task.Status), nil)
	}

	review, moved, err := e.store.RecordReviewAndTransition(ctx, &pipeline.Review{
		TaskID:       task.ID,
		Stage:        req.Stage,
		Pass:         task.Pass,
		Decision:     req.Decision,
		Comments:     req.Comments,
		Actor:        req.Actor,
		InspectionID: inspectionID,
	}, task.Status, next)
	if err != nil {
		if errors.Is(err, pipeline.ErrDuplicateReview) {
			return nil, nil, services.Wrap(services.ErrValidation, component, "decide",
				fmt.Sprintf("%s already decided pass %d", req.Stage, task.Pass), nil)
		}
		return nil, nil, services.Wrap(services.ErrUnavailable, component, "decide", "decision write failed", err)
	}
	if !moved {
		// The task moved underneath us and the whole decision rolled back.
		// The caller can re-read and decide against the new status.
		e.metrics.RecordConflict()
		return nil, nil, services.Wrap(services.ErrConflict, component, "decide",
			"task changed while recording decision", nil)
	}

	e.metrics.RecordDecision(string(req.Stage), string(req.Decision))
	e.logger.InfoContext(ctx, "review decided",
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldStage, string(req.Stage)),
		logging.String("decision", string(req.Decision)),
		logging.String(logging.FieldActor, req.Actor),
		logging.String("to", string(next)))

	updated, err := e.loadTask(ctx, task.ID, "decide")
	if err != nil {
		return nil, nil, err
	}
	e.afterDecision(ctx, updated, req, next)
	return updated, review, nil
}

// Resume returns a rejected task to the available pool for another pass.
func (e *Engine) Resume(ctx context.Context, taskID int64) (*pipeline.Task, error) {
	task, err := e.loadTask(ctx, taskID, "resume")
	if err != nil {
		return nil, err
	}
	if task.Status != pipeline.StatusReworkRequired {
		return nil, services.Wrap(services.ErrInvalidTransition, component, "resume",
			fmt.Sprintf("task is %s, not rework_required", task.Status), nil)
	}

	resumed, err := e.store.ResumeTask(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, "resume", "store write failed", err)
	}
	if !resumed {
		e.metrics.RecordConflict()
		return nil, services.Wrap(services.ErrConflict, component, "resume", "task changed under resume", nil)
	}

	e.metrics.RecordResume()
	e.logger.InfoContext(ctx, "task resumed for rework",
		logging.Int64(logging.FieldTaskID, taskID),
		logging.Int("pass", task.Pass+1))
	return e.loadTask(ctx, taskID, "resume")
}

// Close archives a rejected task whose rework will not continue.
func (e *Engine) Close(ctx context.Context, taskID int64) (*pipeline.Task, error) {
	task, err := e.loadTask(ctx, taskID, "close")
	if err != nil {
		return nil, err
	}
	if task.Status != pipeline.StatusReworkRequired {
		return nil, services.Wrap(services.ErrInvalidTransition, component, "close",
			fmt.Sprintf("task is %s, not rework_required", task.Status), nil)
	}

	closed, err := e.store.CloseTask(ctx, taskID)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, "close", "store write failed", err)
	}
	if !closed {
		e.metrics.RecordConflict()
		return nil, services.Wrap(services.ErrConflict, component, "close", "task changed under close", nil)
	}

	e.metrics.RecordClose()
	e.logger.InfoContext(ctx, "task closed", logging.Int64(logging.FieldTaskID, taskID))
	return e.loadTask(ctx, taskID, "close")
}

func (e *Engine) validateDecision(req *DecisionRequest) error {
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		return services.Wrap(services.ErrValidation, component, "decide", "actor is required", nil)
	}
	if _, ok := pipeline.ParseStage(string(req.Stage)); !ok {
		return services.Wrap(services.ErrValidation, component, "decide",
			fmt.Sprintf("unknown stage %q", req.Stage), nil)
	}
	if _, ok := pipeline.ParseDecision(string(req.Decision)); !ok {
		return services.Wrap(services.ErrValidation, component, "decide",
			fmt.Sprintf("unknown decision %q", req.Decision), nil)
	}
	if req.Decision == pipeline.DecisionRejected && strings.TrimSpace(req.Comments) == "" {
		return services.Wrap(services.ErrValidation, component, "decide",
			"rejection requires comments", nil)
	}
	return nil
}

// resolveInspection validates the QA inspection a tester or supervisor verdict
// builds on. QA verdicts carry no upstream reference.
func (e *Engine) resolveInspection(ctx context.Context, task *pipeline.Task, req *DecisionRequest) (*int64, error) {
	if req.Stage == pipeline.StageQA {
		return nil, nil
	}

	qaReview, err := e.store.FindReview(ctx, task.ID, pipeline.StageQA, task.Pass)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, "decide", "ledger read failed", err)
	}
	if qaReview == nil || qaReview.Decision != pipeline.DecisionAccepted {
		return nil, services.Wrap(services.ErrNotFound, component, "decide",
			fmt.Sprintf("no accepted qa inspection for pass %d", task.Pass), nil)
	}
	if req.InspectionID != nil && *req.InspectionID != qaReview.ID {
		return nil, services.Wrap(services.ErrValidation, component, "decide",
			"inspection reference does not match the current pass", nil)
	}
	id := qaReview.ID
	return &id, nil
}

// afterDecision handles notifications and job-order rollup once the status
// swap has landed. Failures here are logged, never surfaced; the decision
// itself is already durable.
func (e *Engine) afterDecision(ctx context.Context, task *pipeline.Task, req DecisionRequest, next pipeline.Status) {
	if req.Decision == pipeline.DecisionRejected {
		if err := e.notifier.NotifyTaskRejected(ctx, task, req.Stage, req.Comments); err != nil {
			e.logger.WarnContext(ctx, "rejection notification failed", logging.Error(err))
		}
		return
	}

	if next == pipeline.StatusCompleted {
		if err := e.notifier.NotifyTaskCompleted(ctx, task); err != nil {
			e.logger.WarnContext(ctx, "completion notification failed", logging.Error(err))
		}
		e.rollupJobOrder(ctx, task.JobOrderID)
		return
	}

	if stage, ok := pipeline.AwaitingStage(next); ok {
		if err := e.notifier.NotifyTaskReadyForReview(ctx, task, stage); err != nil {
			e.logger.WarnContext(ctx, "review notification failed", logging.Error(err))
		}
	}
}

// rollupJobOrder marks a job order done once its completed tasks cover every
// device.
func (e *Engine) rollupJobOrder(ctx context.Context, jobOrderID int64) {
	order, err := e.store.GetJobOrder(ctx, jobOrderID)
	if err != nil || order == nil || order.Status != pipeline.OrderOpen {
		if err != nil {
			e.logger.WarnContext(ctx, "job order rollup read failed",
				logging.Int64(logging.FieldJobOrderID, jobOrderID),
				logging.Error(err))
		}
		return
	}

	completed, err := e.store.ListTasks(ctx, pipeline.TaskFilter{
		JobOrderID: jobOrderID,
		Statuses:   []pipeline.Status{pipeline.StatusCompleted},
	})
	if err != nil {
		e.logger.WarnContext(ctx, "job order rollup count failed",
			logging.Int64(logging.FieldJobOrderID, jobOrderID),
			logging.Error(err))
		return
	}
	if len(completed) < order.TotalDevices {
		return
	}

	if err := e.store.SetJobOrderStatus(ctx, jobOrderID, pipeline.OrderDone); err != nil {
		e.logger.WarnContext(ctx, "job order rollup write failed",
			logging.Int64(logging.FieldJobOrderID, jobOrderID),
			logging.Error(err))
		return
	}
	e.logger.InfoContext(ctx, "job order completed",
		logging.Int64(logging.FieldJobOrderID, jobOrderID),
		logging.String("code", order.Code))
	if err := e.notifier.NotifyJobOrderCompleted(ctx, order); err != nil {
		e.logger.WarnContext(ctx, "job order notification failed", logging.Error(err))
	}
}

func (e *Engine) loadTask(ctx context.Context, id int64, operation string) (*pipeline.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, component, operation, "store read failed", err)
	}
	if task == nil {
		return nil, services.Wrap(services.ErrNotFound, component, operation,
			fmt.Sprintf("task %d does not exist", id), nil)
	}
	return task, nil
}
