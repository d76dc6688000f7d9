package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"joddb/internal/alerts"
	"joddb/internal/config"
	"joddb/internal/logging"
	"joddb/internal/metrics"
	"joddb/internal/pipeline"
	"joddb/internal/reviewqueue"
	"joddb/internal/services"
)

// awaitingStatuses are the statuses that park a task in some review queue.
var awaitingStatuses = []pipeline.Status{
	pipeline.StatusPendingQA,
	pipeline.StatusQAApproved,
	pipeline.StatusTesterApproved,
	pipeline.StatusPendingSupervisor,
}

// MetricsService computes read-side aggregates over point-in-time store
// snapshots. Every figure is recomputed per call; nothing is cached.
type MetricsService struct {
	store  *pipeline.Store
	cfg    *config.Config
	logger *slog.Logger
	clock  func() time.Time
}

// NewMetricsService constructs a MetricsService.
func NewMetricsService(store *pipeline.Store, cfg *config.Config, logger *slog.Logger) *MetricsService {
	if store == nil || cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MetricsService{
		store:  store,
		cfg:    cfg,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MetricsService) alertPolicy() alerts.Policy {
	return alerts.Policy{
		EfficiencyThreshold: s.cfg.Pipeline.EfficiencyThreshold,
		ReworkThreshold:     s.cfg.Pipeline.ReworkThreshold,
	}
}

func (s *MetricsService) queuePolicy() reviewqueue.Policy {
	return reviewqueue.Policy{
		HighAfter: time.Duration(s.cfg.ReviewQueue.HighAfterHours) * time.Hour,
		LowBefore: time.Duration(s.cfg.ReviewQueue.LowBeforeHours) * time.Hour,
	}
}

// JobOrder computes a job order's progress rollup and active alerts.
func (s *MetricsService) JobOrder(ctx context.Context, jobOrderID int64) (OrderMetrics, error) {
	order, err := s.store.GetJobOrder(ctx, jobOrderID)
	if err != nil {
		return OrderMetrics{}, services.Wrap(services.ErrUnavailable, "metrics", "job order", "store read failed", err)
	}
	if order == nil {
		return OrderMetrics{}, services.Wrap(services.ErrNotFound, "metrics", "job order",
			fmt.Sprintf("job order %d does not exist", jobOrderID), nil)
	}
	tasks, err := s.store.ListTasks(ctx, pipeline.TaskFilter{JobOrderID: jobOrderID})
	if err != nil {
		return OrderMetrics{}, services.Wrap(services.ErrUnavailable, "metrics", "job order", "store read failed", err)
	}

	progress := metrics.JobOrderProgress(order, tasks)
	found := alerts.ForOrder(s.clock(), order, tasks, s.alertPolicy(), s.logger)
	return FromOrderProgress(progress, found), nil
}

// Technician computes a technician's snapshot for a calendar day. The date
// string is ISO 8601; empty means today.
func (s *MetricsService) Technician(ctx context.Context, technician, date string) (TechnicianMetrics, error) {
	technician = strings.TrimSpace(technician)
	if technician == "" {
		return TechnicianMetrics{}, services.Wrap(services.ErrValidation, "metrics", "technician", "technician is required", nil)
	}

	day := s.clock()
	if trimmed := strings.TrimSpace(date); trimmed != "" {
		parsed, err := time.Parse("2006-01-02", trimmed)
		if err != nil {
			return TechnicianMetrics{}, services.Wrap(services.ErrValidation, "metrics", "technician",
				fmt.Sprintf("invalid date %q, want YYYY-MM-DD", trimmed), nil)
		}
		day = parsed
	}

	tasks, err := s.store.ListTasks(ctx, pipeline.TaskFilter{Technician: technician})
	if err != nil {
		return TechnicianMetrics{}, services.Wrap(services.ErrUnavailable, "metrics", "technician", "store read failed", err)
	}

	snapshot := metrics.TechnicianDaily(tasks, technician, day, metrics.Policy{
		WorkdaySeconds: int64(s.cfg.Pipeline.WorkdaySeconds),
	})
	return FromTechnicianDay(snapshot), nil
}

// ReviewQueue returns the prioritized queue for a review role.
func (s *MetricsService) ReviewQueue(ctx context.Context, role string) (ReviewQueueResponse, error) {
	stage, ok := pipeline.ParseStage(role)
	if !ok {
		return ReviewQueueResponse{}, services.Wrap(services.ErrValidation, "metrics", "review queue",
			fmt.Sprintf("unknown role %q", role), nil)
	}
	tasks, err := s.store.ListTasks(ctx, pipeline.TaskFilter{Statuses: awaitingStatuses})
	if err != nil {
		return ReviewQueueResponse{}, services.Wrap(services.ErrUnavailable, "metrics", "review queue", "store read failed", err)
	}

	items := reviewqueue.Prioritize(s.clock(), tasks, stage, s.queuePolicy())
	return ReviewQueueResponse{
		Role:  string(stage),
		Items: FromQueueItems(items),
	}, nil
}

// Dashboard aggregates status counts, open orders, and active alerts.
func (s *MetricsService) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return Dashboard{}, services.Wrap(services.ErrUnavailable, "metrics", "dashboard", "store read failed", err)
	}
	orders, err := s.store.ListJobOrders(ctx, pipeline.OrderOpen)
	if err != nil {
		return Dashboard{}, services.Wrap(services.ErrUnavailable, "metrics", "dashboard", "store read failed", err)
	}
	tasks, err := s.store.ListTasks(ctx, pipeline.TaskFilter{})
	if err != nil {
		return Dashboard{}, services.Wrap(services.ErrUnavailable, "metrics", "dashboard", "store read failed", err)
	}

	found := alerts.Evaluate(s.clock(), orders, tasks, s.alertPolicy(), s.logger)
	return Dashboard{
		StatusCounts: MergeStatusCounts(stats),
		OpenOrders:   FromJobOrders(orders),
		Alerts:       FromAlerts(found),
	}, nil
}
