// Package alerts derives operational alerts from job-order and task
// snapshots. Evaluation is stateless and recomputed on demand; nothing here
// is persisted.
package alerts

import (
	"fmt"
	"log/slog"
	"time"

	"joddb/internal/logging"
	"joddb/internal/pipeline"
)

// Type names a class of alert.
type Type string

const (
	TypeOverdue       Type = "overdue"
	TypeLowEfficiency Type = "low_efficiency"
	TypeRework        Type = "rework"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Alert is one derived finding against a job order.
type Alert struct {
	Type       Type
	Severity   Severity
	Message    string
	JobOrderID int64
}

// Policy carries the evaluation thresholds.
type Policy struct {
	// EfficiencyThreshold is the team-average percentage below which a low
	// efficiency alert fires.
	EfficiencyThreshold float64
	// ReworkThreshold is the rework-task count at which a rework alert
	// fires for a job order.
	ReworkThreshold int
}

// Evaluate runs every rule over the snapshot and returns the findings,
// at most one alert per (type, job order). Malformed records are skipped
// with an integrity warning rather than aborting the evaluation.
func Evaluate(now time.Time, orders []*pipeline.JobOrder, tasks []*pipeline.Task, policy Policy, logger *slog.Logger) []Alert {
	if logger == nil {
		logger = logging.NewNop()
	}

	byOrder := make(map[int64][]*pipeline.Task)
	for _, task := range tasks {
		if task == nil || task.JobOrderID == 0 {
			logger.Warn("skipping malformed task in alert evaluation",
				logging.Bool(logging.FieldIntegrity, true))
			continue
		}
		byOrder[task.JobOrderID] = append(byOrder[task.JobOrderID], task)
	}

	var found []Alert
	seen := make(map[string]bool)
	emit := func(alert Alert) {
		key := string(alert.Type) + "/" + fmt.Sprint(alert.JobOrderID)
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, alert)
	}

	for _, order := range orders {
		if order == nil || order.ID == 0 {
			logger.Warn("skipping malformed job order in alert evaluation",
				logging.Bool(logging.FieldIntegrity, true))
			continue
		}

		if order.Status == pipeline.OrderOpen && !order.DueDate.IsZero() && order.DueDate.Before(now) {
			emit(Alert{
				Type:       TypeOverdue,
				Severity:   SeverityHigh,
				Message:    fmt.Sprintf("job order %s is past its %s due date", order.Code, order.DueDate.Format("2006-01-02")),
				JobOrderID: order.ID,
			})
		}

		orderTasks := byOrder[order.ID]

		if avg, ok := teamAverageEfficiency(orderTasks); ok && avg < policy.EfficiencyThreshold {
			emit(Alert{
				Type:       TypeLowEfficiency,
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("job order %s team efficiency %.1f%% is below %.1f%%", order.Code, avg, policy.EfficiencyThreshold),
				JobOrderID: order.ID,
			})
		}

		if reworkCount := countStatus(orderTasks, pipeline.StatusReworkRequired); policy.ReworkThreshold > 0 && reworkCount >= policy.ReworkThreshold {
			emit(Alert{
				Type:       TypeRework,
				Severity:   SeverityMedium,
				Message:    fmt.Sprintf("job order %s has %d tasks awaiting rework", order.Code, reworkCount),
				JobOrderID: order.ID,
			})
		}
	}
	return found
}

// ForOrder evaluates the rules for a single job order.
func ForOrder(now time.Time, order *pipeline.JobOrder, tasks []*pipeline.Task, policy Policy, logger *slog.Logger) []Alert {
	if order == nil {
		return nil
	}
	return Evaluate(now, []*pipeline.JobOrder{order}, tasks, policy, logger)
}

func teamAverageEfficiency(tasks []*pipeline.Task) (float64, bool) {
	var sum float64
	var count int
	for _, task := range tasks {
		if eff, ok := task.Efficiency(); ok {
			sum += eff
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func countStatus(tasks []*pipeline.Task, status pipeline.Status) int {
	n := 0
	for _, task := range tasks {
		if task.Status == status {
			n++
		}
	}
	return n
}
