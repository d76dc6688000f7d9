package api

import (
	"time"

	"joddb/internal/alerts"
	"joddb/internal/metrics"
	"joddb/internal/pipeline"
	"joddb/internal/reviewqueue"
)

// FromTask converts a task record to its API representation.
func FromTask(task *pipeline.Task) Task {
	if task == nil {
		return Task{}
	}

	dto := Task{
		ID:                  task.ID,
		JobOrderID:          task.JobOrderID,
		DeviceSerial:        task.DeviceSerial,
		OperationName:       task.OperationName,
		StandardTimeSeconds: task.StandardSeconds,
		Technician:          task.Technician,
		Status:              string(task.Status),
		Pass:                task.Pass,
		Notes:               task.Notes,
	}
	if task.ActualSeconds != nil {
		actual := *task.ActualSeconds
		dto.ActualTimeSeconds = &actual
	}
	if eff, ok := task.Efficiency(); ok {
		dto.EfficiencyPercent = &eff
	}
	if task.StartTime != nil {
		dto.StartTime = task.StartTime.UTC().Format(dateTimeFormat)
	}
	if task.EndTime != nil {
		dto.EndTime = task.EndTime.UTC().Format(dateTimeFormat)
	}
	if !task.CreatedAt.IsZero() {
		dto.CreatedAt = task.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !task.UpdatedAt.IsZero() {
		dto.UpdatedAt = task.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromTasks converts a slice of task records.
func FromTasks(tasks []*pipeline.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromReview converts a ledger entry to its API representation.
func FromReview(review *pipeline.Review) Review {
	if review == nil {
		return Review{}
	}
	dto := Review{
		ID:       review.ID,
		TaskID:   review.TaskID,
		Stage:    string(review.Stage),
		Pass:     review.Pass,
		Decision: string(review.Decision),
		Comments: review.Comments,
		Actor:    review.Actor,
	}
	if review.InspectionID != nil {
		id := *review.InspectionID
		dto.InspectionID = &id
	}
	if !review.CreatedAt.IsZero() {
		dto.CreatedAt = review.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobOrder converts a job order record to its API representation.
func FromJobOrder(order *pipeline.JobOrder) JobOrder {
	if order == nil {
		return JobOrder{}
	}
	dto := JobOrder{
		ID:           order.ID,
		Code:         order.Code,
		Title:        order.Title,
		TotalDevices: order.TotalDevices,
		Status:       string(order.Status),
	}
	if !order.DueDate.IsZero() {
		dto.DueDate = order.DueDate.UTC().Format(dateTimeFormat)
	}
	if !order.CreatedAt.IsZero() {
		dto.CreatedAt = order.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobOrders converts a slice of job order records.
func FromJobOrders(orders []*pipeline.JobOrder) []JobOrder {
	if len(orders) == 0 {
		return nil
	}
	out := make([]JobOrder, 0, len(orders))
	for _, order := range orders {
		out = append(out, FromJobOrder(order))
	}
	return out
}

// FromAlerts converts derived alerts. The slice is never nil so clients
// always see an array.
func FromAlerts(found []alerts.Alert) []Alert {
	out := make([]Alert, 0, len(found))
	for _, alert := range found {
		out = append(out, Alert{
			Type:       string(alert.Type),
			Severity:   string(alert.Severity),
			Message:    alert.Message,
			JobOrderID: alert.JobOrderID,
		})
	}
	return out
}

// FromOrderProgress merges a progress rollup with its alerts.
func FromOrderProgress(progress metrics.OrderProgress, found []alerts.Alert) OrderMetrics {
	return OrderMetrics{
		ProgressPercent: progress.ProgressPercent,
		TotalCompleted:  progress.TotalCompleted,
		TotalRejected:   progress.TotalRejected,
		TotalDevices:    progress.TotalDevices,
		Alerts:          FromAlerts(found),
	}
}

// FromTechnicianDay converts a daily snapshot.
func FromTechnicianDay(day metrics.TechnicianDay) TechnicianMetrics {
	return TechnicianMetrics{
		Technician:        day.Technician,
		Date:              day.Date.UTC().Format("2006-01-02"),
		Productivity:      day.Productivity,
		AverageEfficiency: day.AverageEfficiency,
		Utilization:       day.Utilization,
		TasksCompleted:    day.TasksCompleted,
	}
}

// FromQueueItems converts prioritized review-queue entries.
func FromQueueItems(items []reviewqueue.Item) []ReviewQueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]ReviewQueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, ReviewQueueItem{
			Task:           FromTask(item.Task),
			Priority:       string(item.Priority),
			WaitingSeconds: int64(item.Waiting / time.Second),
		})
	}
	return out
}

// FromReport converts a filed report.
func FromReport(report *pipeline.Report) Report {
	if report == nil {
		return Report{}
	}
	dto := Report{
		ID:         report.ID,
		TaskID:     report.TaskID,
		JobOrderID: report.JobOrderID,
		Author:     report.Author,
		Role:       report.Role,
		Content:    report.Content,
		Quantity:   report.Quantity,
	}
	if !report.CreatedAt.IsZero() {
		dto.CreatedAt = report.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromReports converts a slice of reports.
func FromReports(reports []*pipeline.Report) []Report {
	if len(reports) == 0 {
		return nil
	}
	out := make([]Report, 0, len(reports))
	for _, report := range reports {
		out = append(out, FromReport(report))
	}
	return out
}

// MergeStatusCounts flattens a status histogram to string keys with every
// known status present.
func MergeStatusCounts(stats map[pipeline.Status]int) map[string]int {
	known := pipeline.AllStatuses()
	out := make(map[string]int, len(known))
	for _, status := range known {
		out[string(status)] = stats[status]
	}
	return out
}
