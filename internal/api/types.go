package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a task in a transport-friendly format. Timestamps are
// RFC3339 strings; efficiency appears only once a duration was measured.
type Task struct {
	ID                  int64    `json:"id"`
	JobOrderID          int64    `json:"job_order_id"`
	DeviceSerial        string   `json:"device_serial"`
	OperationName       string   `json:"operation_name"`
	StandardTimeSeconds int64    `json:"standard_time_seconds"`
	ActualTimeSeconds   *int64   `json:"actual_time_seconds,omitempty"`
	Technician          string   `json:"technician,omitempty"`
	Status              string   `json:"status"`
	Pass                int      `json:"pass"`
	StartTime           string   `json:"start_time,omitempty"`
	EndTime             string   `json:"end_time,omitempty"`
	Notes               string   `json:"notes,omitempty"`
	EfficiencyPercent   *float64 `json:"efficiency_percent,omitempty"`
	CreatedAt           string   `json:"created_at,omitempty"`
	UpdatedAt           string   `json:"updated_at,omitempty"`
}

// Review describes one inspection-ledger entry.
type Review struct {
	ID           int64  `json:"id"`
	TaskID       int64  `json:"task_id"`
	Stage        string `json:"stage"`
	Pass         int    `json:"pass"`
	Decision     string `json:"decision"`
	Comments     string `json:"comments,omitempty"`
	Actor        string `json:"actor"`
	InspectionID *int64 `json:"inspection_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// JobOrder describes a job order for API consumers.
type JobOrder struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Title        string `json:"title"`
	TotalDevices int    `json:"total_devices"`
	DueDate      string `json:"due_date,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Alert describes one derived finding.
type Alert struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	JobOrderID int64  `json:"job_order_id,omitempty"`
}

// OrderMetrics is the job-order progress payload.
type OrderMetrics struct {
	ProgressPercent float64 `json:"progress_percent"`
	TotalCompleted  int     `json:"total_completed"`
	TotalRejected   int     `json:"total_rejected"`
	TotalDevices    int     `json:"total_devices"`
	Alerts          []Alert `json:"alerts"`
}

// TechnicianMetrics is one technician's daily snapshot payload.
type TechnicianMetrics struct {
	Technician        string  `json:"technician"`
	Date              string  `json:"date"`
	Productivity      float64 `json:"productivity"`
	AverageEfficiency float64 `json:"average_efficiency"`
	Utilization       float64 `json:"utilization"`
	TasksCompleted    int     `json:"tasks_completed"`
}

// ReviewQueueItem pairs a queued task with its computed urgency.
type ReviewQueueItem struct {
	Task           Task   `json:"task"`
	Priority       string `json:"priority"`
	WaitingSeconds int64  `json:"waiting_seconds"`
}

// Report describes a filed write-up.
type Report struct {
	ID         int64  `json:"id"`
	TaskID     int64  `json:"task_id"`
	JobOrderID int64  `json:"job_order_id"`
	Author     string `json:"author"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Quantity   int    `json:"quantity,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Dashboard aggregates pipeline state for the operations view.
type Dashboard struct {
	StatusCounts map[string]int `json:"status_counts"`
	OpenOrders   []JobOrder     `json:"open_orders"`
	Alerts       []Alert        `json:"alerts"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// ReviewResponse wraps a recorded decision with the task it moved.
type ReviewResponse struct {
	Task   Task   `json:"task"`
	Review Review `json:"review"`
}

// JobOrderResponse wraps a single job order.
type JobOrderResponse struct {
	JobOrder JobOrder `json:"job_order"`
}

// JobOrderListResponse wraps a collection of job orders.
type JobOrderListResponse struct {
	JobOrders []JobOrder `json:"job_orders"`
}

// ReviewQueueResponse wraps the prioritized review queue.
type ReviewQueueResponse struct {
	Role  string            `json:"role"`
	Items []ReviewQueueItem `json:"items"`
}

// ReportResponse wraps a single report.
type ReportResponse struct {
	Report Report `json:"report"`
}

// ReportListResponse wraps a collection of reports.
type ReportListResponse struct {
	Reports []Report `json:"reports"`
}
