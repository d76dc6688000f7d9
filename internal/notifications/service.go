package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"joddb/internal/config"
	"joddb/internal/pipeline"
)

const userAgent = "joddb/0.1.0"

// Service defines the notification surface exposed to the pipeline engine.
type Service interface {
	NotifyTaskReadyForReview(ctx context.Context, task *pipeline.Task, stage pipeline.Stage) error
	NotifyTaskRejected(ctx context.Context, task *pipeline.Task, stage pipeline.Stage, comments string) error
	NotifyTaskCompleted(ctx context.Context, task *pipeline.Task) error
	NotifyJobOrderCompleted(ctx context.Context, order *pipeline.JobOrder) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	return &ntfyService{
		endpoint: "https://ntfy.sh/" + topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyTaskReadyForReview(ctx context.Context, task *pipeline.Task, stage pipeline.Stage) error {
	if !n.settings.ReviewQueue || task == nil {
		return nil
	}
	data := payload{
		title:   "joddb - Ready for Review",
		message: fmt.Sprintf("Task %d (%s, device %s) awaits %s review", task.ID, task.OperationName, task.DeviceSerial, stage),
		tags:    []string{"joddb", "review", string(stage)},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskRejected(ctx context.Context, task *pipeline.Task, stage pipeline.Stage, comments string) error {
	if !n.settings.Rejections || task == nil {
		return nil
	}
	message := fmt.Sprintf("Task %d (device %s) rejected at %s stage", task.ID, task.DeviceSerial, stage)
	if comments = strings.TrimSpace(comments); comments != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, comments)
	}
	data := payload{
		title:    "joddb - Task Rejected",
		message:  message,
		tags:     []string{"joddb", "rejected", string(stage)},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskCompleted(ctx context.Context, task *pipeline.Task) error {
	if !n.settings.Completions || task == nil {
		return nil
	}
	data := payload{
		title:   "joddb - Task Complete",
		message: fmt.Sprintf("Task %d (device %s) passed final disposition", task.ID, task.DeviceSerial),
		tags:    []string{"joddb", "task", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobOrderCompleted(ctx context.Context, order *pipeline.JobOrder) error {
	if !n.settings.Completions || order == nil {
		return nil
	}
	data := payload{
		title:    "joddb - Job Order Complete",
		message:  fmt.Sprintf("Job order %s (%s) reached full completion", order.Code, order.Title),
		tags:     []string{"joddb", "joborder", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, context string) error {
	if !n.settings.Errors || err == nil {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Pipeline error")
	if context = strings.TrimSpace(context); context != "" {
		builder.WriteString(" in " + context)
	}
	builder.WriteString(": " + err.Error())
	data := payload{
		title:    "joddb - Error",
		message:  builder.String(),
		tags:     []string{"joddb", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "joddb - Test",
		message:  "Notification system test",
		tags:     []string{"joddb", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTaskReadyForReview(context.Context, *pipeline.Task, pipeline.Stage) error {
	return nil
}

func (noopService) NotifyTaskRejected(context.Context, *pipeline.Task, pipeline.Stage, string) error {
	return nil
}

func (noopService) NotifyTaskCompleted(context.Context, *pipeline.Task) error { return nil }

func (noopService) NotifyJobOrderCompleted(context.Context, *pipeline.JobOrder) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }

// NewNop returns a Service that discards every notification.
func NewNop() Service { return noopService{} }
