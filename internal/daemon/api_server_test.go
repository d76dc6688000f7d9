package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"joddb/internal/daemon"
	"joddb/internal/logging"
	"joddb/internal/testsupport"
)

type apiClient struct {
	t    *testing.T
	base string
}

func (c *apiClient) do(method, path, actor string, body any) (*http.Response, []byte) {
	c.t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &payload)
	if err != nil {
		c.t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func (c *apiClient) decode(data []byte, dst any) {
	c.t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		c.t.Fatalf("decode response %s: %v", data, err)
	}
}

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *apiClient) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(ctx)
	if status.APIAddress == "" {
		t.Fatal("api server has no address")
	}
	return d, &apiClient{t: t, base: "http://" + status.APIAddress}
}

func TestAPIServerFullPipeline(t *testing.T) {
	_, client := startDaemon(t)

	resp, body := client.do(http.MethodPost, "/job-orders", "", map[string]any{
		"code":          "JO-500",
		"title":         "Mainboard batch",
		"total_devices": 1,
		"due_date":      time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create job order: %d %s", resp.StatusCode, body)
	}
	var orderResp struct {
		JobOrder struct {
			ID int64 `json:"id"`
		} `json:"job_order"`
	}
	client.decode(body, &orderResp)

	resp, body = client.do(http.MethodPost, fmt.Sprintf("/job-orders/%d/tasks/", orderResp.JobOrder.ID), "", map[string]any{
		"device_serial":         "SN-500",
		"operation_name":        "solder main board",
		"standard_time_seconds": 600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add task: %d %s", resp.StatusCode, body)
	}
	var taskResp struct {
		Task struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"task"`
	}
	client.decode(body, &taskResp)
	taskID := taskResp.Task.ID

	resp, body = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/start/", taskID), "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start task: %d %s", resp.StatusCode, body)
	}
	client.decode(body, &taskResp)
	if taskResp.Task.Status != "in_progress" {
		t.Fatalf("status = %q, want in_progress", taskResp.Task.Status)
	}

	resp, body = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/end/", taskID), "alice", map[string]any{
		"notes": "done in one pass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end task: %d %s", resp.StatusCode, body)
	}
	client.decode(body, &taskResp)
	if taskResp.Task.Status != "pending_qa" {
		t.Fatalf("status = %q, want pending_qa", taskResp.Task.Status)
	}

	resp, body = client.do(http.MethodPost, "/inspections/", "quinn", map[string]any{
		"task_id":  taskID,
		"decision": "accepted",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("inspection: %d %s", resp.StatusCode, body)
	}
	var reviewResp struct {
		Task struct {
			Status string `json:"status"`
		} `json:"task"`
		Review struct {
			ID int64 `json:"id"`
		} `json:"review"`
	}
	client.decode(body, &reviewResp)
	if reviewResp.Task.Status != "qa_approved" {
		t.Fatalf("status = %q, want qa_approved", reviewResp.Task.Status)
	}

	resp, body = client.do(http.MethodPost, "/tester-reviews/", "terry", map[string]any{
		"task_id":  taskID,
		"decision": "accepted",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("tester review: %d %s", resp.StatusCode, body)
	}

	// Supervisor addresses the task through the QA inspection id.
	resp, body = client.do(http.MethodPost, "/supervisor-reviews/", "sam", map[string]any{
		"inspection_id": reviewResp.Review.ID,
		"decision":      "accepted",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("supervisor review: %d %s", resp.StatusCode, body)
	}
	client.decode(body, &reviewResp)
	if reviewResp.Task.Status != "completed" {
		t.Fatalf("status = %q, want completed", reviewResp.Task.Status)
	}

	resp, body = client.do(http.MethodGet, fmt.Sprintf("/metrics/job-order/%d/", orderResp.JobOrder.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("job order metrics: %d %s", resp.StatusCode, body)
	}
	var orderMetrics struct {
		ProgressPercent float64 `json:"progress_percent"`
		TotalCompleted  int     `json:"total_completed"`
	}
	client.decode(body, &orderMetrics)
	if orderMetrics.ProgressPercent != 100 || orderMetrics.TotalCompleted != 1 {
		t.Fatalf("metrics = %+v, want 100%% with 1 completed", orderMetrics)
	}
}

func TestAPIServerErrorMapping(t *testing.T) {
	_, client := startDaemon(t)

	resp, body := client.do(http.MethodPost, "/job-orders", "", map[string]any{
		"code":          "JO-501",
		"title":         "Error cases",
		"total_devices": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create job order: %d %s", resp.StatusCode, body)
	}
	var orderResp struct {
		JobOrder struct {
			ID int64 `json:"id"`
		} `json:"job_order"`
	}
	client.decode(body, &orderResp)

	resp, body = client.do(http.MethodPost, fmt.Sprintf("/job-orders/%d/tasks/", orderResp.JobOrder.ID), "", map[string]any{
		"device_serial":         "SN-501",
		"standard_time_seconds": 600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add task: %d %s", resp.StatusCode, body)
	}
	var taskResp struct {
		Task struct {
			ID int64 `json:"id"`
		} `json:"task"`
	}
	client.decode(body, &taskResp)
	taskID := taskResp.Task.ID

	// Completing before claiming is an illegal transition.
	resp, _ = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/end/", taskID), "alice", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("premature end: %d, want 422", resp.StatusCode)
	}

	// Claiming without any identity is a validation error.
	resp, _ = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/start/", taskID), "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("anonymous start: %d, want 400", resp.StatusCode)
	}

	// Unknown tasks are 404.
	resp, _ = client.do(http.MethodPatch, "/tasks/9999/start/", "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task: %d, want 404", resp.StatusCode)
	}

	// Rejecting without comments is a validation error.
	resp, _ = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/start/", taskID), "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	resp, _ = client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/end/", taskID), "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: %d", resp.StatusCode)
	}
	resp, _ = client.do(http.MethodPost, "/inspections/", "quinn", map[string]any{
		"task_id":  taskID,
		"decision": "rejected",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bare rejection: %d, want 400", resp.StatusCode)
	}
}

func TestAPIServerReviewQueueAndDashboard(t *testing.T) {
	_, client := startDaemon(t)

	resp, body := client.do(http.MethodPost, "/job-orders", "", map[string]any{
		"code":          "JO-502",
		"title":         "Queue check",
		"total_devices": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create job order: %d %s", resp.StatusCode, body)
	}
	var orderResp struct {
		JobOrder struct {
			ID int64 `json:"id"`
		} `json:"job_order"`
	}
	client.decode(body, &orderResp)

	resp, body = client.do(http.MethodPost, fmt.Sprintf("/job-orders/%d/tasks/", orderResp.JobOrder.ID), "", map[string]any{
		"device_serial":         "SN-502",
		"standard_time_seconds": 600,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add task: %d %s", resp.StatusCode, body)
	}
	var taskResp struct {
		Task struct {
			ID int64 `json:"id"`
		} `json:"task"`
	}
	client.decode(body, &taskResp)

	client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/start/", taskResp.Task.ID), "alice", nil)
	client.do(http.MethodPatch, fmt.Sprintf("/tasks/%d/end/", taskResp.Task.ID), "alice", nil)

	resp, body = client.do(http.MethodGet, "/review-queue/?role=qa", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review queue: %d %s", resp.StatusCode, body)
	}
	var queue struct {
		Role  string `json:"role"`
		Items []struct {
			Priority string `json:"priority"`
		} `json:"items"`
	}
	client.decode(body, &queue)
	if queue.Role != "qa" || len(queue.Items) != 1 {
		t.Fatalf("queue = %+v, want one qa item", queue)
	}
	if queue.Items[0].Priority != "low" {
		t.Fatalf("priority = %q, want low for a fresh item", queue.Items[0].Priority)
	}

	resp, _ = client.do(http.MethodGet, "/review-queue/?role=accountant", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: %d, want 400", resp.StatusCode)
	}

	resp, body = client.do(http.MethodGet, "/metrics/dashboard/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: %d %s", resp.StatusCode, body)
	}
	var dashboard struct {
		StatusCounts map[string]int `json:"status_counts"`
	}
	client.decode(body, &dashboard)
	if dashboard.StatusCounts["pending_qa"] != 1 {
		t.Fatalf("pending_qa count = %d, want 1", dashboard.StatusCounts["pending_qa"])
	}

	resp, _ = client.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}

	resp, _ = client.do(http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prometheus metrics: %d", resp.StatusCode)
	}
}

func TestAPIServerBearerAuth(t *testing.T) {
	_, client := startDaemon(t, testsupport.WithAPIToken("sesame"))

	get := func(authorization string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, client.base+"/tasks", nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /tasks: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get(""); code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d, want 401", code)
	}
	if code := get("Bearer wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d, want 401", code)
	}
	if code := get("sesame"); code != http.StatusUnauthorized {
		t.Fatalf("bare token without scheme: %d, want 401", code)
	}
	if code := get("Bearer sesame"); code != http.StatusOK {
		t.Fatalf("valid token: %d, want 200", code)
	}

	// Health stays reachable for probes regardless of the token.
	resp, err := http.Get(client.base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz with auth enabled: %d, want 200", resp.StatusCode)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	t.Cleanup(first.Stop)

	cfg2 := *cfg
	cfg2.Paths.APIBind = "127.0.0.1:0"
	second, err := daemon.New(&cfg2, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New second: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second daemon should fail to acquire the lock")
	}
}
