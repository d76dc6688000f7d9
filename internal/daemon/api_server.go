package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"joddb/internal/api"
	"joddb/internal/config"
	"joddb/internal/engine"
	"joddb/internal/logging"
	"joddb/internal/pipeline"
	"joddb/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	route := func(pattern string, handler http.HandlerFunc) (string, http.HandlerFunc) {
		return pattern, authMiddleware(token, srv.withRequestContext(handler))
	}

	mux := http.NewServeMux()
	mux.HandleFunc(route("/tasks", srv.handleTasks))
	mux.HandleFunc(route("/tasks/", srv.handleTaskAction))
	mux.HandleFunc(route("/inspections/", srv.handleInspections))
	mux.HandleFunc(route("/tester-reviews/", srv.handleTesterReviews))
	mux.HandleFunc(route("/supervisor-reviews/", srv.handleSupervisorReviews))
	mux.HandleFunc(route("/review-queue/", srv.handleReviewQueue))
	mux.HandleFunc(route("/metrics/job-order/", srv.handleJobOrderMetrics))
	mux.HandleFunc(route("/metrics/technician/", srv.handleTechnicianMetrics))
	mux.HandleFunc(route("/metrics/dashboard/", srv.handleDashboard))
	mux.HandleFunc(route("/job-orders", srv.handleJobOrders))
	mux.HandleFunc(route("/job-orders/", srv.handleJobOrderTasks))
	mux.HandleFunc(route("/reports", srv.handleReports))
	mux.HandleFunc(route("/reports/", srv.handleReports))
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.Handle("/metrics", d.metrics.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestContext tags every request with a correlation ID and the
// caller's declared identity from the X-Actor header.
func (s *apiServer) withRequestContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
			ctx = services.WithActor(ctx, actor)
		}
		next(w, r.WithContext(ctx))
	}
}

// actor resolves the caller identity: an explicit body field wins, then the
// X-Actor header.
func actor(r *http.Request, explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if actor, ok := services.ActorFromContext(r.Context()); ok {
		return actor
	}
	return ""
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tasks, err := s.daemon.taskSvc.List(r.Context(), r.URL.Query()["status"]...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: tasks})
}

// handleTaskAction dispatches /tasks/{id}/ and its lifecycle subroutes.
func (s *apiServer) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/")
	if rest == "" {
		s.handleTasks(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) > 2 {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.describeTask(w, r, id)
		return
	}

	switch parts[1] {
	case "start":
		s.startTask(w, r, id)
	case "end":
		s.endTask(w, r, id)
	case "resume":
		s.resumeTask(w, r, id)
	case "close":
		s.closeTask(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown task action")
	}
}

func (s *apiServer) describeTask(w http.ResponseWriter, r *http.Request, id int64) {
	task, history, err := s.daemon.taskSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Task    api.Task     `json:"task"`
		Reviews []api.Review `json:"reviews"`
	}{Task: *task, Reviews: history})
}

func (s *apiServer) startTask(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPatch {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Technician string `json:"technician"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	task, err := s.daemon.taskSvc.Start(r.Context(), id, actor(r, body.Technician))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: task})
}

func (s *apiServer) endTask(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPatch {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Technician string `json:"technician"`
		Notes      string `json:"notes"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	task, err := s.daemon.taskSvc.End(r.Context(), id, actor(r, body.Technician), body.Notes)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: task})
}

func (s *apiServer) resumeTask(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.daemon.taskSvc.Resume(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: task})
}

func (s *apiServer) closeTask(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	task, err := s.daemon.taskSvc.Close(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: task})
}

type reviewBody struct {
	TaskID       int64  `json:"task_id"`
	InspectionID *int64 `json:"inspection_id"`
	Decision     string `json:"decision"`
	Comments     string `json:"comments"`
	Actor        string `json:"actor"`
}

func (s *apiServer) handleInspections(w http.ResponseWriter, r *http.Request) {
	s.recordDecision(w, r, pipeline.StageQA)
}

func (s *apiServer) handleTesterReviews(w http.ResponseWriter, r *http.Request) {
	s.recordDecision(w, r, pipeline.StageTester)
}

func (s *apiServer) handleSupervisorReviews(w http.ResponseWriter, r *http.Request) {
	s.recordDecision(w, r, pipeline.StageSupervisor)
}

func (s *apiServer) recordDecision(w http.ResponseWriter, r *http.Request, stage pipeline.Stage) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body reviewBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	taskID := body.TaskID
	if taskID == 0 && body.InspectionID != nil {
		// Supervisor and tester verdicts may address the task through the
		// QA inspection they confirm.
		inspection, err := s.daemon.store.GetReview(r.Context(), *body.InspectionID)
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "ledger read failed")
			return
		}
		if inspection == nil {
			s.writeError(w, http.StatusNotFound, "inspection not found")
			return
		}
		taskID = inspection.TaskID
	}
	if taskID == 0 {
		s.writeError(w, http.StatusBadRequest, "task_id or inspection_id is required")
		return
	}

	decision, ok := pipeline.ParseDecision(body.Decision)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown decision %q", body.Decision))
		return
	}

	resp, err := s.daemon.taskSvc.Decide(r.Context(), engine.DecisionRequest{
		TaskID:       taskID,
		Stage:        stage,
		Decision:     decision,
		Comments:     body.Comments,
		Actor:        actor(r, body.Actor),
		InspectionID: body.InspectionID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *apiServer) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.daemon.metricsSvc.ReviewQueue(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJobOrderMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.trailingID(w, r.URL.Path, "/metrics/job-order/")
	if !ok {
		return
	}
	resp, err := s.daemon.metricsSvc.JobOrder(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTechnicianMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	technician := strings.Trim(strings.TrimPrefix(r.URL.Path, "/metrics/technician/"), "/")
	resp, err := s.daemon.metricsSvc.Technician(r.Context(), technician, r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.daemon.metricsSvc.Dashboard(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJobOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.daemon.taskSvc.ListJobOrders(r.Context(), r.URL.Query()["status"]...)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobOrderListResponse{JobOrders: orders})
	case http.MethodPost:
		var body struct {
			Code         string `json:"code"`
			Title        string `json:"title"`
			TotalDevices int    `json:"total_devices"`
			DueDate      string `json:"due_date"`
		}
		if !s.decodeBody(w, r, &body) {
			return
		}
		dueDate, err := parseDueDate(body.DueDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		order, err := s.daemon.taskSvc.CreateJobOrder(r.Context(), body.Code, body.Title, body.TotalDevices, dueDate)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.JobOrderResponse{JobOrder: order})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobOrderTasks serves POST /job-orders/{id}/tasks/.
func (s *apiServer) handleJobOrderTasks(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/job-orders/"), "/")
	if rest == "" {
		s.handleJobOrders(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "tasks" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job order id")
		return
	}

	var body struct {
		DeviceSerial        string `json:"device_serial"`
		OperationName       string `json:"operation_name"`
		StandardTimeSeconds int64  `json:"standard_time_seconds"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	task, err := s.daemon.taskSvc.AddTask(r.Context(), id, body.DeviceSerial, body.OperationName, body.StandardTimeSeconds)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.TaskResponse{Task: task})
}

func (s *apiServer) handleReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobOrderID, err := strconv.ParseInt(r.URL.Query().Get("job_order"), 10, 64)
		if err != nil || jobOrderID <= 0 {
			s.writeError(w, http.StatusBadRequest, "job_order query parameter is required")
			return
		}
		reports, err := s.daemon.taskSvc.ListReports(r.Context(), jobOrderID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.ReportListResponse{Reports: reports})
	case http.MethodPost:
		var body struct {
			TaskID   int64  `json:"task_id"`
			Author   string `json:"author"`
			Role     string `json:"role"`
			Content  string `json:"content"`
			Quantity int    `json:"quantity"`
		}
		if !s.decodeBody(w, r, &body) {
			return
		}
		report, err := s.daemon.taskSvc.CreateReport(r.Context(), body.TaskID, actor(r, body.Author), body.Role, body.Content, body.Quantity)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.ReportResponse{Report: report})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, struct {
		Status string                 `json:"status"`
		PID    int                    `json:"pid"`
		Tasks  pipeline.HealthSummary `json:"tasks"`
	}{Status: "ok", PID: status.PID, Tasks: status.Health})
}

func (s *apiServer) trailingID(w http.ResponseWriter, path, prefix string) (int64, bool) {
	raw := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if raw == "" || strings.Contains(raw, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseDueDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due_date %q", raw)
}

// writeServiceError maps a classified error onto its HTTP status. The error
// text already carries the current state and the requested transition.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, services.HTTPStatus(err), err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
