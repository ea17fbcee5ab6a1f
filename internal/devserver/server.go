package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
)

// Options configures a dev server.
type Options struct {
	Addr      string
	Users     []User
	Scheduler *scheduler.Config
	// RunDelay is how long each simulated rerun takes.
	RunDelay time.Duration
	// Seed creates a sample plan on startup.
	Seed   bool
	Logger *slog.Logger
}

// Server provides the backend HTTP API and live channel.
type Server struct {
	service *Service
	hub     *Hub
	sched   *scheduler.Scheduler
	addr    string
	server  *http.Server
	logger  *slog.Logger

	schedOnce sync.Once
	stopOnce  sync.Once
}

// NewServer wires a service, live hub and simulated scheduler together.
func NewServer(opts Options) *Server {
	logger := logging.OrDiscard(opts.Logger)
	hub := NewHub(nil, logger)
	svc := NewService(opts.Users, hub, logger)
	hub.SetAuth(svc)

	if opts.Seed {
		svc.SeedDemo()
	}

	return &Server{
		service: svc,
		hub:     hub,
		sched:   scheduler.New(svc, SimulatedRunner{Delay: opts.RunDelay}, opts.Scheduler, logger),
		addr:    opts.Addr,
		logger:  logger,
	}
}

// Service exposes the in-memory state, mainly for tests.
func (s *Server) Service() *Service { return s.service }

// Hub exposes the live hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/plans", s.authenticated(s.handlePlans))
	mux.HandleFunc("/api/plans/", s.authenticated(s.handlePlanByID))
	mux.HandleFunc("/api/tasks/", s.authenticated(s.handleTaskByID))
	mux.HandleFunc("/api/oozie/job/", s.authenticated(s.handleJobInfo))
	mux.Handle("/ws", s.hub)

	return mux
}

// StartScheduler begins simulating task execution. It is idempotent.
func (s *Server) StartScheduler() {
	s.schedOnce.Do(s.sched.Start)
}

// Start runs the scheduler and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.StartScheduler()

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting dev server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the scheduler, disconnects live subscribers and gracefully
// shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.hub.Close()
		s.sched.Stop()
		if s.server != nil {
			err = s.server.Shutdown(ctx)
		}
	})
	return err
}

// --- middleware ---

func (s *Server) authenticated(next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		u, err := s.service.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, u)
	}
}

func requireAdmin(w http.ResponseWriter, u User) bool {
	if !u.Role.CanMutate() {
		writeError(w, http.StatusForbidden, ErrInsufficientPermissions.Error())
		return false
	}
	return true
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{OK: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}
	resp, err := s.service.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlans handles GET /api/plans and POST /api/plans
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request, u User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.ListPlans())
	case http.MethodPost:
		if !requireAdmin(w, u) {
			return
		}
		var req api.CreatePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid json")
			return
		}
		plan, err := s.service.CreatePlan(req, u.Username)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// handlePlanByID handles /api/plans/{id} and /api/plans/{id}/{action}
func (s *Server) handlePlanByID(w http.ResponseWriter, r *http.Request, u User) {
	id, action, ok := splitIDPath(r.URL.Path, "/api/plans/")
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		detail, err := s.service.GetPlan(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case action != "" && r.Method == http.MethodPost:
		if !models.PlanAction(action).Valid() {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		if !requireAdmin(w, u) {
			return
		}
		resp, err := s.service.PlanAction(id, models.PlanAction(action))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

// handleTaskByID handles /api/tasks/{id}/{action}
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request, u User) {
	id, action, ok := splitIDPath(r.URL.Path, "/api/tasks/")
	if !ok || !models.TaskAction(action).Valid() {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	if !requireAdmin(w, u) {
		return
	}
	resp, err := s.service.TaskAction(id, models.TaskAction(action))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleJobInfo handles GET /api/oozie/job/{jobId}?plan_id={id}
func (s *Server) handleJobInfo(w http.ResponseWriter, r *http.Request, _ User) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/api/oozie/job/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	planID, err := strconv.ParseInt(r.URL.Query().Get("plan_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "plan_id must be an integer")
		return
	}
	info, err := s.service.JobInfo(planID, jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

// splitIDPath parses "{prefix}{id}" or "{prefix}{id}/{action}".
func splitIDPath(path, prefix string) (int64, string, bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action, true
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, ErrPlanNotFound), errors.Is(err, ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoTargetAddress), errors.Is(err, ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
