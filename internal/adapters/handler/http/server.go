package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"agenthud.router/internal/core/domain"
	"agenthud.router/internal/core/logger"
	"agenthud.router/internal/core/ports"
	"agenthud.router/internal/core/services"
)

// Audit sources, also used as the metrics "source" label.
const (
	auditSourceHTTP = "http"
	auditSourceWS   = "ws"
)

const codeRateLimited = "RATE_LIMITED"

// Options configures the optional parts of the server.
type Options struct {
	Token         string
	RateLimit     float64 // action requests per second, <= 0 disables
	RateBurst     int
	EnableMetrics bool

	// Auditor receives one entry per action attempt.
	Auditor ports.ActionAuditor
	// History backs GET /api/actions. The route is absent when nil.
	History ports.ActionLogRepository
}

type Server struct {
	router     *chi.Mux
	registry   *services.Registry
	gateway    *services.Gateway
	healthSvc  *services.HealthService
	hub        *Hub
	auth       *TokenAuth
	limiter    *rate.Limiter
	auditor    ports.ActionAuditor
	history    ports.ActionLogRepository
	metrics    bool
	httpServer *http.Server
}

func NewServer(registry *services.Registry, gateway *services.Gateway, healthSvc *services.HealthService, hub *Hub, opts Options) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		registry:  registry,
		gateway:   gateway,
		healthSvc: healthSvc,
		hub:       hub,
		auth:      NewTokenAuth(opts.Token),
		auditor:   opts.Auditor,
		history:   opts.History,
		metrics:   opts.EnableMetrics,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	hub.SetActionHandler(func(ctx context.Context, req domain.ActionRequest, source string) domain.ActionResponse {
		resp, _ := s.dispatchAction(ctx, req, source)
		return resp
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestContext)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics {
		s.router.Use(MetricsMiddleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", TokenHeader},
		MaxAge:         300,
	}))

	if s.metrics {
		s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			MetricsHandler().ServeHTTP(w, r)
		})
	}

	s.router.Get("/health", s.handleHealth)
	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/health/detailed", s.handleDetailedHealth)

	// The websocket checks its token after the upgrade so it can answer
	// with a close code.
	s.router.Get("/ws", s.handleWS)

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/action", s.handleAction)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleUpsertAgent)
			r.Get("/{id}", s.handleGetAgent)
		})

		if s.history != nil {
			r.Get("/api/actions", s.handleActionHistory)
		}
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until Shutdown is called.
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and disconnects every subscriber.
// Hijacked websocket connections are not covered by http.Server.Shutdown,
// so the hub is closed explicitly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// dispatchAction is shared by POST /action and agent_action frames. It
// returns the response body and the HTTP status to use.
func (s *Server) dispatchAction(ctx context.Context, req domain.ActionRequest, source string) (domain.ActionResponse, int) {
	if s.limiter != nil && !s.limiter.Allow() {
		RecordAction(actionLabel(req.Action), source, codeRateLimited)
		logger.WarnContext(ctx, "Action rate limited", "agent_id", req.AgentID, "action", req.Action, "source", source)
		return domain.ActionResponse{Success: false, Error: codeRateLimited}, http.StatusTooManyRequests
	}

	result, err := s.gateway.HandleRequest(ctx, req)

	entry := domain.ActionLog{
		ID:         uuid.NewString(),
		AgentID:    req.AgentID,
		Action:     req.Action,
		FromStatus: result.PreviousStatus,
		ToStatus:   result.NewStatus,
		Success:    err == nil,
		Payload:    string(req.Payload),
		Source:     source,
	}

	var (
		resp   domain.ActionResponse
		status = http.StatusOK
	)
	if err != nil {
		resp = domain.NewActionFailure(err)
		entry.Error = resp.Error
		if errors.Is(err, domain.ErrMissingFields) {
			status = http.StatusBadRequest
		}
		RecordAction(actionLabel(req.Action), source, resultLabel(err))
	} else {
		resp = result.Response()
		RecordAction(actionLabel(req.Action), source, "ok")
	}

	if s.auditor != nil && req.AgentID != "" {
		s.auditor.Log(entry)
	}
	return resp, status
}

// actionLabel keeps arbitrary client strings out of metric labels.
func actionLabel(action string) string {
	if domain.Action(action).Valid() {
		return action
	}
	return "unknown"
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownAgent):
		return domain.CodeInvalidAgent
	case errors.Is(err, domain.ErrMissingFields):
		return "MISSING_FIELDS"
	case domain.IsUnknownAction(err), domain.IsIllegalAction(err):
		return domain.CodeInvalidAction
	default:
		return "error"
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.DebugContext(r.Context(), "Invalid action body", "error", err)
		writeJSON(w, http.StatusBadRequest, domain.NewActionFailure(domain.ErrMissingFields))
		return
	}

	resp, status := s.dispatchAction(r.Context(), req, auditSourceHTTP)
	writeJSON(w, status, resp)
}

// UpsertResponse is the body of POST /agents.
type UpsertResponse struct {
	Success bool                `json:"success"`
	Agent   *domain.AgentRecord `json:"agent,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (s *Server) handleUpsertAgent(w http.ResponseWriter, r *http.Request) {
	var record domain.AgentRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, UpsertResponse{Error: "Invalid JSON"})
		return
	}

	agent, err := s.registry.Upsert(r.Context(), record.Agent())
	if err != nil {
		logger.WarnContext(r.Context(), "Rejected agent record", "agent_id", record.AgentID, "error", err)
		writeJSON(w, http.StatusBadRequest, UpsertResponse{Error: domain.ErrorCode(err)})
		return
	}

	out := domain.NewAgentRecord(agent)
	writeJSON(w, http.StatusOK, UpsertResponse{Success: true, Agent: &out})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.NewSnapshot(s.registry.List(), time.Now()))
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agent, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, domain.NewActionFailure(domain.ErrUnknownAgent))
		return
	}
	writeJSON(w, http.StatusOK, domain.NewAgentRecord(agent))
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 500 {
			limit = val
		}
	}
	agentID := r.URL.Query().Get("agent_id")

	entries, err := s.history.ListRecent(r.Context(), agentID, limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list actions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list actions"})
		return
	}
	if entries == nil {
		entries = []domain.ActionLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthSvc.Liveness())
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, s.auth, w, r)
}

// requestContext copies chi's request id into the logger context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}
