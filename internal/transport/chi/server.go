package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/audit"
	"github.com/caldera-sec/logsift/internal/auth"
	"github.com/caldera-sec/logsift/internal/domain"
	alertinguc "github.com/caldera-sec/logsift/internal/usecase/alerting"
	chatuc "github.com/caldera-sec/logsift/internal/usecase/chat"
	healthuc "github.com/caldera-sec/logsift/internal/usecase/health"
	remediationuc "github.com/caldera-sec/logsift/internal/usecase/remediation"
	statsuc "github.com/caldera-sec/logsift/internal/usecase/stats"
	triageuc "github.com/caldera-sec/logsift/internal/usecase/triage"
)

// Error response codes.
const (
	codeBadRequest      = "bad_request"
	codeUnauthorized    = "unauthorized"
	codeForbidden       = "forbidden"
	codeNotFound        = "not_found"
	codeRateLimited     = "rate_limited"
	codeIndexNotAllowed = "index_not_allowed"
	codeBackendError    = "backend_unavailable"
	codeGeneratorError  = "generator_failed"
	codeInternalError   = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// SchemaProvider resolves the flattened field schema for an index.
type SchemaProvider interface {
	Get(ctx context.Context, index string) (domain.Schema, error)
}

// Server is the HTTP API surface.
type Server struct {
	chat          *chatuc.Service
	stats         *statsuc.Service
	triage        *triageuc.Service
	alerts        *alertinguc.Service
	health        *healthuc.Service
	remediate     *remediationuc.Service
	ledger        *audit.Ledger
	schemas       SchemaProvider
	tokens        *auth.TokenIssuer
	users         *auth.UserStore
	exportKey     []byte
	defaultIndex  string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	stats *statsuc.Service,
	triage *triageuc.Service,
	alerts *alertinguc.Service,
	health *healthuc.Service,
	remediate *remediationuc.Service,
	ledger *audit.Ledger,
	schemas SchemaProvider,
	tokens *auth.TokenIssuer,
	users *auth.UserStore,
	exportKey []byte,
	defaultIndex string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:         chat,
		stats:        stats,
		triage:       triage,
		alerts:       alerts,
		health:       health,
		remediate:    remediate,
		ledger:       ledger,
		schemas:      schemas,
		tokens:       tokens,
		users:        users,
		exportKey:    exportKey,
		defaultIndex: defaultIndex,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrTokenRevoked, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrIndexNotAllowed, http.StatusForbidden, codeIndexNotAllowed),
		sentinelHandler(domain.ErrQueryRejected, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrGeneratorFailed, http.StatusBadGateway, codeGeneratorError),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, codeBackendError),
	}
	return s
}

// Routes registers all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.Login)
		r.Post("/refresh", s.Refresh)
		r.Post("/logout", s.Logout)

		r.Post("/chat", s.Chat)
		r.Post("/builder", s.Builder)
		r.Post("/preflight", s.Preflight)
		r.Get("/schema", s.Schema)
		r.Get("/stats", s.Stats)
		r.Get("/triage", s.Triage)
		r.Get("/triage/coverage", s.TriageCoverage)
		r.Post("/remediate", s.Remediate)

		r.Get("/audit", s.AuditList)
		r.Get("/audit/export", s.AuditExport)
		r.Post("/audit/prune", s.AuditPrune)

		r.Get("/saved", s.SavedList)
		r.Post("/saved", s.SavedCreate)
		r.Delete("/saved/{id}", s.SavedDelete)
		r.Post("/saved/{id}/run", s.SavedRun)

		r.Get("/alerts", s.AlertList)
		r.Post("/alerts", s.AlertCreate)
		r.Delete("/alerts/{id}", s.AlertDelete)
		r.Post("/alerts/{id}/evaluate", s.AlertEvaluate)
		r.Get("/alerts/recent", s.AlertsRecent)
	})
}

// Chat handles POST /api/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
		Index  string `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "prompt is required")
		return
	}

	session := sessionFrom(r)
	answer, err := s.chat.Ask(r.Context(), session.User, session.Role, req.Index, req.Prompt)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// Preflight handles POST /api/preflight. Validates a query without running it.
func (s *Server) Preflight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query json.RawMessage `json:"query"`
		Index string          `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Query) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query is required")
		return
	}

	session := sessionFrom(r)
	verdict, err := s.chat.Preflight(r.Context(), session.Role, req.Index, req.Query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

// Schema handles GET /api/schema.
func (s *Server) Schema(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = s.defaultIndex
	}

	schema, err := s.schemas.Get(r.Context(), index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	fields := make(map[string]string, len(schema.Types))
	for field, t := range schema.Types {
		fields[field] = string(t)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"index":  schema.Index,
		"fields": fields,
	})
}

// Stats handles GET /api/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = s.defaultIndex
	}

	dashboard, err := s.stats.Dashboard(r.Context(), index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Triage handles GET /api/triage.
func (s *Server) Triage(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = s.defaultIndex
	}

	report, err := s.triage.Run(r.Context(), index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// TriageCoverage handles GET /api/triage/coverage.
func (s *Server) TriageCoverage(w http.ResponseWriter, r *http.Request) {
	index := r.URL.Query().Get("index")
	if index == "" {
		index = s.defaultIndex
	}

	coverage, err := s.triage.Coverage(r.Context(), index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, coverage)
}

// Remediate handles POST /api/remediate. Forwards the action to the
// configured SOAR webhook and acknowledges the trigger.
func (s *Server) Remediate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "action is required")
		return
	}

	session := sessionFrom(r)
	receipt := s.remediate.Trigger(r.Context(), req.Action, session.User)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Remediation action '" + req.Action + "' has been triggered.",
		"details": receipt,
	})
}

// AuditList handles GET /api/audit.
func (s *Server) AuditList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	records, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// AuditExport handles GET /api/audit/export. Admin only.
func (s *Server) AuditExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	export, err := s.ledger.ExportSigned(r.Context(), s.exportKey)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, export)
}

// AuditPrune handles POST /api/audit/prune. Admin only.
func (s *Server) AuditPrune(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var req struct {
		MaxDays int `json:"max_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.MaxDays <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "max_days must be positive")
		return
	}

	pruned, err := s.ledger.Prune(r.Context(), req.MaxDays)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"pruned": pruned})
}

// SavedList handles GET /api/saved.
func (s *Server) SavedList(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	limit := queryInt(r, "limit", 100)

	searches, err := s.ledger.ListSavedSearches(r.Context(), session.User, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"searches": searches})
}

// SavedCreate handles POST /api/saved.
func (s *Server) SavedCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string          `json:"name"`
		Index string          `json:"index"`
		Query json.RawMessage `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || len(req.Query) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "name and query are required")
		return
	}
	if req.Index == "" {
		req.Index = s.defaultIndex
	}

	session := sessionFrom(r)
	saved, err := s.ledger.SaveSearch(r.Context(), req.Name, session.User, req.Index, string(req.Query))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// SavedDelete handles DELETE /api/saved/{id}.
func (s *Server) SavedDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid id")
		return
	}

	session := sessionFrom(r)
	if err := s.ledger.DeleteSavedSearch(r.Context(), id, session.User); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SavedRun handles POST /api/saved/{id}/run. Replays a saved search through
// validation and the gateway like any fresh query.
func (s *Server) SavedRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid id")
		return
	}

	saved, err := s.ledger.GetSavedSearch(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	session := sessionFrom(r)
	answer, err := s.chat.Run(r.Context(), session.User, session.Role, saved.Index, json.RawMessage(saved.QueryJSON))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// AlertList handles GET /api/alerts.
func (s *Server) AlertList(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	limit := queryInt(r, "limit", 100)

	alerts, err := s.ledger.ListAlerts(r.Context(), session.User, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// AlertCreate handles POST /api/alerts.
func (s *Server) AlertCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Index      string `json:"index"`
		Threshold  int    `json:"threshold"`
		TimeWindow string `json:"time_window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Threshold <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "name and a positive threshold are required")
		return
	}
	if req.Index == "" {
		req.Index = s.defaultIndex
	}

	session := sessionFrom(r)
	alert, err := s.ledger.AddAlert(r.Context(), req.Name, session.User, req.Index, req.Threshold, req.TimeWindow)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, alert)
}

// AlertDelete handles DELETE /api/alerts/{id}.
func (s *Server) AlertDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid id")
		return
	}

	session := sessionFrom(r)
	if err := s.ledger.DeleteAlert(r.Context(), id, session.User); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AlertEvaluate handles POST /api/alerts/{id}/evaluate. Compares the
// caller's current hit count against the threshold.
func (s *Server) AlertEvaluate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid id")
		return
	}

	var req struct {
		Hits int `json:"hits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	fired, err := s.alerts.Evaluate(r.Context(), id, req.Hits)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"triggered": fired})
}

// AlertsRecent handles GET /api/alerts/recent.
func (s *Server) AlertsRecent(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid window")
			return
		}
		window = parsed
	}

	alerts, err := s.alerts.Recent(r.Context(), window)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrIndexNotAllowed,
		domain.ErrQueryRejected,
		domain.ErrBackendUnavailable,
		domain.ErrRateLimited,
		domain.ErrUnauthorized,
		domain.ErrTokenRevoked,
		domain.ErrGeneratorFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
