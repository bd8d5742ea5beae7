/*
handlers.go - HTTP API handlers for the leave service

PURPOSE:
  Exposes the leave workflow via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to leave.Workflow / leave.QueryService.

ENDPOINTS:
  Any authenticated user:
    POST   /api/leaves/apply          Apply for leave
    GET    /api/leaves/my-leaves      Own requests, newest first
    GET    /api/leaves/balance        Own balance (created on first access)

  Admin:
    GET    /api/leaves/all            Every request, newest first
    GET    /api/leaves/stats          Counts and balance rollup
    PATCH  /api/leaves/{id}/status    Approve or reject a pending request

  Public:
    GET    /api/leaves/health         Liveness and route list
    GET    /healthz, /readyz          Process probes

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Workflow: apply / update status
  - Query:    listings, balance, stats
  - Store:    readiness ping only

ERROR HANDLING:
  Errors are returned as JSON {error, code, details} with the status of
  their leave.Kind:
  - 400: invalid_input (malformed body, bad dates, unknown type)
  - 401: unauthenticated, 403: not an admin
  - 404: not_found
  - 409: invalid_state (request already decided)
  - 422: insufficient_balance
  - 500: internal (logged, opaque message)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Workflow *leave.Workflow
	Query    *leave.QueryService
	Store    Pinger

	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(wf *leave.Workflow, q *leave.QueryService, store Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Workflow: wf,
		Query:    q,
		Store:    store,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// ApplyLeave creates a pending request for the caller.
// POST /api/leaves/apply
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		h.deny(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated)
		return
	}

	var req ApplyLeaveRequest
	fields, err := h.decodeAndValidate(r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, leave.KindInvalidInput, err.Error(), nil)
		return
	}
	if fields != nil {
		writeError(w, http.StatusBadRequest, leave.KindInvalidInput, "missing or invalid fields", fields)
		return
	}

	created, err := h.Workflow.Apply(r.Context(), actor.ID(), leave.ApplyInput{
		LeaveType: req.LeaveType,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(*created))
}

// MyLeaves lists the caller's requests.
// GET /api/leaves/my-leaves
func (h *Handler) MyLeaves(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		h.deny(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated)
		return
	}

	reqs, err := h.Query.ForUser(r.Context(), actor.ID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// MyBalance returns the caller's balance.
// GET /api/leaves/balance
func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		h.deny(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated)
		return
	}

	bal, err := h.Query.BalanceOf(r.Context(), actor.ID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveBalanceDTO(*bal, true))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// AllLeaves lists every request.
// GET /api/leaves/all
func (h *Handler) AllLeaves(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Query.All(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(reqs))
}

// Stats returns request counts and the balance rollup.
// GET /api/leaves/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Query.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveStatsDTO(*st))
}

// UpdateStatus approves or rejects a pending request.
// PATCH /api/leaves/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, leave.KindInvalidInput, "invalid leave request id", nil)
		return
	}

	var req UpdateStatusRequest
	fields, err := h.decodeAndValidate(r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, leave.KindInvalidInput, err.Error(), nil)
		return
	}
	if fields != nil {
		writeError(w, http.StatusBadRequest, leave.KindInvalidInput, "missing or invalid fields", fields)
		return
	}

	updated, err := h.Workflow.UpdateStatus(r.Context(), id, leave.Status(req.Status), req.AdminComments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*updated))
}

// =============================================================================
// HEALTH
// =============================================================================

var leaveRoutes = []string{
	"/apply (POST)",
	"/balance (GET)",
	"/my-leaves (GET)",
	"/all (GET)",
	"/stats (GET)",
	"/{id}/status (PATCH)",
	"/health (GET)",
}

// Health reports liveness and the available routes.
// GET /api/leaves/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{
		Status:    "healthy",
		Service:   "leave-service",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Routes:    leaveRoutes,
	})
}

// Live always answers ok while the process is serving.
// GET /healthz
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready pings the store.
// GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, leave.KindInternal, "store unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps an error kind to its HTTP status.
func statusFor(kind leave.Kind) int {
	switch kind {
	case leave.KindInvalidInput:
		return http.StatusBadRequest
	case leave.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case leave.KindNotFound:
		return http.StatusNotFound
	case leave.KindInvalidState:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with the status of its kind. Internal errors are logged
// and answered without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := leave.KindOf(err)
	if kind == leave.KindInternal {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, kind, "internal server error", nil)
		return
	}

	var details any
	var ve *leave.ValidationError
	if errors.As(err, &ve) {
		details = []FieldErrorDTO{{Field: ve.Field, Message: ve.Message}}
	}
	var ib *leave.InsufficientBalanceError
	if errors.As(err, &ib) {
		details = map[string]any{
			"leaveType": ib.Type,
			"available": ib.Available,
			"requested": ib.Requested,
		}
	}
	writeError(w, statusFor(kind), kind, err.Error(), details)
}

// deny answers authentication and authorisation failures.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request, status int, err error) {
	code := "unauthenticated"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	h.logger.Debug("request denied", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, ErrorResponse{Error: publicDenyMessage(err), Code: code})
}

func publicDenyMessage(err error) string {
	if errors.Is(err, auth.ErrForbidden) {
		return auth.ErrForbidden.Error()
	}
	return auth.ErrUnauthenticated.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind leave.Kind, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(kind), Details: details})
}
