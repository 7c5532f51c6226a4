// Package httpapi mounts the HTTP operations this core exposes directly:
// Route Pass issuance, fallback token exchange, denylist/audit reads, and
// the on-demand prune trigger. Grounded on the teacher's
// pkg/escalation/handler.go Handler{logger, audit} + Routes() idiom.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skatamatic/blulok-cloud/internal/auth"
	"github.com/skatamatic/blulok-cloud/internal/fallback"
	"github.com/skatamatic/blulok-cloud/internal/httpserver"
	"github.com/skatamatic/blulok-cloud/internal/routepass"
	"github.com/skatamatic/blulok-cloud/internal/telemetry"
)

// IssueHandler mounts the Route Pass issuance and fallback exchange routes.
type IssueHandler struct {
	logger   *slog.Logger
	orch     *routepass.Orchestrator
	fallback *fallback.Verifier
}

// NewIssueHandler creates an IssueHandler.
func NewIssueHandler(logger *slog.Logger, orch *routepass.Orchestrator, fb *fallback.Verifier) *IssueHandler {
	return &IssueHandler{logger: logger, orch: orch, fallback: fb}
}

// Routes returns a chi.Router with the issuance routes mounted.
func (h *IssueHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/route-pass", h.handleIssue)
	r.Post("/route-pass/fallback", h.handleFallback)
	return r
}

// issueRequest is the body of POST /route-pass. AppDeviceID is optional.
type issueRequest struct {
	AppDeviceID string `json:"app_device_id" validate:"omitempty"`
}

type issueResponse struct {
	Token string `json:"token"`
}

func (h *IssueHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	token, err := h.orch.IssueForUser(r.Context(), routepass.Identity{
		UserID:      id.UserID,
		Role:        id.Role,
		FacilityIDs: id.FacilityIDs,
	}, req.AppDeviceID)
	if err != nil {
		h.respondIssueError(w, err)
		return
	}

	telemetry.RoutePassIssuedTotal.WithLabelValues("direct").Inc()
	httpserver.Respond(w, http.StatusOK, issueResponse{Token: token})
}

// fallbackRequest is the body of POST /route-pass/fallback.
type fallbackRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *IssueHandler) handleFallback(w http.ResponseWriter, r *http.Request) {
	var req fallbackRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, err := h.fallback.Verify(r.Context(), req.Token)
	if err != nil {
		h.respondFallbackError(w, err)
		return
	}

	telemetry.RoutePassIssuedTotal.WithLabelValues("fallback").Inc()
	httpserver.Respond(w, http.StatusOK, issueResponse{Token: token})
}

func (h *IssueHandler) respondIssueError(w http.ResponseWriter, err error) {
	var rpErr *routepass.Error
	if !errors.As(err, &rpErr) {
		h.logger.Error("issuing route pass", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to issue route pass")
		return
	}

	telemetry.RoutePassFailedTotal.WithLabelValues(string(rpErr.Kind)).Inc()

	switch rpErr.Kind {
	case routepass.KindInvalidDeviceHint:
		httpserver.RespondError(w, http.StatusUnprocessableEntity, string(rpErr.Kind), rpErr.Error())
	case routepass.KindNoRegisteredDevice:
		httpserver.RespondError(w, http.StatusConflict, string(rpErr.Kind), "no registered device found; re-enroll a device before requesting a route pass")
	default:
		h.logger.Error("issuing route pass", "error", err)
		httpserver.RespondError(w, http.StatusServiceUnavailable, string(rpErr.Kind), "route pass issuance temporarily unavailable")
	}
}

func (h *IssueHandler) respondFallbackError(w http.ResponseWriter, err error) {
	var fbErr *fallback.Error
	if !errors.As(err, &fbErr) {
		h.respondIssueError(w, err)
		return
	}

	telemetry.RoutePassFailedTotal.WithLabelValues(string(fbErr.Kind)).Inc()
	httpserver.RespondError(w, http.StatusUnauthorized, string(fbErr.Kind), fbErr.Error())
}
