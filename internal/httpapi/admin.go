package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skatamatic/blulok-cloud/internal/auth"
	"github.com/skatamatic/blulok-cloud/internal/denylist"
	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/httpserver"
	"github.com/skatamatic/blulok-cloud/internal/pruner"
	"github.com/skatamatic/blulok-cloud/internal/store"
)

// AdminHandler mounts the admin-facing denylist/route-pass audit reads and
// the on-demand prune trigger — the read-side surfaces spec.md treats as
// external (dashboard, audit UI) but that this core still needs to expose
// somewhere, grounded on pkg/escalation/handler.go's list endpoints.
type AdminHandler struct {
	logger    *slog.Logger
	denylist  *denylist.Store
	issuances *store.RoutePassStore
	pruner    *pruner.Pruner
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(logger *slog.Logger, denylistStore *denylist.Store, issuances *store.RoutePassStore, p *pruner.Pruner) *AdminHandler {
	return &AdminHandler{logger: logger, denylist: denylistStore, issuances: issuances, pruner: p}
}

// Routes returns a chi.Router with the admin routes mounted, all gated to
// FACILITY_ADMIN and above.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireMinRole(domain.RoleFacilityAdmin))
	r.Get("/denylist", h.handleListDenylist)
	r.Post("/denylist/prune", h.handlePrune)
	r.Get("/route-passes", h.handleListRoutePasses)
	return r
}

func (h *AdminHandler) handleListDenylist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	userID := q.Get("user_id")

	var (
		entries []domain.DenylistEntry
		err     error
	)
	switch {
	case deviceID != "":
		entries, err = h.denylist.FindByDevice(r.Context(), deviceID)
	case userID != "":
		entries, err = h.denylist.FindByUser(r.Context(), userID)
	default:
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "device_id or user_id is required")
		return
	}
	if err != nil {
		h.logger.Error("listing denylist entries", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list denylist entries")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *AdminHandler) handleListRoutePasses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var after *store.RoutePassCursor
	if params.After != nil {
		jti, err := uuid.Parse(params.After.ID.String())
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid cursor")
			return
		}
		after = &store.RoutePassCursor{IssuedAt: params.After.CreatedAt, JTI: jti}
	}

	issuances, err := h.issuances.ListForUser(r.Context(), userID, after, params.Limit+1)
	if err != nil {
		h.logger.Error("listing route pass issuances", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list route pass issuances")
		return
	}

	page := httpserver.NewCursorPage(issuances, params.Limit, func(i domain.RoutePassIssuance) httpserver.Cursor {
		jti, _ := uuid.Parse(i.JTI)
		return httpserver.Cursor{CreatedAt: i.IssuedAt, ID: jti}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *AdminHandler) handlePrune(w http.ResponseWriter, r *http.Request) {
	removed, err := h.pruner.Sweep(r.Context())
	if err != nil {
		h.logger.Error("on-demand prune", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to prune denylist")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"removed": removed})
}
