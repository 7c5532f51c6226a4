package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skatamatic/blulok-cloud/internal/httpserver"
	"github.com/skatamatic/blulok-cloud/internal/timesync"
)

// TimeSyncHandler mounts the per-lock secure-time startup endpoint (spec.md
// §4.2's "per-lock startup" entry point). Unauthenticated: a lock booting up
// has no user identity, only its own device key, so this sits on the public
// router alongside /healthz rather than under auth.RequireAuth.
type TimeSyncHandler struct {
	logger  *slog.Logger
	builder *timesync.Builder
}

// NewTimeSyncHandler creates a TimeSyncHandler.
func NewTimeSyncHandler(logger *slog.Logger, builder *timesync.Builder) *TimeSyncHandler {
	return &TimeSyncHandler{logger: logger, builder: builder}
}

// Routes returns a chi.Router with the time-sync route mounted.
func (h *TimeSyncHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/time-sync", h.handleLockSync)
	return r
}

func (h *TimeSyncHandler) handleLockSync(w http.ResponseWriter, r *http.Request) {
	lockID := r.URL.Query().Get("lock_id")
	if lockID == "" {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "lock_id is required")
		return
	}

	token, err := h.builder.ForLock(lockID)
	if err != nil {
		h.logger.Error("signing lock time-sync packet", "lock_id", lockID, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to sign time-sync packet")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"token": token})
}
