package auth

import (
	"net/http"
	"strings"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// Header names the development-mode identity is read from. The real HTTP
// routing surface and role middleware are an external collaborator (spec.md
// §1); this stands in for it so the core's handlers have something to read
// a caller identity from.
const (
	headerUserID      = "X-User-Id"
	headerRole        = "X-User-Role"
	headerFacilityIDs = "X-Facility-Ids"
)

// Middleware extracts an Identity from development headers and stores it in
// the request context. A production deployment replaces this with its own
// OIDC/session middleware populating the same Identity shape.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		role := r.Header.Get(headerRole)
		if userID == "" || role == "" {
			respondErr(w, http.StatusUnauthorized, "unauthorized", "missing identity headers")
			return
		}

		var facilityIDs []string
		if raw := r.Header.Get(headerFacilityIDs); raw != "" {
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					facilityIDs = append(facilityIDs, id)
				}
			}
		}

		identity := &Identity{
			UserID:      userID,
			Role:        domain.Role(role),
			FacilityIDs: facilityIDs,
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), identity)))
	})
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errStr + `","message":"` + message + `"}`))
}
