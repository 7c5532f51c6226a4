package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/skatamatic/blulok-cloud/internal/auth"
	"github.com/skatamatic/blulok-cloud/internal/domain"
)

func newAdminTestRouter() chi.Router {
	h := NewAdminHandler(testLogger(), nil, nil, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ident := &auth.Identity{UserID: "admin-1", Role: domain.RoleAdmin}
			next.ServeHTTP(w, req.WithContext(auth.NewContext(req.Context(), ident)))
		})
	})
	r.Mount("/", h.Routes())
	return r
}

func TestHandleListDenylist_MissingParams(t *testing.T) {
	r := newAdminTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/denylist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleListRoutePasses_MissingUserID(t *testing.T) {
	r := newAdminTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/route-passes", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleListRoutePasses_InvalidCursorLimit(t *testing.T) {
	r := newAdminTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/route-passes?user_id=u1&limit=not-a-number", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
