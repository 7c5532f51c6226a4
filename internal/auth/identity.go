// Package auth provides the minimal request-scoped identity this service
// needs — role-based access to Route Pass issuance and admin denylist
// operations. Full authentication (OIDC, sessions, API keys) is an external
// collaborator per spec.md §1; what lives here is deliberately thin: a
// context-carried Identity and the role checks built on it.
package auth

import (
	"context"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// Identity is the authenticated caller context propagated through request
// handling — spec.md §4.5's "authenticated ctx = {userId, role, facilityIds?}".
type Identity struct {
	UserID      string
	Role        domain.Role
	FacilityIDs []string
}

type ctxKey struct{}

// NewContext returns a context carrying the given Identity.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the Identity stored in ctx, or nil if none.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}
