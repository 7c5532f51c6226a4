// Package audience resolves the set of lock audiences a user's Route Pass
// should carry, per the rules in spec.md §4.3.
package audience

import (
	"context"
	"fmt"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/store"
)

// AccessLookup is the capability this resolver needs from the access
// relations — declared here rather than depending on store.AccessStore's
// concrete type, per spec.md §9's "declared constructor dependencies"
// design note. *store.AccessStore satisfies it; tests use a fake.
type AccessLookup interface {
	AllLockIDs(ctx context.Context) ([]string, error)
	LockIDsForFacilities(ctx context.Context, facilityIDs []string) ([]string, error)
	LockIDsAssignedToTenant(ctx context.Context, tenantID string) ([]string, error)
	SharedLocksForUser(ctx context.Context, userID string, now time.Time) ([]store.SharedLock, error)
}

// Resolver computes audience strings from a user's role and access grants.
type Resolver struct {
	access AccessLookup
}

// New creates a Resolver.
func New(access AccessLookup) *Resolver {
	return &Resolver{access: access}
}

// Resolve returns the deduplicated audience list for a user, per spec.md
// §4.3. facilityIDs scopes FACILITY_ADMIN; it is ignored for other roles.
func (r *Resolver) Resolve(ctx context.Context, userID string, role domain.Role, facilityIDs []string) ([]string, error) {
	switch role {
	case domain.RoleDevAdmin, domain.RoleAdmin:
		locks, err := r.access.AllLockIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving all-lock audience: %w", err)
		}
		return lockAudiences(locks), nil

	case domain.RoleFacilityAdmin:
		if len(facilityIDs) == 0 {
			return nil, nil
		}
		locks, err := r.access.LockIDsForFacilities(ctx, facilityIDs)
		if err != nil {
			return nil, fmt.Errorf("resolving facility-admin audience: %w", err)
		}
		return lockAudiences(locks), nil

	case domain.RoleTenant:
		return r.resolveTenant(ctx, userID)

	default:
		return nil, nil
	}
}

func (r *Resolver) resolveTenant(ctx context.Context, userID string) ([]string, error) {
	assigned, err := r.access.LockIDsAssignedToTenant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving assigned locks: %w", err)
	}

	shared, err := r.access.SharedLocksForUser(ctx, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("resolving shared locks: %w", err)
	}

	out := lockAudiences(assigned)
	seen := make(map[string]struct{}, len(out)+len(shared))
	for _, a := range out {
		seen[a] = struct{}{}
	}
	for _, sl := range shared {
		aud := sharedKeyAudience(sl.PrimaryTenantID, sl.LockID)
		if _, dup := seen[aud]; dup {
			continue
		}
		seen[aud] = struct{}{}
		out = append(out, aud)
	}
	return out, nil
}

func lockAudiences(lockIDs []string) []string {
	if len(lockIDs) == 0 {
		return nil
	}
	out := make([]string, len(lockIDs))
	for i, id := range lockIDs {
		out[i] = "lock:" + id
	}
	return out
}

func sharedKeyAudience(primaryTenantID, lockID string) string {
	return "shared_key:" + primaryTenantID + ":" + lockID
}
