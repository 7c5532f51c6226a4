package store

import (
	"context"
	"fmt"
	"time"
)

// AccessStore resolves the raw assignment/sharing/lock relations the
// audience resolver and cascade listener need. It deliberately exposes
// entity-level reads, not query-builder chains.
type AccessStore struct {
	pool *Pool
}

// NewAccessStore creates an AccessStore.
func NewAccessStore(pool *Pool) *AccessStore {
	return &AccessStore{pool: pool}
}

// AllFacilityIDs returns every facility id in the system — the target list
// for the time-sync broadcast loop.
func (s *AccessStore) AllFacilityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM facilities`)
	if err != nil {
		return nil, fmt.Errorf("listing all facilities: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// AllLockIDs returns every lock id in the system (DEV_ADMIN/ADMIN audience).
func (s *AccessStore) AllLockIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM locks`)
	if err != nil {
		return nil, fmt.Errorf("listing all locks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// LockIDsForFacilities returns lock ids for units within the given facilities.
func (s *AccessStore) LockIDsForFacilities(ctx context.Context, facilityIDs []string) ([]string, error) {
	if len(facilityIDs) == 0 {
		return nil, nil
	}
	query := `SELECT l.id FROM locks l JOIN units u ON u.id = l.unit_id WHERE u.facility_id = ANY($1)`
	rows, err := s.pool.Query(ctx, query, facilityIDs)
	if err != nil {
		return nil, fmt.Errorf("listing locks for facilities: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// LockIDsAssignedToTenant returns lock ids for units directly assigned to a tenant.
func (s *AccessStore) LockIDsAssignedToTenant(ctx context.Context, tenantID string) ([]string, error) {
	query := `SELECT l.id FROM locks l
	          JOIN unit_assignments ua ON ua.unit_id = l.unit_id
	          WHERE ua.tenant_id = $1`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing assigned locks: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SharedLock is one lock reachable via an active KeySharing grant.
type SharedLock struct {
	LockID          string
	PrimaryTenantID string
}

// SharedLocksForUser returns the locks shared with a user via live
// (active, not-yet-expired) KeySharing rows, along with each grant's primary
// tenant — needed to build the shared_key:<primaryTenantId>:<lockId> audience.
func (s *AccessStore) SharedLocksForUser(ctx context.Context, userID string, now time.Time) ([]SharedLock, error) {
	query := `SELECT l.id, ks.primary_tenant_id FROM key_sharing ks
	          JOIN locks l ON l.unit_id = ks.unit_id
	          WHERE ks.shared_with_user_id = $1 AND ks.is_active = true
	            AND (ks.expires_at IS NULL OR ks.expires_at > $2)`
	rows, err := s.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing shared locks: %w", err)
	}
	defer rows.Close()

	var out []SharedLock
	for rows.Next() {
		var sl SharedLock
		if err := rows.Scan(&sl.LockID, &sl.PrimaryTenantID); err != nil {
			return nil, fmt.Errorf("scanning shared lock: %w", err)
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// FacilityIDsForUser returns the facilities a user has any association with
// (direct assignment or a live share), in a stable order, used as the
// schedule resolver's default facility scope when none is supplied.
func (s *AccessStore) FacilityIDsForUser(ctx context.Context, userID string, now time.Time) ([]string, error) {
	query := `SELECT DISTINCT u.facility_id FROM units u
	          JOIN unit_assignments ua ON ua.unit_id = u.id
	          WHERE ua.tenant_id = $1
	          UNION
	          SELECT DISTINCT u.facility_id FROM units u
	          JOIN key_sharing ks ON ks.unit_id = u.id
	          WHERE ks.shared_with_user_id = $1 AND ks.is_active = true
	            AND (ks.expires_at IS NULL OR ks.expires_at > $2)
	          ORDER BY 1`
	rows, err := s.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing facilities for user: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// UnitsForTenant returns every unit id a user has any access to — directly
// assigned, shared out as a primary, or shared in as an invitee — the
// cascade listener's "union of primary and shared units" for UserDeactivated.
func (s *AccessStore) UnitsForTenant(ctx context.Context, tenantID string) ([]string, error) {
	query := `SELECT unit_id FROM unit_assignments WHERE tenant_id = $1
	          UNION
	          SELECT DISTINCT unit_id FROM key_sharing WHERE primary_tenant_id = $1
	          UNION
	          SELECT DISTINCT unit_id FROM key_sharing WHERE shared_with_user_id = $1`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing units for tenant: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// InviteesForSharedUnits returns the shared-with user ids for every live
// KeySharing grant where the given tenant is primary on the given units —
// used by the UserDeactivated cascade.
func (s *AccessStore) InviteesForSharedUnits(ctx context.Context, primaryTenantID string, unitIDs []string, now time.Time) (map[string][]string, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	query := `SELECT unit_id, shared_with_user_id FROM key_sharing
	          WHERE primary_tenant_id = $1 AND unit_id = ANY($2) AND is_active = true
	            AND (expires_at IS NULL OR expires_at > $3)`
	rows, err := s.pool.Query(ctx, query, primaryTenantID, unitIDs, now)
	if err != nil {
		return nil, fmt.Errorf("listing invitees: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var unitID, userID string
		if err := rows.Scan(&unitID, &userID); err != nil {
			return nil, fmt.Errorf("scanning invitee: %w", err)
		}
		out[unitID] = append(out[unitID], userID)
	}
	return out, rows.Err()
}

func scanStrings(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning string column: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
