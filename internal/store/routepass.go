package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// RoutePassStore persists the audit trail of issued Route Passes.
type RoutePassStore struct {
	pool *Pool
}

// NewRoutePassStore creates a RoutePassStore.
func NewRoutePassStore(pool *Pool) *RoutePassStore {
	return &RoutePassStore{pool: pool}
}

// Record inserts a RoutePassIssuance row. Callers treat failure as
// best-effort per spec.md §4.5: persistence failure must not fail issuance.
func (s *RoutePassStore) Record(ctx context.Context, issuance domain.RoutePassIssuance) error {
	query := `INSERT INTO route_pass_issuances (jti, user_id, device_id, audiences, issued_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		issuance.JTI, issuance.UserID, issuance.DeviceID, issuance.Audiences, issuance.IssuedAt, issuance.ExpiresAt)
	if err != nil {
		return fmt.Errorf("recording route pass issuance: %w", err)
	}
	return nil
}

// HasLiveIssuance reports whether a user has any recorded Route Pass
// issuance with expires_at > now — the predicate behind the denylist
// optimizer's shouldSkipDenylistAdd (spec.md §4.9).
func (s *RoutePassStore) HasLiveIssuance(ctx context.Context, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM route_pass_issuances WHERE user_id = $1 AND expires_at > now())`
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking live route pass issuance: %w", err)
	}
	return exists, nil
}

// ListForUser returns up to limit issuances for userID, newest first,
// keyset-paginated on (issued_at, jti). after is nil for the first page;
// otherwise it is the cursor from the previous page's last row. Callers
// fetch limit+1 and trim, per httpserver.NewCursorPage's "has more"
// convention.
func (s *RoutePassStore) ListForUser(ctx context.Context, userID string, after *RoutePassCursor, limit int) ([]domain.RoutePassIssuance, error) {
	query := `SELECT jti, user_id, device_id, audiences, issued_at, expires_at
	          FROM route_pass_issuances
	          WHERE user_id = $1 AND ($2 OR (issued_at, jti) < ($3, $4))
	          ORDER BY issued_at DESC, jti DESC
	          LIMIT $5`
	var issuedAt time.Time
	var jti string
	if after != nil {
		issuedAt, jti = after.IssuedAt, after.JTI.String()
	}
	rows, err := s.pool.Query(ctx, query, userID, after == nil, issuedAt, jti, limit)
	if err != nil {
		return nil, fmt.Errorf("listing route pass issuances: %w", err)
	}
	defer rows.Close()

	var out []domain.RoutePassIssuance
	for rows.Next() {
		var issuance domain.RoutePassIssuance
		if err := rows.Scan(&issuance.JTI, &issuance.UserID, &issuance.DeviceID, &issuance.Audiences, &issuance.IssuedAt, &issuance.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scanning route pass issuance: %w", err)
		}
		out = append(out, issuance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating route pass issuances: %w", err)
	}
	return out, nil
}

// RoutePassCursor is the keyset position for ListForUser's pagination.
type RoutePassCursor struct {
	IssuedAt time.Time
	JTI      uuid.UUID
}
