package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/store"
)

// Store is the persistent table of denylist entries (C8), per spec.md §4.8.
type Store struct {
	pool *store.Pool
}

// NewStore creates a Store.
func NewStore(pool *store.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a denylist entry. On a (device_id, user_id) conflict it
// widens expires_at to the later of the existing and new values, and
// attributes the row to the most recent writer's source/created_by.
func (s *Store) Create(ctx context.Context, entry domain.DenylistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	query := `INSERT INTO denylist_entries (id, device_id, user_id, expires_at, source, created_by, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, now())
	          ON CONFLICT (device_id, user_id) DO UPDATE SET
	            expires_at = GREATEST(denylist_entries.expires_at, EXCLUDED.expires_at),
	            source = EXCLUDED.source,
	            created_by = EXCLUDED.created_by`
	_, err := s.pool.Exec(ctx, query, entry.ID, entry.DeviceID, entry.UserID, entry.ExpiresAt, entry.Source, entry.CreatedBy)
	if err != nil {
		return fmt.Errorf("creating denylist entry: %w", err)
	}
	return nil
}

const entryColumns = `id, device_id, user_id, expires_at, source, created_by, created_at`

func scanEntry(row pgx.Row) (domain.DenylistEntry, error) {
	var e domain.DenylistEntry
	err := row.Scan(&e.ID, &e.DeviceID, &e.UserID, &e.ExpiresAt, &e.Source, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

// FindByDevice returns every denylist entry for a device.
func (s *Store) FindByDevice(ctx context.Context, deviceID string) ([]domain.DenylistEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM denylist_entries WHERE device_id = $1`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("finding entries by device: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindByUser returns every denylist entry for a user.
func (s *Store) FindByUser(ctx context.Context, userID string) ([]domain.DenylistEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM denylist_entries WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("finding entries by user: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindByUnitsAndUser returns the denylist entries for a user, restricted to
// devices (locks) attached to the given units.
func (s *Store) FindByUnitsAndUser(ctx context.Context, unitIDs []string, userID string) ([]domain.DenylistEntry, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + entryColumns + ` FROM denylist_entries de
	          JOIN locks l ON l.id = de.device_id
	          WHERE l.unit_id = ANY($1) AND de.user_id = $2`
	rows, err := s.pool.Query(ctx, query, unitIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("finding entries by units and user: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Remove deletes a single (device, user) denylist entry.
func (s *Store) Remove(ctx context.Context, deviceID, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM denylist_entries WHERE device_id = $1 AND user_id = $2`, deviceID, userID)
	if err != nil {
		return fmt.Errorf("removing denylist entry: %w", err)
	}
	return nil
}

// PruneExpired deletes every entry with expires_at <= now, returning the
// count removed — the operation behind the Pruner (C11).
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM denylist_entries WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pruning expired entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEntries(rows pgx.Rows) ([]domain.DenylistEntry, error) {
	var out []domain.DenylistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning denylist entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
