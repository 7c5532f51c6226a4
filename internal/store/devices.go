package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// DeviceStore provides lookups over enrolled user devices.
type DeviceStore struct {
	pool *Pool
}

// NewDeviceStore creates a DeviceStore.
func NewDeviceStore(pool *Pool) *DeviceStore {
	return &DeviceStore{pool: pool}
}

func scanDevice(row pgx.Row) (*domain.UserDevice, error) {
	var d domain.UserDevice
	if err := row.Scan(&d.ID, &d.UserID, &d.AppDeviceID, &d.Status, &d.PublicKeyB64, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

const deviceColumns = `id, user_id, app_device_id, status, public_key, updated_at`

// GetByAppDeviceID returns the active-or-pending device for a user with the
// given caller-supplied app device id. Returns pgx.ErrNoRows if absent.
func (s *DeviceStore) GetByAppDeviceID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM user_devices
	          WHERE user_id = $1 AND app_device_id = $2 AND status IN ('pending_key', 'active')`
	d, err := scanDevice(s.pool.QueryRow(ctx, query, userID, appDeviceID))
	if err != nil {
		return nil, fmt.Errorf("looking up device by app_device_id: %w", err)
	}
	return d, nil
}

// MostRecentlyUpdated returns the most recently updated active-or-pending
// device for a user. Returns pgx.ErrNoRows if the user has none.
func (s *DeviceStore) MostRecentlyUpdated(ctx context.Context, userID string) (*domain.UserDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM user_devices
	          WHERE user_id = $1 AND status IN ('pending_key', 'active')
	          ORDER BY updated_at DESC LIMIT 1`
	d, err := scanDevice(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("looking up most recent device: %w", err)
	}
	return d, nil
}

// GetByID returns a user's device by its app_device_id, regardless of
// status — used by the fallback verifier, which looks up the device's public
// key without checking its status.
func (s *DeviceStore) GetByID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM user_devices WHERE user_id = $1 AND app_device_id = $2`
	d, err := scanDevice(s.pool.QueryRow(ctx, query, userID, appDeviceID))
	if err != nil {
		return nil, fmt.Errorf("looking up device: %w", err)
	}
	return d, nil
}

// DeviceIDsForUnit returns the lock/device ids for every lock on a unit.
// In the core model there is exactly one lock per unit, and the device to
// denylist is the lock's own device identity.
func (s *DeviceStore) DeviceIDsForUnit(ctx context.Context, unitID string) ([]string, error) {
	query := `SELECT l.id FROM locks l WHERE l.unit_id = $1`
	rows, err := s.pool.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("listing locks for unit: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning lock id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FacilityIDForLock returns the facility a lock belongs to, via its unit.
func (s *DeviceStore) FacilityIDForLock(ctx context.Context, lockID string) (string, error) {
	query := `SELECT u.facility_id FROM locks l JOIN units u ON u.id = l.unit_id WHERE l.id = $1`
	var facilityID string
	if err := s.pool.QueryRow(ctx, query, lockID).Scan(&facilityID); err != nil {
		return "", fmt.Errorf("resolving facility for lock %s: %w", lockID, err)
	}
	return facilityID, nil
}

// FacilityIDForUnit returns the facility a unit belongs to.
func (s *DeviceStore) FacilityIDForUnit(ctx context.Context, unitID string) (string, error) {
	query := `SELECT facility_id FROM units WHERE id = $1`
	var facilityID string
	if err := s.pool.QueryRow(ctx, query, unitID).Scan(&facilityID); err != nil {
		return "", fmt.Errorf("resolving facility for unit %s: %w", unitID, err)
	}
	return facilityID, nil
}
