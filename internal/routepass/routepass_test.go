package routepass

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skatamatic/blulok-cloud/internal/audience"
	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/schedule"
	"github.com/skatamatic/blulok-cloud/internal/signing"
	"github.com/skatamatic/blulok-cloud/internal/store"
)

type fakeDevices struct {
	byAppDeviceID map[string]*domain.UserDevice
	mostRecent    *domain.UserDevice
}

func (f *fakeDevices) GetByAppDeviceID(ctx context.Context, userID, appDeviceID string) (*domain.UserDevice, error) {
	d, ok := f.byAppDeviceID[appDeviceID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeDevices) MostRecentlyUpdated(ctx context.Context, userID string) (*domain.UserDevice, error) {
	if f.mostRecent == nil {
		return nil, pgx.ErrNoRows
	}
	return f.mostRecent, nil
}

type fakeIssuances struct {
	recorded []domain.RoutePassIssuance
	failErr  error
}

func (f *fakeIssuances) Record(ctx context.Context, issuance domain.RoutePassIssuance) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.recorded = append(f.recorded, issuance)
	return nil
}

type fakeAccess struct{}

func (fakeAccess) AllLockIDs(ctx context.Context) ([]string, error) { return []string{"lock-1"}, nil }
func (fakeAccess) LockIDsForFacilities(ctx context.Context, facilityIDs []string) ([]string, error) {
	return nil, nil
}
func (fakeAccess) LockIDsAssignedToTenant(ctx context.Context, tenantID string) ([]string, error) {
	return []string{"lock-1"}, nil
}
func (fakeAccess) SharedLocksForUser(ctx context.Context, userID string, now time.Time) ([]store.SharedLock, error) {
	return nil, nil
}
func (fakeAccess) FacilityIDsForUser(ctx context.Context, userID string, now time.Time) ([]string, error) {
	return nil, nil
}

type fakeSchedules struct{}

func (fakeSchedules) ForUserFacility(ctx context.Context, userID, facilityID string) (*domain.Schedule, error) {
	return nil, store.ErrNoSchedule
}

type fakeLockFacility struct{}

func (fakeLockFacility) FacilityIDForLock(ctx context.Context, lockID string) (string, error) {
	return "", errors.New("no facility")
}

func newTestOrchestrator(t *testing.T, devices DeviceLookup, issuances IssuanceRecorder) *Orchestrator {
	t.Helper()
	pub, priv, err := signing.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	signer, err := signing.New(priv, pub)
	if err != nil {
		t.Fatalf("signing.New() error: %v", err)
	}
	audienceResolver := audience.New(fakeAccess{})
	scheduleResolver := schedule.New(fakeSchedules{}, fakeAccess{}, fakeLockFacility{}, slog.Default())
	return New(signer, audienceResolver, scheduleResolver, devices, issuances, time.Hour, slog.Default())
}

func TestIssueForUser_WithDeviceHint(t *testing.T) {
	devices := &fakeDevices{byAppDeviceID: map[string]*domain.UserDevice{
		"phone-1": {ID: "dev-1", UserID: "user-1", AppDeviceID: "phone-1", Status: domain.DeviceStatusActive, PublicKeyB64: "pubkey-1"},
	}}
	issuances := &fakeIssuances{}
	orch := newTestOrchestrator(t, devices, issuances)

	token, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleTenant}, "phone-1")
	if err != nil {
		t.Fatalf("IssueForUser() error: %v", err)
	}
	if token == "" {
		t.Fatal("IssueForUser() returned empty token")
	}
	if len(issuances.recorded) != 1 {
		t.Fatalf("expected 1 recorded issuance, got %d", len(issuances.recorded))
	}
	if issuances.recorded[0].DeviceID != "dev-1" {
		t.Errorf("recorded issuance DeviceID = %q, want dev-1", issuances.recorded[0].DeviceID)
	}
}

func TestIssueForUser_NoDeviceHintUsesMostRecent(t *testing.T) {
	devices := &fakeDevices{mostRecent: &domain.UserDevice{ID: "dev-2", UserID: "user-1", PublicKeyB64: "pubkey-2"}}
	orch := newTestOrchestrator(t, devices, &fakeIssuances{})

	token, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleAdmin}, "")
	if err != nil {
		t.Fatalf("IssueForUser() error: %v", err)
	}
	if token == "" {
		t.Fatal("IssueForUser() returned empty token")
	}
}

func TestIssueForUser_InvalidDeviceHint(t *testing.T) {
	devices := &fakeDevices{}
	orch := newTestOrchestrator(t, devices, &fakeIssuances{})

	_, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleTenant}, "unknown-phone")
	var rpErr *Error
	if !errors.As(err, &rpErr) || rpErr.Kind != KindInvalidDeviceHint {
		t.Fatalf("IssueForUser() error = %v, want Kind=%s", err, KindInvalidDeviceHint)
	}
}

func TestIssueForUser_NoRegisteredDevice(t *testing.T) {
	devices := &fakeDevices{}
	orch := newTestOrchestrator(t, devices, &fakeIssuances{})

	_, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleTenant}, "")
	var rpErr *Error
	if !errors.As(err, &rpErr) || rpErr.Kind != KindNoRegisteredDevice {
		t.Fatalf("IssueForUser() error = %v, want Kind=%s", err, KindNoRegisteredDevice)
	}
}

func TestIssueForUser_DeviceWithNoPublicKeyIsUnusable(t *testing.T) {
	devices := &fakeDevices{mostRecent: &domain.UserDevice{ID: "dev-3", UserID: "user-1", Status: domain.DeviceStatusPendingKey}}
	orch := newTestOrchestrator(t, devices, &fakeIssuances{})

	_, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleTenant}, "")
	var rpErr *Error
	if !errors.As(err, &rpErr) || rpErr.Kind != KindNoRegisteredDevice {
		t.Fatalf("IssueForUser() error = %v, want Kind=%s", err, KindNoRegisteredDevice)
	}
}

func TestIssueForUser_RecordFailureIsNonFatal(t *testing.T) {
	devices := &fakeDevices{mostRecent: &domain.UserDevice{ID: "dev-4", UserID: "user-1", PublicKeyB64: "pubkey-4"}}
	issuances := &fakeIssuances{failErr: errors.New("db unavailable")}
	orch := newTestOrchestrator(t, devices, issuances)

	token, err := orch.IssueForUser(context.Background(), Identity{UserID: "user-1", Role: domain.RoleTenant}, "")
	if err != nil {
		t.Fatalf("IssueForUser() error: %v, want nil despite recorder failure", err)
	}
	if token == "" {
		t.Fatal("IssueForUser() returned empty token")
	}
}

func TestIssueFallback_EmptyAudience(t *testing.T) {
	devices := &fakeDevices{mostRecent: &domain.UserDevice{ID: "dev-5", UserID: "user-1", PublicKeyB64: "pubkey-5"}}
	issuances := &fakeIssuances{}
	orch := newTestOrchestrator(t, devices, issuances)

	token, err := orch.IssueFallback(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("IssueFallback() error: %v", err)
	}
	if token == "" {
		t.Fatal("IssueFallback() returned empty token")
	}
	if len(issuances.recorded) != 1 || issuances.recorded[0].Audiences != nil {
		t.Fatalf("expected a recorded issuance with nil audiences, got %+v", issuances.recorded)
	}
}
