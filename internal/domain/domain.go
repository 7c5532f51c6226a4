// Package domain holds the entities shared across the access authorization
// subsystem: users, devices, facilities, units, locks, assignments, shares,
// and schedules. These are read by the core and written by external
// collaborators (tenant/unit CRUD, the FMS sync engine, the dashboard) —
// the core only owns DenylistEntry and RoutePassIssuance.
package domain

import "time"

// Role is a user's access-control role.
type Role string

const (
	RoleDevAdmin      Role = "DEV_ADMIN"
	RoleAdmin         Role = "ADMIN"
	RoleFacilityAdmin Role = "FACILITY_ADMIN"
	RoleTenant        Role = "TENANT"
	RoleMaintenance   Role = "MAINTENANCE"
)

// User is a principal that can be authenticated and may hold devices.
type User struct {
	ID     string
	Role   Role
	Active bool
}

// DeviceStatus is the lifecycle state of a UserDevice.
type DeviceStatus string

const (
	DeviceStatusPendingKey DeviceStatus = "pending_key"
	DeviceStatusActive     DeviceStatus = "active"
	DeviceStatusRevoked    DeviceStatus = "revoked"
)

// UserDevice is a mobile device enrolled for a user, identified by the
// caller-supplied appDeviceId and carrying an Ed25519 public key once keyed.
type UserDevice struct {
	ID           string
	UserID       string
	AppDeviceID  string
	Status       DeviceStatus
	PublicKeyB64 string // base64url, 32 decoded bytes once non-empty
	UpdatedAt    time.Time
}

// Facility is a physical storage location.
type Facility struct {
	ID string
}

// Unit is a storage unit within a facility, with exactly one Lock in the
// core model.
type Unit struct {
	ID         string
	FacilityID string
}

// Lock is the smart lock attached to a Unit.
type Lock struct {
	ID     string
	UnitID string
}

// UnitAssignment grants a tenant access to a unit. Primary confers schedule
// authority over the unit's shared access.
type UnitAssignment struct {
	UnitID    string
	TenantID  string
	IsPrimary bool
}

// KeySharing lets a primary tenant share a unit's lock with another user,
// optionally expiring.
type KeySharing struct {
	ID               string
	UnitID           string
	PrimaryTenantID  string
	SharedWithUserID string
	Active           bool
	ExpiresAt        *time.Time
}

// Live reports whether the share currently grants access.
func (k KeySharing) Live(now time.Time) bool {
	if !k.Active {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// DayOfWeek is 0 (Sunday) through 6 (Saturday), facility-local.
type DayOfWeek int

// TimeWindow is a half-open [Start, End) interval on a single day of week.
type TimeWindow struct {
	DayOfWeek DayOfWeek
	Start     string // HH:MM:SS
	End       string // HH:MM:SS
}

// ScheduleKind distinguishes precanned facility templates from bespoke ones.
type ScheduleKind string

const (
	ScheduleKindPrecanned ScheduleKind = "precanned"
	ScheduleKindCustom    ScheduleKind = "custom"
)

// Schedule is a named, facility-scoped set of time windows.
type Schedule struct {
	ID          string
	FacilityID  string
	Name        string
	Kind        ScheduleKind
	TimeWindows []TimeWindow
}

// UserFacilitySchedule binds a user to one of a facility's schedules.
type UserFacilitySchedule struct {
	UserID     string
	FacilityID string
	ScheduleID string
}

// DenylistSource identifies what produced a DenylistEntry.
type DenylistSource string

const (
	SourceUserDeactivation      DenylistSource = "user_deactivation"
	SourceUnitUnassignment      DenylistSource = "unit_unassignment"
	SourceFMSSync               DenylistSource = "fms_sync"
	SourceKeySharingRevocation  DenylistSource = "key_sharing_revocation"
)

// DenylistEntry blocks a (device, user) pair until ExpiresAt.
type DenylistEntry struct {
	ID        string
	DeviceID  string
	UserID    string
	ExpiresAt time.Time
	Source    DenylistSource
	CreatedBy string
	CreatedAt time.Time
}

// RoutePassIssuance is the append-only audit record of an issued Route Pass.
type RoutePassIssuance struct {
	JTI        string
	UserID     string
	DeviceID   string
	Audiences  []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}
