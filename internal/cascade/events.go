package cascade

import "time"

// Event is implemented by the four tagged variants the cascade listener
// consumes, replacing the teacher's callback-based event handling
// (pkg/escalation/engine.go's tick/processTenant/processAlert chain) with a
// typed channel of sum-type values, per spec.md §9's design note.
type Event interface {
	isEvent()
}

// TenantUnassigned fires when a tenant's assignment to a unit ends.
// FMSSync, if set, marks an FMS-driven sync rather than a manual
// unassignment for the denylist entry's Source.
type TenantUnassigned struct {
	TenantID   string
	UnitID     string
	FacilityID string
	FMSSync    bool
	EventTime  time.Time
}

func (TenantUnassigned) isEvent() {}

// TenantAssigned fires when a tenant is (re-)assigned to a unit.
type TenantAssigned struct {
	TenantID   string
	UnitID     string
	FacilityID string
}

func (TenantAssigned) isEvent() {}

// KeySharingRevoked fires when a primary tenant revokes a single share grant.
type KeySharingRevoked struct {
	SharedWithUserID string
	UnitID           string
	FacilityID       string
	EventTime        time.Time
}

func (KeySharingRevoked) isEvent() {}

// UserDeactivated fires when a user account is deactivated entirely; every
// unit they reach, as primary tenant or as an invitee, is affected.
type UserDeactivated struct {
	UserID    string
	EventTime time.Time
}

func (UserDeactivated) isEvent() {}
