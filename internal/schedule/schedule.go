// Package schedule resolves and validates the schedule claim carried in a
// Route Pass, per spec.md §4.4.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/store"
)

// Claim is the schedule carried on a Route Pass.
type Claim struct {
	FacilityID  string               `json:"facility_id"`
	TimeWindows []domain.TimeWindow `json:"time_windows"`
}

// ScheduleLookup is the capability this resolver needs from the schedule
// tables, per spec.md §9's "declared constructor dependencies" design note.
// *store.ScheduleStore satisfies it; tests use a fake.
type ScheduleLookup interface {
	ForUserFacility(ctx context.Context, userID, facilityID string) (*domain.Schedule, error)
}

// FacilityScopeLookup is the capability this resolver needs to default a
// user's facility scope when none is supplied. *store.AccessStore satisfies
// it.
type FacilityScopeLookup interface {
	FacilityIDsForUser(ctx context.Context, userID string, now time.Time) ([]string, error)
}

// LockFacilityLookup is the capability this resolver needs to find which
// facility a shared lock belongs to. *store.DeviceStore satisfies it.
type LockFacilityLookup interface {
	FacilityIDForLock(ctx context.Context, lockID string) (string, error)
}

// Resolver determines the schedule claim for a Route Pass.
type Resolver struct {
	schedules ScheduleLookup
	access    FacilityScopeLookup
	devices   LockFacilityLookup
	log       *slog.Logger
}

// New creates a Resolver.
func New(schedules ScheduleLookup, access FacilityScopeLookup, devices LockFacilityLookup, log *slog.Logger) *Resolver {
	return &Resolver{schedules: schedules, access: access, devices: devices, log: log}
}

// Resolve implements spec.md §4.4's algorithm. facilityIDs is the caller's
// explicit facility scope, if any; audiences is the Route Pass's already
// computed audience list, used for the shared_key fallback in step 3.
// A nil Claim with a nil error means "no schedule claim" (step 4).
func (r *Resolver) Resolve(ctx context.Context, userID string, facilityIDs []string, audiences []string) (*Claim, error) {
	scope := facilityIDs
	if len(scope) == 0 {
		assoc, err := r.access.FacilityIDsForUser(ctx, userID, time.Now())
		if err != nil {
			return nil, fmt.Errorf("resolving facility scope: %w", err)
		}
		scope = assoc
	}

	if len(scope) > 0 {
		sched, err := r.schedules.ForUserFacility(ctx, userID, scope[0])
		switch {
		case err == nil:
			if r.validWindows(sched.TimeWindows, userID, scope[0]) {
				return &Claim{FacilityID: scope[0], TimeWindows: sched.TimeWindows}, nil
			}
			// malformed window set: fall through to the shared_key fallback
		case errors.Is(err, store.ErrNoSchedule):
			// fall through to the shared_key fallback
		default:
			return nil, fmt.Errorf("resolving facility schedule: %w", err)
		}
	}

	primaryTenantID, lockID, ok := firstSharedKeyAudience(audiences)
	if !ok {
		return nil, nil
	}

	facilityID, err := r.devices.FacilityIDForLock(ctx, lockID)
	if err != nil {
		return nil, fmt.Errorf("resolving facility for shared lock: %w", err)
	}

	sched, err := r.schedules.ForUserFacility(ctx, primaryTenantID, facilityID)
	if errors.Is(err, store.ErrNoSchedule) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving primary tenant schedule: %w", err)
	}
	if !r.validWindows(sched.TimeWindows, primaryTenantID, facilityID) {
		return nil, nil
	}
	return &Claim{FacilityID: facilityID, TimeWindows: sched.TimeWindows}, nil
}

// validWindows runs Validate on a loaded window set and logs-and-skips it
// rather than failing issuance outright: a malformed row is an upstream data
// problem, not a reason to deny the caller a Route Pass entirely.
func (r *Resolver) validWindows(windows []domain.TimeWindow, userID, facilityID string) bool {
	if err := Validate(windows); err != nil {
		if r.log != nil {
			r.log.Error("rejecting malformed schedule windows", "user_id", userID, "facility_id", facilityID, "error", err)
		}
		return false
	}
	return true
}

func firstSharedKeyAudience(audiences []string) (primaryTenantID, lockID string, ok bool) {
	for _, aud := range audiences {
		rest, found := strings.CutPrefix(aud, "shared_key:")
		if !found {
			continue
		}
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		return parts[0], parts[1], true
	}
	return "", "", false
}

// ErrInvalidWindows is returned by Validate when a window set is malformed.
var ErrInvalidWindows = errors.New("invalid time windows")

// Validate rejects a window set containing a window with start >= end, or
// two overlapping [start, end) windows on the same day, per spec.md §4.4's
// "Validation at load time".
func Validate(windows []domain.TimeWindow) error {
	byDay := make(map[domain.DayOfWeek][]domain.TimeWindow)
	for _, w := range windows {
		if w.Start >= w.End {
			return fmt.Errorf("%w: day %d start %s >= end %s", ErrInvalidWindows, w.DayOfWeek, w.Start, w.End)
		}
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], w)
	}

	for day, ws := range byDay {
		for i := 0; i < len(ws); i++ {
			for j := i + 1; j < len(ws); j++ {
				if ws[i].Start < ws[j].End && ws[j].Start < ws[i].End {
					return fmt.Errorf("%w: day %d windows [%s,%s) and [%s,%s) overlap",
						ErrInvalidWindows, day, ws[i].Start, ws[i].End, ws[j].Start, ws[j].End)
				}
			}
		}
	}
	return nil
}
