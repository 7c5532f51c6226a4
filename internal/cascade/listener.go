// Package cascade implements the Cascade Listener (C10): a single-writer
// consumer that reacts to unit reassignment, user deactivation, and
// key-sharing revocation by synthesizing denylist updates and unicasting
// them to the affected facility, per spec.md §4.10. Ordering within a
// facility is preserved by a keyed worker per facility id — grounded on the
// teacher's pkg/escalation/engine.go Run loop, generalized from one
// tenant-keyed ticker to one goroutine per facility fed by a typed event
// channel instead of a shared callback.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/denylist"
	"github.com/skatamatic/blulok-cloud/internal/domain"
	"github.com/skatamatic/blulok-cloud/internal/telemetry"
	"github.com/skatamatic/blulok-cloud/internal/unicast"
)

const facilityQueueDepth = 256

// AccessLookup is the capability this listener needs to resolve a
// deactivated user's affected units and the invitees of any units they share
// as primary, per spec.md §9's "declared constructor dependencies" design
// note. *store.AccessStore satisfies it.
type AccessLookup interface {
	UnitsForTenant(ctx context.Context, tenantID string) ([]string, error)
	InviteesForSharedUnits(ctx context.Context, primaryTenantID string, unitIDs []string, now time.Time) (map[string][]string, error)
}

// DeviceLookup is the capability this listener needs to resolve the devices
// (locks) affected by a unit. *store.DeviceStore satisfies it.
type DeviceLookup interface {
	DeviceIDsForUnit(ctx context.Context, unitID string) ([]string, error)
	FacilityIDForUnit(ctx context.Context, unitID string) (string, error)
}

// DenylistStore is the capability this listener needs from the denylist
// table. *denylist.Store satisfies it.
type DenylistStore interface {
	Create(ctx context.Context, entry domain.DenylistEntry) error
	FindByUnitsAndUser(ctx context.Context, unitIDs []string, userID string) ([]domain.DenylistEntry, error)
	Remove(ctx context.Context, deviceID, userID string) error
}

// Optimizer is the capability this listener needs from the denylist
// optimizer. *denylist.Optimizer satisfies it.
type Optimizer interface {
	ShouldSkipAdd(ctx context.Context, userID string) (bool, error)
}

// CommandBuilder is the capability this listener needs to build signed
// denylist command envelopes. *denylist.Builder satisfies it.
type CommandBuilder interface {
	BuildAdd(targets []string, entries []denylist.AddEntry) (string, error)
	BuildRemove(targets []string, subjects []string) (string, error)
}

// Listener dispatches cascade events to per-facility serialized workers.
type Listener struct {
	access    AccessLookup
	devices   DeviceLookup
	denyStore DenylistStore
	optimizer Optimizer
	builder   CommandBuilder
	sink      unicast.Sink
	ttl       time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	workers map[string]chan func(context.Context)
	wg      sync.WaitGroup
}

// New creates a Listener. ttl is the Route Pass TTL used to compute a
// newly-denylisted entry's expires_at (event_time + ttl).
func New(
	access AccessLookup,
	devices DeviceLookup,
	denyStore DenylistStore,
	optimizer Optimizer,
	builder CommandBuilder,
	sink unicast.Sink,
	ttl time.Duration,
	log *slog.Logger,
) *Listener {
	return &Listener{
		access:    access,
		devices:   devices,
		denyStore: denyStore,
		optimizer: optimizer,
		builder:   builder,
		sink:      sink,
		ttl:       ttl,
		log:       log,
		workers:   make(map[string]chan func(context.Context)),
	}
}

// Dispatch routes an event to the worker(s) serializing its affected
// facilities. It returns once the work is enqueued, not once it completes —
// per-facility ordering is enforced by the worker goroutine, not the caller.
func (l *Listener) Dispatch(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case TenantUnassigned:
		l.submit(e.FacilityID, func(ctx context.Context) { l.processUnassigned(ctx, e) })
		return nil
	case TenantAssigned:
		l.submit(e.FacilityID, func(ctx context.Context) { l.processAssigned(ctx, e) })
		return nil
	case KeySharingRevoked:
		l.submit(e.FacilityID, func(ctx context.Context) { l.processKeySharingRevoked(ctx, e) })
		return nil
	case UserDeactivated:
		return l.dispatchUserDeactivated(ctx, e)
	default:
		return fmt.Errorf("cascade: unknown event type %T", ev)
	}
}

// Close drains and stops every per-facility worker. Callers should stop
// feeding Dispatch before calling Close.
func (l *Listener) Close() {
	l.mu.Lock()
	for _, ch := range l.workers {
		close(ch)
	}
	l.workers = make(map[string]chan func(context.Context))
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) submit(facilityID string, work func(context.Context)) {
	ch := l.workerFor(facilityID)
	ch <- work
}

func (l *Listener) workerFor(facilityID string) chan func(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ch, ok := l.workers[facilityID]; ok {
		return ch
	}
	ch := make(chan func(context.Context), facilityQueueDepth)
	l.workers[facilityID] = ch
	l.wg.Add(1)
	go l.runWorker(facilityID, ch)
	return ch
}

func (l *Listener) runWorker(facilityID string, ch chan func(context.Context)) {
	defer l.wg.Done()
	for work := range ch {
		work(context.Background())
	}
	l.log.Debug("cascade worker stopped", "facility_id", facilityID)
}

func (l *Listener) processUnassigned(ctx context.Context, e TenantUnassigned) {
	deviceIDs, err := l.devices.DeviceIDsForUnit(ctx, e.UnitID)
	if err != nil {
		l.log.Error("cascade: resolving devices for unassignment", "unit_id", e.UnitID, "error", err)
		return
	}
	source := domain.SourceUnitUnassignment
	if e.FMSSync {
		source = domain.SourceFMSSync
	}
	l.addAndMaybeUnicast(ctx, e.FacilityID, e.TenantID, deviceIDs, eventTimeOrNow(e.EventTime).Add(l.ttl), source)
}

func (l *Listener) processKeySharingRevoked(ctx context.Context, e KeySharingRevoked) {
	deviceIDs, err := l.devices.DeviceIDsForUnit(ctx, e.UnitID)
	if err != nil {
		l.log.Error("cascade: resolving devices for key sharing revocation", "unit_id", e.UnitID, "error", err)
		return
	}
	l.addAndMaybeUnicast(ctx, e.FacilityID, e.SharedWithUserID, deviceIDs, eventTimeOrNow(e.EventTime).Add(l.ttl), domain.SourceKeySharingRevocation)
}

// addAndMaybeUnicast writes one denylist row per device (required to
// succeed, per invariant 1) then, unless the optimizer says to skip it,
// builds and unicasts a single DENYLIST_ADD covering every device.
func (l *Listener) addAndMaybeUnicast(ctx context.Context, facilityID, userID string, deviceIDs []string, expiresAt time.Time, source domain.DenylistSource) {
	if len(deviceIDs) == 0 {
		return
	}
	for _, deviceID := range deviceIDs {
		err := l.denyStore.Create(ctx, domain.DenylistEntry{
			DeviceID:  deviceID,
			UserID:    userID,
			ExpiresAt: expiresAt,
			Source:    source,
			CreatedBy: "cascade",
		})
		if err != nil {
			l.log.Error("cascade: writing denylist entry, unicast suppressed for this device set",
				"device_id", deviceID, "user_id", userID, "error", err)
			return
		}
	}

	skip, err := l.optimizer.ShouldSkipAdd(ctx, userID)
	if err != nil {
		l.log.Error("cascade: consulting optimizer", "user_id", userID, "error", err)
		return
	}
	if skip {
		telemetry.DenylistCommandsSkippedTotal.WithLabelValues("DENYLIST_ADD").Inc()
		return
	}

	cmd, err := l.builder.BuildAdd(deviceIDs, []denylist.AddEntry{{Sub: userID, Exp: expiresAt.Unix()}})
	if err != nil {
		l.log.Error("cascade: building denylist_add", "user_id", userID, "error", err)
		return
	}
	if err := l.sink.UnicastToFacility(ctx, facilityID, cmd); err != nil {
		l.log.Error("cascade: unicasting denylist_add, will be reconciled by the next event",
			"facility_id", facilityID, "error", err)
		return
	}
	telemetry.DenylistCommandsSentTotal.WithLabelValues("DENYLIST_ADD").Inc()
}

func (l *Listener) processAssigned(ctx context.Context, e TenantAssigned) {
	entries, err := l.denyStore.FindByUnitsAndUser(ctx, []string{e.UnitID}, e.TenantID)
	if err != nil {
		l.log.Error("cascade: finding denylist entries for reassignment", "unit_id", e.UnitID, "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	now := time.Now()
	var deviceIDs []string
	anyLive := false
	for _, entry := range entries {
		if err := l.denyStore.Remove(ctx, entry.DeviceID, entry.UserID); err != nil {
			l.log.Error("cascade: removing denylist entry", "device_id", entry.DeviceID, "user_id", entry.UserID, "error", err)
			continue
		}
		deviceIDs = append(deviceIDs, entry.DeviceID)
		if !denylist.ShouldSkipRemove(entry, now) {
			anyLive = true
		}
	}
	if !anyLive || len(deviceIDs) == 0 {
		telemetry.DenylistCommandsSkippedTotal.WithLabelValues("DENYLIST_REMOVE").Inc()
		return
	}

	cmd, err := l.builder.BuildRemove(deviceIDs, []string{e.TenantID})
	if err != nil {
		l.log.Error("cascade: building denylist_remove", "tenant_id", e.TenantID, "error", err)
		return
	}
	if err := l.sink.UnicastToFacility(ctx, e.FacilityID, cmd); err != nil {
		l.log.Error("cascade: unicasting denylist_remove, will be reconciled by the next event",
			"facility_id", e.FacilityID, "error", err)
		return
	}
	telemetry.DenylistCommandsSentTotal.WithLabelValues("DENYLIST_REMOVE").Inc()
}

// dispatchUserDeactivated resolves the affected units/facilities up front
// (a global read, not scoped to one facility) then re-enters Dispatch-style
// per-facility submission so each facility still sees its own work in order.
// Besides denylisting the deactivated user on their own units, any invitee
// holding a live KeySharing grant on a unit where the deactivated user is
// primary is denylisted on that unit's locks too, per spec.md §4.10.
func (l *Listener) dispatchUserDeactivated(ctx context.Context, e UserDeactivated) error {
	unitIDs, err := l.access.UnitsForTenant(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("cascade: resolving units for deactivated user: %w", err)
	}

	invitees, err := l.access.InviteesForSharedUnits(ctx, e.UserID, unitIDs, eventTimeOrNow(e.EventTime))
	if err != nil {
		l.log.Error("cascade: resolving invitees for deactivated user", "user_id", e.UserID, "error", err)
		invitees = nil
	}

	for _, unitID := range unitIDs {
		facilityID, err := l.devices.FacilityIDForUnit(ctx, unitID)
		if err != nil {
			l.log.Error("cascade: resolving facility for unit", "unit_id", unitID, "error", err)
			continue
		}
		unitID, facilityID := unitID, facilityID
		unitInvitees := invitees[unitID]
		l.submit(facilityID, func(ctx context.Context) {
			deviceIDs, err := l.devices.DeviceIDsForUnit(ctx, unitID)
			if err != nil {
				l.log.Error("cascade: resolving devices for deactivation", "unit_id", unitID, "error", err)
				return
			}
			expiresAt := eventTimeOrNow(e.EventTime).Add(l.ttl)
			l.addAndMaybeUnicast(ctx, facilityID, e.UserID, deviceIDs, expiresAt, domain.SourceUserDeactivation)
			for _, inviteeID := range unitInvitees {
				l.addAndMaybeUnicast(ctx, facilityID, inviteeID, deviceIDs, expiresAt, domain.SourceKeySharingRevocation)
			}
		})
	}
	return nil
}

func eventTimeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
