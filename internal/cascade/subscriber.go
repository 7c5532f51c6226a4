package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel external collaborators
// (unit/tenant CRUD, the FMS sync engine) publish cascade events to.
const DefaultChannel = "blulok:cascade-events"

// wireEvent is the on-the-wire envelope published to the Redis channel; kind
// selects which of the four typed Event variants to decode.
type wireEvent struct {
	Kind             string    `json:"kind"`
	TenantID         string    `json:"tenant_id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	SharedWithUserID string    `json:"shared_with_user_id,omitempty"`
	UnitID           string    `json:"unit_id,omitempty"`
	FacilityID       string    `json:"facility_id,omitempty"`
	FMSSync          bool      `json:"fms_sync,omitempty"`
	EventTime        time.Time `json:"event_time,omitempty"`
}

func (w wireEvent) toEvent() (Event, error) {
	switch w.Kind {
	case "tenant_unassigned":
		return TenantUnassigned{TenantID: w.TenantID, UnitID: w.UnitID, FacilityID: w.FacilityID, FMSSync: w.FMSSync, EventTime: w.EventTime}, nil
	case "tenant_assigned":
		return TenantAssigned{TenantID: w.TenantID, UnitID: w.UnitID, FacilityID: w.FacilityID}, nil
	case "key_sharing_revoked":
		return KeySharingRevoked{SharedWithUserID: w.SharedWithUserID, UnitID: w.UnitID, FacilityID: w.FacilityID, EventTime: w.EventTime}, nil
	case "user_deactivated":
		return UserDeactivated{UserID: w.UserID, EventTime: w.EventTime}, nil
	default:
		return nil, fmt.Errorf("unknown cascade event kind %q", w.Kind)
	}
}

// Subscriber reads cascade events off a Redis pub/sub channel and dispatches
// them to a Listener, grounded on the teacher's escalation Engine.Run loop
// (pkg/escalation/engine.go), which combines a redis subscription with a
// ticker; the pruner plays the ticker's role here instead.
type Subscriber struct {
	rdb      *redis.Client
	channel  string
	listener *Listener
	log      *slog.Logger
}

// NewSubscriber creates a Subscriber over the given channel (DefaultChannel
// unless the caller needs a different one, e.g. per-environment namespacing).
func NewSubscriber(rdb *redis.Client, channel string, listener *Listener, log *slog.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel, listener: listener, log: log}
}

// Run subscribes and dispatches events until ctx is cancelled, then closes
// the listener's workers, draining in-flight per-facility work before
// returning.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	defer s.listener.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	var wire wireEvent
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		s.log.Error("cascade: malformed event payload", "error", err)
		return
	}
	ev, err := wire.toEvent()
	if err != nil {
		s.log.Error("cascade: decoding event", "error", err)
		return
	}
	if err := s.listener.Dispatch(ctx, ev); err != nil {
		s.log.Error("cascade: dispatching event", "error", err)
	}
}
