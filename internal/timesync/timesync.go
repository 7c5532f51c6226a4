// Package timesync builds the signed secure-time packets locks use to
// reject replayed or stale commands (spec.md §4.2).
package timesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/signing"
	"github.com/skatamatic/blulok-cloud/internal/unicast"
)

// Packet is the payload signed for a secure-time broadcast or per-lock
// startup sync.
type Packet struct {
	CmdType string `json:"cmd_type"`
	TS      int64  `json:"ts"`
	LockID  string `json:"lock_id,omitempty"`
}

// Builder signs secure-time packets with the operator key.
type Builder struct {
	signer *signing.Service
}

// New creates a time-sync Builder.
func New(signer *signing.Service) *Builder {
	return &Builder{signer: signer}
}

const cmdTypeSecureTimeSync = "SECURE_TIME_SYNC"

// Broadcast signs a facility-wide secure-time packet carrying no lock_id.
func (b *Builder) Broadcast() (token string, err error) {
	return b.build("")
}

// ForLock signs a secure-time packet scoped to one lock's startup sync.
func (b *Builder) ForLock(lockID string) (token string, err error) {
	return b.build(lockID)
}

func (b *Builder) build(lockID string) (string, error) {
	packet := Packet{
		CmdType: cmdTypeSecureTimeSync,
		TS:      time.Now().Unix(),
		LockID:  lockID,
	}
	token, _, _, err := b.signer.Sign(packet, time.Minute)
	if err != nil {
		return "", err
	}
	return token, nil
}

// FacilityLookup is the capability the broadcast loop needs to learn which
// facilities to reach, per spec.md §9's "declared constructor dependencies"
// design note. *store.AccessStore satisfies it.
type FacilityLookup interface {
	AllFacilityIDs(ctx context.Context) ([]string, error)
}

// Run broadcasts a fresh secure-time packet to every facility on a ticker
// until ctx is cancelled, per spec.md §4.2's broadcast entry point.
// Grounded on the pruner's ticker-driven Run loop
// (internal/pruner/pruner.go), generalized from one sweep to a fan-out
// unicast per facility.
func (b *Builder) Run(ctx context.Context, facilities FacilityLookup, sink unicast.Sink, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcastAll(ctx, facilities, sink, log)
		}
	}
}

func (b *Builder) broadcastAll(ctx context.Context, facilities FacilityLookup, sink unicast.Sink, log *slog.Logger) {
	token, err := b.Broadcast()
	if err != nil {
		log.Error("timesync: signing broadcast packet", "error", err)
		return
	}

	facilityIDs, err := facilities.AllFacilityIDs(ctx)
	if err != nil {
		log.Error("timesync: listing facilities", "error", err)
		return
	}

	for _, facilityID := range facilityIDs {
		if err := sink.UnicastToFacility(ctx, facilityID, token); err != nil {
			log.Error("timesync: unicasting broadcast", "facility_id", facilityID, "error", err)
		}
	}
}
