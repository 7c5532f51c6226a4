// Package pruner implements the Pruner (C11): a single scheduled worker
// deleting expired denylist entries, plus the on-demand operation
// administrators can trigger directly, per spec.md §4.11. Grounded on the
// teacher's RunScheduleTopUpLoop/ScheduleTopUp ticker pattern
// (pkg/roster/worker.go), generalized from a per-tenant top-up to a single
// global sweep.
package pruner

import (
	"context"
	"log/slog"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/telemetry"
)

// Store is the capability this pruner needs from the denylist table, per
// spec.md §9's "declared constructor dependencies" design note.
// *denylist.Store satisfies it; tests use a fake.
type Store interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// Pruner periodically deletes denylist entries past their expiry.
type Pruner struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
}

// New creates a Pruner. interval is the sweep period (default 5 minutes).
func New(store Store, interval time.Duration, log *slog.Logger) *Pruner {
	return &Pruner{store: store, interval: interval, log: log}
}

// Run sweeps on a ticker until ctx is cancelled. Failures are logged; the
// next tick retries.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil {
				p.log.Error("pruner: sweep failed", "error", err)
			}
		}
	}
}

// Sweep deletes every denylist entry with expires_at <= now and returns the
// count removed. Exposed directly for the on-demand admin operation.
func (p *Pruner) Sweep(ctx context.Context) (int64, error) {
	removed, err := p.store.PruneExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		telemetry.PrunerRemovedTotal.Add(float64(removed))
		p.log.Info("pruner: removed expired denylist entries", "count", removed)
	}
	return removed, nil
}
