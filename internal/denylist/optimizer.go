package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

// IssuanceLookup is the capability the optimizer needs from the Route Pass
// issuance audit trail, per spec.md §9's "declared constructor dependencies"
// design note. *store.RoutePassStore satisfies it; tests use a fake.
type IssuanceLookup interface {
	HasLiveIssuance(ctx context.Context, userID string) (bool, error)
}

// Optimizer decides when a denylist command would be wasted uplink, per
// spec.md §4.9. The store is always written regardless of its verdicts;
// only the decision to unicast a command is affected.
type Optimizer struct {
	issuances IssuanceLookup
}

// NewOptimizer creates an Optimizer.
func NewOptimizer(issuances IssuanceLookup) *Optimizer {
	return &Optimizer{issuances: issuances}
}

// ShouldSkipAdd reports whether a DENYLIST_ADD for this user can be skipped:
// true iff the user holds no recorded Route Pass issuance with
// expires_at > now, meaning they cannot currently present a token to any
// lock and would re-check state on their next authentication anyway.
func (o *Optimizer) ShouldSkipAdd(ctx context.Context, userID string) (bool, error) {
	live, err := o.issuances.HasLiveIssuance(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking live route pass issuance: %w", err)
	}
	return !live, nil
}

// ShouldSkipRemove reports whether a DENYLIST_REMOVE for this entry can be
// skipped: true iff the entry has already expired, since the pruner would
// have cleaned it up anyway.
func ShouldSkipRemove(entry domain.DenylistEntry, now time.Time) bool {
	return !entry.ExpiresAt.After(now)
}
