package denylist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skatamatic/blulok-cloud/internal/domain"
)

type fakeIssuanceLookup struct {
	live bool
	err  error
}

func (f *fakeIssuanceLookup) HasLiveIssuance(ctx context.Context, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.live, nil
}

func TestShouldSkipAdd_SkipsWhenNoLiveIssuance(t *testing.T) {
	o := NewOptimizer(&fakeIssuanceLookup{live: false})

	skip, err := o.ShouldSkipAdd(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ShouldSkipAdd() error: %v", err)
	}
	if !skip {
		t.Error("ShouldSkipAdd() = false, want true when the user holds no live issuance")
	}
}

func TestShouldSkipAdd_DoesNotSkipWhenLiveIssuance(t *testing.T) {
	o := NewOptimizer(&fakeIssuanceLookup{live: true})

	skip, err := o.ShouldSkipAdd(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ShouldSkipAdd() error: %v", err)
	}
	if skip {
		t.Error("ShouldSkipAdd() = true, want false when the user holds a live issuance")
	}
}

func TestShouldSkipAdd_PropagatesError(t *testing.T) {
	o := NewOptimizer(&fakeIssuanceLookup{err: errors.New("db down")})

	_, err := o.ShouldSkipAdd(context.Background(), "user-1")
	if err == nil {
		t.Fatal("ShouldSkipAdd() succeeded despite lookup error")
	}
}

func TestShouldSkipRemove(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		entry domain.DenylistEntry
		want  bool
	}{
		{"already expired", domain.DenylistEntry{ExpiresAt: now.Add(-time.Minute)}, true},
		{"expires exactly now", domain.DenylistEntry{ExpiresAt: now}, true},
		{"still live", domain.DenylistEntry{ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSkipRemove(tt.entry, now); got != tt.want {
				t.Errorf("ShouldSkipRemove() = %v, want %v", got, tt.want)
			}
		})
	}
}
