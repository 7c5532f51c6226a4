package pruner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeStore struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.removed, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_ReturnsRemovedCount(t *testing.T) {
	store := &fakeStore{removed: 3}
	p := New(store, time.Minute, testLogger())

	n, err := p.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if n != 3 {
		t.Errorf("Sweep() = %d, want 3", n)
	}
}

func TestSweep_PropagatesError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	p := New(store, time.Minute, testLogger())

	_, err := p.Sweep(context.Background())
	if err == nil {
		t.Fatal("Sweep() succeeded despite store error")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	p := New(store, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if store.calls == 0 {
		t.Error("expected at least one sweep tick before cancellation")
	}
}
