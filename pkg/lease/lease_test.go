package lease

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/daviddao/edgebill/pkg/clock"
	"github.com/daviddao/edgebill/pkg/model"
	"github.com/daviddao/edgebill/pkg/store"
)

func newTestLock(t *testing.T) (*Lock, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clk))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), clk
}

// The election scenario: A wins, B is denied while A's lease lives, B wins
// after expiry, and A's late unlock fails silently.
func TestLeaderElectionHandover(t *testing.T) {
	l, clk := newTestLock(t)

	if !l.Lock("job", "A", time.Second) {
		t.Fatal("A should win the free lock")
	}
	if l.Lock("job", "B", time.Second) {
		t.Fatal("B should be denied while A's lease is live")
	}

	clk.Advance(1100 * time.Millisecond)
	if !l.Lock("job", "B", time.Second) {
		t.Fatal("B should win once A's lease expired")
	}
	if l.Unlock("job", "A") {
		t.Fatal("A's unlock should fail silently after losing the lease")
	}
	if !l.Unlock("job", "B") {
		t.Fatal("B should be able to release its own lease")
	}
}

func TestRenewalKeepsLeadership(t *testing.T) {
	l, clk := newTestLock(t)
	l.Lock("job", "A", time.Second)

	// Heartbeat renewals before each expiry keep B out indefinitely.
	for i := 0; i < 5; i++ {
		clk.Advance(700 * time.Millisecond)
		if !l.Lock("job", "A", time.Second) {
			t.Fatalf("renewal %d denied", i)
		}
		if l.Lock("job", "B", time.Second) {
			t.Fatalf("B grabbed the lock despite renewal %d", i)
		}
	}
}

func TestUnlockUnknownKey(t *testing.T) {
	l, _ := newTestLock(t)
	if l.Unlock("never-locked", "A") {
		t.Fatal("unlock of unknown key should return false")
	}
}

func TestWaitGrabsFreedLock(t *testing.T) {
	l, _ := newTestLock(t)
	l.Lock("job", "A", time.Minute)

	done := make(chan bool, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		done <- l.Wait(ctx, "job", "B", time.Minute)
	}()

	time.Sleep(50 * time.Millisecond)
	if !l.Unlock("job", "A") {
		t.Fatal("A unlock failed")
	}
	if got := <-done; !got {
		t.Fatal("Wait should obtain the lock once A released it")
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	l, _ := newTestLock(t)
	l.Lock("job", "A", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		done <- l.Wait(ctx, "job", "B", time.Minute)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		if got {
			t.Fatal("cancelled Wait should report failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}

func TestHolder(t *testing.T) {
	l, clk := newTestLock(t)

	lease, held, err := l.Holder("job")
	if err != nil {
		t.Fatal(err)
	}
	if lease != nil || held {
		t.Fatal("unknown key should report no lease")
	}

	l.Lock("job", "A", time.Second)
	lease, held, err = l.Holder("job")
	if err != nil {
		t.Fatal(err)
	}
	if lease == nil || lease.Owner != "A" || !held {
		t.Fatalf("holder = %+v held=%v, want A holding", lease, held)
	}

	clk.Advance(2 * time.Second)
	lease, held, err = l.Holder("job")
	if err != nil {
		t.Fatal(err)
	}
	if lease == nil || held {
		t.Fatalf("expired lease should report not held, got %+v held=%v", lease, held)
	}
}

// downStorage simulates an unreachable store.
type downStorage struct{}

func (downStorage) AcquireLease(string, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (downStorage) ReleaseLease(string, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (downStorage) GetLease(string) (*model.Lease, error) {
	return nil, errors.New("connection refused")
}
func (downStorage) Now() (time.Time, error) {
	return time.Time{}, errors.New("connection refused")
}

func TestStorageFailureDeniesQuietly(t *testing.T) {
	l := New(downStorage{})
	warned := 0
	l.Warnf = func(string, ...any) { warned++ }

	if l.Lock("job", "A", time.Second) {
		t.Fatal("unverifiable lease must not grant")
	}
	if l.Unlock("job", "A") {
		t.Fatal("unverifiable release must not report success")
	}
	if warned != 2 {
		t.Fatalf("expected 2 warnings, got %d", warned)
	}
}
