// Package clock abstracts the single authoritative time source behind the
// lease lock.
//
// Lease expiry must never be compared against a per-process wall clock:
// two machines with skewed clocks would disagree about whether a lease is
// live and could both believe they are leader. Every participant instead
// routes "now" through one Source — in production the shared database's
// own clock (see pkg/store), in tests a Manual source that only moves when
// told to.
package clock

import (
	"sync"
	"time"
)

// Source returns the current authoritative time. Implementations that
// reach over the network (the DB-backed source) may fail; callers treat a
// failed read as "cannot decide", not as "expired".
type Source interface {
	Now() (time.Time, error)
}

// System reads the local process clock. Only suitable when every lock
// participant runs on the same machine.
type System struct{}

func (System) Now() (time.Time, error) { return time.Now().UTC(), nil }

// Manual is a hand-advanced source for deterministic tests. Safe for
// concurrent use.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a Manual source frozen at start.
func NewManual(start time.Time) *Manual {
	return &Manual{t: start.UTC()}
}

func (m *Manual) Now() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t, nil
}

// Advance moves the source forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

// Set pins the source to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t.UTC()
}
