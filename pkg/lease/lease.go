// Package lease is the TTL lock used for leader election among cloud
// workers racing to run singleton scheduled jobs.
//
// There is no background reaper: expiry is evaluated lazily, at the next
// lock attempt, and always against the store's shared clock — never the
// caller's local clock, which would reintroduce skew-induced double
// leadership. A process is leader exactly while it keeps renewing before
// the ttl elapses; the lock only reports ownership, it does not start or
// stop the job itself (fencing belongs to the service-lifecycle layer).
package lease

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/daviddao/edgebill/pkg/model"
)

// Storage is the slice of the store the lock needs. Now is the shared
// authoritative clock every expiry comparison routes through.
type Storage interface {
	AcquireLease(key, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(key, owner string) (bool, error)
	GetLease(key string) (*model.Lease, error)
	Now() (time.Time, error)
}

// Lock is a named TTL lease lock over shared storage.
type Lock struct {
	s Storage

	// Warnf receives degradation warnings when storage fails under an
	// operation whose contract is a bare boolean. Defaults to the
	// standard logger.
	Warnf func(format string, args ...any)
}

// New returns a Lock over the given storage.
func New(s Storage) *Lock {
	return &Lock{s: s, Warnf: log.Printf}
}

// Lock attempts to take or renew the lease. It grants when the key is
// unheld, released, expired, or already held by owner (a heartbeat
// renewal), extending expires_at = now + ttl; a live lease under another
// owner denies with no side effects. Never raises: a storage failure is
// logged and reported as a denial, since an unverifiable lease must not
// make anyone leader.
func (l *Lock) Lock(key, owner string, ttl time.Duration) bool {
	ok, err := l.s.AcquireLease(key, owner, ttl)
	if err != nil {
		l.Warnf("lease: acquire %q for %q failed (%v); treating as denied", key, owner, err)
		return false
	}
	return ok
}

// Unlock releases the lease if owner currently holds it and reports
// whether the release took effect. Releasing a lease someone else has
// since claimed fails silently with false.
func (l *Lock) Unlock(key, owner string) bool {
	ok, err := l.s.ReleaseLease(key, owner)
	if err != nil {
		l.Warnf("lease: release %q for %q failed (%v)", key, owner, err)
		return false
	}
	return ok
}

// Wait polls Lock with backoff until it grants or ctx is done, returning
// whether the lease was obtained. The budget is entirely the caller's:
// there is no implicit timeout, and cancellation simply stops the polling.
func (l *Lock) Wait(ctx context.Context, key, owner string, ttl time.Duration) bool {
	const (
		baseDelay = 250 * time.Millisecond
		maxDelay  = 2 * time.Second
	)
	delay := baseDelay
	for {
		if l.Lock(key, owner, ttl) {
			return true
		}
		// Backoff with jitter so stampeding workers spread out.
		sleep := delay + time.Duration(rand.Int63n(int64(baseDelay)))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(sleep):
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Holder returns the current lease row for key (nil if never locked) and
// whether it is held right now per the shared clock.
func (l *Lock) Holder(key string) (*model.Lease, bool, error) {
	lease, err := l.s.GetLease(key)
	if err != nil {
		return nil, false, err
	}
	if lease == nil {
		return nil, false, nil
	}
	now, err := l.s.Now()
	if err != nil {
		return lease, false, err
	}
	return lease, lease.Held(now), nil
}
