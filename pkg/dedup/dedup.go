// Package dedup is the bounded idempotency window for inbound message
// identifiers.
//
// This is a bounded-approximate guard, not an exact one: it is correct for
// the most recent maxLen distinct identifiers and will under-report
// duplicates older than that. The bound is deliberate — unbounded growth
// is unacceptable on constrained edge hardware — so do not "fix" it.
// Eviction is FIFO by insertion order, not by time or content.
package dedup

import (
	"fmt"
	"log"
)

// DefaultMaxLen is the window size the edge sites run with.
const DefaultMaxLen = 5000

// Policy decides what Seen answers when the storage existence check fails.
// Failing open risks reprocessing a duplicate during an outage; failing
// closed risks silently dropping a legitimate new event. The shipped
// default is FailOpen; under FailClosed the suppressed event is gone for
// good, so only choose it where reprocessing is the worse outcome.
type Policy int

const (
	// FailOpen treats an unverifiable identifier as unseen.
	FailOpen Policy = iota
	// FailClosed treats an unverifiable identifier as seen.
	FailClosed
)

func (p Policy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case FailClosed:
		return "fail-closed"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps the config spelling to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-open", "open":
		return FailOpen, nil
	case "fail-closed", "closed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("dedup: unknown policy %q", s)
}

// Storage is the slice of the store the window needs. SeenMsgID must
// check, record, and evict in one atomic round trip.
type Storage interface {
	SeenMsgID(msgid string, maxLen int) (bool, error)
	CountMsgIDs() int64
}

// Window suppresses reprocessing of recently-seen inbound identifiers.
type Window struct {
	s      Storage
	maxLen int
	policy Policy

	// Warnf receives the degradation warning when storage fails and the
	// policy answer is substituted. Defaults to the standard logger.
	Warnf func(format string, args ...any)
}

// NewWindow returns a window retaining at most maxLen identifiers
// (DefaultMaxLen if maxLen <= 0).
func NewWindow(s Storage, maxLen int, policy Policy) *Window {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Window{s: s, maxLen: maxLen, policy: policy, Warnf: log.Printf}
}

// MaxLen returns the retention bound.
func (w *Window) MaxLen() int { return w.maxLen }

// Policy returns the configured failure policy.
func (w *Window) Policy() Policy { return w.policy }

// Seen reports whether id was seen within the window. A novel id is
// recorded as a side effect, evicting identifiers older than the bound.
// Seen never fails: on a storage error it logs a warning and answers per
// the configured policy, keeping the site processing best-effort instead
// of halting billing.
func (w *Window) Seen(id string) bool {
	seen, err := w.s.SeenMsgID(id, w.maxLen)
	if err != nil {
		w.Warnf("dedup: existence check for %q failed (%v); answering %s", id, err, w.policy)
		return w.policy == FailClosed
	}
	return seen
}

// Len returns the number of identifiers currently retained.
func (w *Window) Len() int64 { return w.s.CountMsgIDs() }
