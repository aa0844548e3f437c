// Package eventlog is the durable ordered log of billing events awaiting
// shipment to the cloud ledger.
//
// Every inbound event with a monetary or provisioning effect is appended
// here with a monotonic seqno and held until the cloud acknowledges it,
// at which point ack-pruning deletes everything at or below the acked
// seqno. Appends are facts, not commands: a retried append after an
// ambiguous failure yields a new seqno for the same fact, and the cloud
// dedupes on identifiers embedded in the payload.
package eventlog

import (
	"fmt"

	"github.com/daviddao/edgebill/pkg/model"
)

// StorageError reports that the backing store was unavailable or failed
// mid-operation. Append and Ack are safe to retry after one; ResetSeqno is
// not — re-verify the log state first.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("eventlog: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage is the slice of the store the log needs.
type Storage interface {
	AppendEvent(payload map[string]any) (int64, error)
	AckEvents(through int64) error
	ListPendingEvents(limit int) ([]model.Event, error)
	CountEvents() int64
	MaxSeqno() int64
	ResetSeqno(value int64) error
	DropAllEvents() error
	ModifiedSubscribers() ([]string, error)
}

// Log is the durable ordered event log.
type Log struct {
	s Storage
}

// New returns a Log over the given storage.
func New(s Storage) *Log { return &Log{s: s} }

// Append persists payload and returns its assigned seqno. Seqnos strictly
// increase across all concurrent callers.
func (l *Log) Append(payload map[string]any) (int64, error) {
	seqno, err := l.s.AppendEvent(payload)
	if err != nil {
		return 0, &StorageError{Op: "append", Err: err}
	}
	return seqno, nil
}

// Ack deletes every event with seqno <= through. Idempotent and
// all-or-nothing: a failed ack leaves the log unchanged.
func (l *Log) Ack(through int64) error {
	if err := l.s.AckEvents(through); err != nil {
		return &StorageError{Op: fmt.Sprintf("ack %d", through), Err: err}
	}
	return nil
}

// List returns the lowest-seqno pending events in ascending order, at most
// limit of them. Each call is a fresh snapshot of the current state, not a
// resumed cursor.
func (l *Log) List(limit int) ([]model.Event, error) {
	events, err := l.s.ListPendingEvents(limit)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return events, nil
}

// Pending returns the number of events awaiting ack.
func (l *Log) Pending() int64 { return l.s.CountEvents() }

// MaxSeqno returns the highest pending seqno, or 0 if the log is empty.
func (l *Log) MaxSeqno() int64 { return l.s.MaxSeqno() }

// ResetSeqno rebases the seqno counter so the next Append yields value+1.
// Administrative only (disaster recovery, site re-clone): it runs in an
// exclusive log-wide critical section and must not be retried blindly on
// failure — re-verify the counter state first.
func (l *Log) ResetSeqno(value int64) error {
	if value < 0 {
		return fmt.Errorf("eventlog: reset to negative seqno %d", value)
	}
	if err := l.s.ResetSeqno(value); err != nil {
		return &StorageError{Op: fmt.Sprintf("reset seqno to %d", value), Err: err}
	}
	return nil
}

// DropAll wipes every pending event without rebasing the counter, so later
// appends continue the old numbering. Administrative only.
func (l *Log) DropAll() error {
	if err := l.s.DropAllEvents(); err != nil {
		return &StorageError{Op: "drop all", Err: err}
	}
	return nil
}

// ModifiedSubscribers lists the subscriber IMSIs with unsynced activity in
// the log.
func (l *Log) ModifiedSubscribers() ([]string, error) {
	imsis, err := l.s.ModifiedSubscribers()
	if err != nil {
		return nil, &StorageError{Op: "modified subscribers", Err: err}
	}
	return imsis, nil
}
