// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. Code that depends on
// the store (the cmd layer, pkg/eventlog, pkg/dedup, pkg/lease) can accept
// StoreInterface — or a narrower local interface — instead of *Store,
// enabling mock injection in tests.
package store

import (
	"time"

	"github.com/daviddao/edgebill/pkg/model"
)

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// Now returns the shared authoritative time (clock.Source).
	Now() (time.Time, error)

	// --- Events ---

	// AppendEvent persists an event and returns its seqno.
	AppendEvent(payload map[string]any) (int64, error)

	// AckEvents deletes every event with seqno <= through. Idempotent.
	AckEvents(through int64) error

	// ListPendingEvents returns up to limit unacked events, ascending.
	ListPendingEvents(limit int) ([]model.Event, error)

	// CountEvents returns the number of unacked events.
	CountEvents() int64

	// MaxSeqno returns the highest unacked seqno, or 0 if empty.
	MaxSeqno() int64

	// ResetSeqno rebases the counter so the next append yields value+1.
	ResetSeqno(value int64) error

	// DropAllEvents wipes the log without rebasing the counter.
	DropAllEvents() error

	// ModifiedSubscribers lists IMSIs with unacked activity.
	ModifiedSubscribers() ([]string, error)

	// --- Dedup window ---

	// SeenMsgID records msgid if novel, evicting past the window.
	SeenMsgID(msgid string, maxLen int) (bool, error)

	// CountMsgIDs returns the number of retained identifiers.
	CountMsgIDs() int64

	// --- Leases ---

	// AcquireLease grants or renews a lease; false if held elsewhere.
	AcquireLease(key, owner string, ttl time.Duration) (bool, error)

	// ReleaseLease releases a lease if owner holds it.
	ReleaseLease(key, owner string) (bool, error)

	// GetLease returns the lease row, or nil if the key is unknown.
	GetLease(key string) (*model.Lease, error)

	// ListLeases returns every lease row ordered by key.
	ListLeases() ([]model.Lease, error)

	// --- Subscribers ---

	// GetSubscriber returns the record, or nil if unknown.
	GetSubscriber(imsi string) (*model.Subscriber, error)

	// PutSubscriberBalance upserts the serialized balance blob.
	PutSubscriberBalance(imsi string, balance []byte) error

	// ListSubscribers returns all known subscribers ordered by IMSI.
	ListSubscribers() ([]model.Subscriber, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
