// Package model defines the core domain types for edgebill.
//
// Edgebill keeps billing state correct on an edge site that is only
// intermittently connected to the central cloud ledger. Four primitives
// carry the whole design:
//
//   - an append-only event log with monotonic seqnos, pruned by cloud acks;
//   - a bounded dedup window that suppresses replayed inbound messages;
//   - a PN-counter CRDT for subscriber balances, merged conflict-free
//     between the edge and cloud replicas;
//   - a TTL lease lock, evaluated against a single shared time source,
//     used for singleton-job leader election among cloud workers.
//
// Everything else in the repository is plumbing around these four.
package model

import "time"

// Event is a single entry in the append-only billing event log. Seqno is
// assigned by the store at append time and strictly increases; Payload is
// an opaque key-value document (usage records, provisioning changes).
// Downstream consumers dedupe on identifiers embedded in the payload, not
// on Seqno — a retried append after an ambiguous failure legitimately
// produces a new Seqno for the same fact.
type Event struct {
	Seqno     int64          `json:"seqno"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// PayloadKeyIMSI is the payload key carrying the subscriber identity.
// Events holding it count toward ModifiedSubscribers.
const PayloadKeyIMSI = "imsi"

// DedupRecord is one retained inbound-message identifier. Records are
// evicted FIFO by InsertionOrder once the window exceeds its max length.
type DedupRecord struct {
	ID             string `json:"id"`
	InsertionOrder int64  `json:"insertion_order"`
}

// Lease is the persisted state of one named TTL lock. Owner is empty when
// the lease has been explicitly released; an expired lease keeps its last
// owner until someone else claims it (expiry is evaluated lazily, at the
// next lock attempt).
type Lease struct {
	Key       string    `json:"key"`
	Owner     string    `json:"owner,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Held reports whether the lease is currently owned as of now.
func (l Lease) Held(now time.Time) bool {
	return l.Owner != "" && now.Before(l.ExpiresAt)
}

// Subscriber is a locally-known subscriber account. Balance is the
// serialized PN-counter state — the store treats it as opaque bytes, only
// pkg/crdt interprets it.
type Subscriber struct {
	IMSI      string    `json:"imsi"`
	Balance   []byte    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
