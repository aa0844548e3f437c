// Package crdt implements the state-based counters used for subscriber
// balances.
//
// A balance is replicated between the edge site and the cloud ledger, both
// of which mutate it while partitioned from each other. The PN-counter
// resolves this without coordination: each replica only ever grows its own
// accumulators, and merging two states takes the pointwise maximum per
// (replica, direction). Merge is commutative, associative, and idempotent,
// so replicas converge no matter how often or in what order states are
// exchanged. See Shapiro et al., "A comprehensive study of Convergent and
// Commutative Replicated Data Types" (2011).
//
// The serialized form is JSON: {"p":{replica:count},"n":{replica:count}}.
// It is stored as an opaque blob on the owning subscriber record; this
// package is the only code that interprets it.
package crdt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FormatError reports malformed serialized counter state. It is the only
// failure mode the counters have.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string { return fmt.Sprintf("crdt: invalid state: %v", e.Err) }

func (e *FormatError) Unwrap() error { return e.Err }

// GCounter is an increment-only (grow-only) counter. Each replica owns one
// slot in the map and only ever increases it.
type GCounter struct {
	replica string
	counts  map[string]uint64
}

// NewGCounter returns an empty counter owned by replica. An empty replica
// id gets a random one; callers that persist state should pass a stable id.
func NewGCounter(replica string) *GCounter {
	if replica == "" {
		replica = uuid.NewString()
	}
	return &GCounter{replica: replica, counts: map[string]uint64{}}
}

// Replica returns the id this counter increments under.
func (g *GCounter) Replica() string { return g.replica }

// Add grows this replica's accumulator. Other replicas' slots are never
// touched.
func (g *GCounter) Add(amount uint64) {
	g.counts[g.replica] += amount
}

// Value sums every replica's contribution.
func (g *GCounter) Value() int64 {
	var total int64
	for _, v := range g.counts {
		total += int64(v)
	}
	return total
}

// Used reports whether any replica has ever incremented this counter.
func (g *GCounter) Used() bool {
	for _, v := range g.counts {
		if v != 0 {
			return true
		}
	}
	return false
}

// MergeGCounters joins two counters: per replica, the larger accumulator
// wins. The result is owned by a's replica id.
func MergeGCounters(a, b *GCounter) *GCounter {
	out := NewGCounter(a.replica)
	for r, v := range a.counts {
		out.counts[r] = v
	}
	for r, v := range b.counts {
		if v > out.counts[r] {
			out.counts[r] = v
		}
	}
	return out
}

// pnState is the JSON wire form shared with the cloud ledger.
type pnState struct {
	P map[string]uint64 `json:"p"`
	N map[string]uint64 `json:"n"`
}

// PNCounter is a counter supporting both increment and decrement: two
// GCounters, one per direction. Value may go negative (subscriber debt);
// the sign policy belongs to the caller, not the counter.
type PNCounter struct {
	p *GCounter
	n *GCounter
}

// New returns an empty PN-counter owned by replica.
func New(replica string) *PNCounter {
	g := NewGCounter(replica)
	return &PNCounter{p: g, n: NewGCounter(g.replica)}
}

// Replica returns the id this counter mutates under.
func (c *PNCounter) Replica() string { return c.p.replica }

// Increment adds amount to this replica's positive accumulator.
func (c *PNCounter) Increment(amount uint64) { c.p.Add(amount) }

// Decrement adds amount to this replica's negative accumulator.
func (c *PNCounter) Decrement(amount uint64) { c.n.Add(amount) }

// Value returns sum(increments) - sum(decrements) across all replicas
// known to this state.
func (c *PNCounter) Value() int64 { return c.p.Value() - c.n.Value() }

// Used reports whether the counter has ever been incremented or
// decremented by any replica.
func (c *PNCounter) Used() bool { return c.p.Used() || c.n.Used() }

// Serialize returns the JSON state. Round-trips exactly through
// Deserialize: no replica's contribution is lost.
func (c *PNCounter) Serialize() ([]byte, error) {
	return json.Marshal(pnState{P: c.p.counts, N: c.n.counts})
}

// Deserialize rebuilds a counter from serialized state, mutating under
// replica from here on. Malformed input (bad JSON, missing direction maps,
// negative or non-integer slots) yields a FormatError.
func Deserialize(data []byte, replica string) (*PNCounter, error) {
	var st pnState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		return nil, &FormatError{Err: err}
	}
	if st.P == nil || st.N == nil {
		return nil, &FormatError{Err: fmt.Errorf("missing %q or %q accumulator map", "p", "n")}
	}
	c := New(replica)
	for r, v := range st.P {
		c.p.counts[r] = v
	}
	for r, v := range st.N {
		c.n.counts[r] = v
	}
	return c, nil
}

// Merge joins two counter states: for every replica appearing in either,
// each direction takes the maximum of the two contributions. The result is
// owned by a's replica. Merge(a,b)==Merge(b,a), Merge(a,a)==a, and merge
// order never matters — this is what makes redundant or reordered state
// exchange harmless.
func Merge(a, b *PNCounter) *PNCounter {
	return &PNCounter{
		p: MergeGCounters(a.p, b.p),
		n: MergeGCounters(a.n, b.n),
	}
}
