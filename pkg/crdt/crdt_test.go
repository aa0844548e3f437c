package crdt

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

// stateOf round-trips a counter through its wire form so tests can compare
// full states, not just values.
func stateOf(t *testing.T, c *PNCounter) pnState {
	t.Helper()
	return pnState{P: c.p.counts, N: c.n.counts}
}

func sameState(t *testing.T, a, b *PNCounter) bool {
	t.Helper()
	return reflect.DeepEqual(stateOf(t, a), stateOf(t, b))
}

func TestValueEmptyCounter(t *testing.T) {
	c := New("edge-1")
	if v := c.Value(); v != 0 {
		t.Fatalf("empty counter value = %d, want 0", v)
	}
	if c.Used() {
		t.Fatal("empty counter should not report Used")
	}
}

func TestIncrementDecrement(t *testing.T) {
	c := New("edge-1")
	c.Increment(5)
	c.Increment(7)
	c.Decrement(3)
	if v := c.Value(); v != 9 {
		t.Fatalf("value = %d, want 9", v)
	}
	if !c.Used() {
		t.Fatal("mutated counter should report Used")
	}
}

func TestValueMayGoNegative(t *testing.T) {
	c := New("edge-1")
	c.Decrement(10)
	if v := c.Value(); v != -10 {
		t.Fatalf("value = %d, want -10 (debt)", v)
	}
}

func TestMutationTouchesOwnReplicaOnly(t *testing.T) {
	a := New("a")
	a.Increment(4)
	blob, err := a.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Deserialize(blob, "b")
	if err != nil {
		t.Fatal(err)
	}
	b.Increment(2)
	b.Decrement(1)
	if got := b.p.counts["a"]; got != 4 {
		t.Fatalf("b mutated a's positive slot: got %d, want 4", got)
	}
	if got := b.p.counts["b"]; got != 2 {
		t.Fatalf("b's positive slot = %d, want 2", got)
	}
	if got := b.n.counts["b"]; got != 1 {
		t.Fatalf("b's negative slot = %d, want 1", got)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	a := New("edge-1")
	a.Increment(100)
	a.Decrement(25)
	blob, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	b, err := Deserialize(blob, "cloud-1")
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !sameState(t, a, b) {
		t.Fatalf("round trip lost state: %v vs %v", stateOf(t, a), stateOf(t, b))
	}
	if b.Value() != 75 {
		t.Fatalf("round-trip value = %d, want 75", b.Value())
	}
	if b.Replica() != "cloud-1" {
		t.Fatalf("deserialized replica = %q, want cloud-1", b.Replica())
	}
}

func TestDeserializeMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"not json", "balance: 12"},
		{"missing n", `{"p":{"a":1}}`},
		{"missing p", `{"n":{"a":1}}`},
		{"negative slot", `{"p":{"a":-3},"n":{}}`},
		{"non-integer slot", `{"p":{"a":1.5},"n":{}}`},
		{"string slot", `{"p":{"a":"x"},"n":{}}`},
		{"extra field", `{"p":{},"n":{},"z":{}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tc.in), "edge-1")
			if err == nil {
				t.Fatalf("Deserialize(%q): expected error", tc.in)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Deserialize(%q): error %v is not a FormatError", tc.in, err)
			}
		})
	}
}

// randomCounter builds a counter with arbitrary accumulator state across
// several replicas, for checking the semilattice laws.
func randomCounter(rng *rand.Rand) *PNCounter {
	c := New("law-owner")
	replicas := rng.Intn(5) + 1
	for i := 0; i < replicas; i++ {
		r := fmt.Sprintf("r%d", rng.Intn(8))
		c.p.counts[r] = uint64(rng.Intn(1000))
		if rng.Intn(2) == 0 {
			c.n.counts[r] = uint64(rng.Intn(1000))
		}
	}
	return c
}

func TestMergeCommutative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b := randomCounter(rng), randomCounter(rng)
		if !sameState(t, Merge(a, b), Merge(b, a)) {
			t.Fatalf("merge(a,b) != merge(b,a) for %v, %v", stateOf(t, a), stateOf(t, b))
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		a := randomCounter(rng)
		if !sameState(t, Merge(a, a), a) {
			t.Fatalf("merge(a,a) != a for %v", stateOf(t, a))
		}
	}
}

func TestMergeAssociative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		a, b, c := randomCounter(rng), randomCounter(rng), randomCounter(rng)
		if !sameState(t, Merge(Merge(a, b), c), Merge(a, Merge(b, c))) {
			t.Fatal("merge is not associative")
		}
	}
}

// Two replicas diverge from a common ancestor, each applying a disjoint
// operation set; after merge both equal replaying the union once.
func TestDisjointOpsConverge(t *testing.T) {
	ancestor := New("edge")
	ancestor.Increment(50)
	blob, err := ancestor.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	edge, err := Deserialize(blob, "edge")
	if err != nil {
		t.Fatal(err)
	}
	cloud, err := Deserialize(blob, "cloud")
	if err != nil {
		t.Fatal(err)
	}

	edge.Increment(5)
	edge.Increment(7)
	cloud.Decrement(3)

	merged := Merge(edge, cloud)
	if merged.Value() != 59 {
		t.Fatalf("merged value = %d, want 59", merged.Value())
	}

	// Redundant re-merge of an already-seen state changes nothing.
	again := Merge(merged, cloud)
	if !sameState(t, again, merged) {
		t.Fatal("re-merging an absorbed state changed the result")
	}

	// Replaying the full operation set on one replica gives the same value.
	direct := New("edge")
	direct.Increment(50)
	direct.Increment(5)
	direct.Increment(7)
	direct.Decrement(3)
	if direct.Value() != merged.Value() {
		t.Fatalf("direct replay = %d, merged = %d", direct.Value(), merged.Value())
	}
}

func TestGCounterMerge(t *testing.T) {
	a := NewGCounter("a")
	a.Add(10)
	b := NewGCounter("b")
	b.Add(4)
	m := MergeGCounters(a, b)
	if m.Value() != 14 {
		t.Fatalf("merged gcounter value = %d, want 14", m.Value())
	}
	if m.Replica() != "a" {
		t.Fatalf("merged gcounter replica = %q, want a", m.Replica())
	}
}

func TestEmptyReplicaGetsGenerated(t *testing.T) {
	c := New("")
	if c.Replica() == "" {
		t.Fatal("expected a generated replica id")
	}
	d := New("")
	if c.Replica() == d.Replica() {
		t.Fatal("generated replica ids should be distinct")
	}
}
