package dedup

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/daviddao/edgebill/pkg/store"
)

func newTestWindow(t *testing.T, maxLen int, policy Policy) *Window {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewWindow(s, maxLen, policy)
}

func TestSeenNovelThenDuplicate(t *testing.T) {
	w := newTestWindow(t, 100, FailOpen)
	if w.Seen("sms-123") {
		t.Fatal("novel id reported as seen")
	}
	if !w.Seen("sms-123") {
		t.Fatal("duplicate id not reported as seen")
	}
}

func TestWindowEvictsFIFO(t *testing.T) {
	const maxLen = 8
	w := newTestWindow(t, maxLen, FailOpen)
	for i := 1; i <= maxLen+1; i++ {
		if w.Seen(fmt.Sprintf("id-%d", i)) {
			t.Fatalf("id-%d reported seen on first sighting", i)
		}
	}
	// id-1 aged out; the newest id is retained.
	if w.Seen("id-1") {
		t.Fatal("oldest id should have been evicted")
	}
	if !w.Seen(fmt.Sprintf("id-%d", maxLen+1)) {
		t.Fatal("newest id should still be retained")
	}
}

func TestLenStaysBounded(t *testing.T) {
	const maxLen = 10
	w := newTestWindow(t, maxLen, FailOpen)
	for i := 0; i < 4*maxLen; i++ {
		w.Seen(fmt.Sprintf("id-%d", i))
	}
	if got := w.Len(); got > maxLen {
		t.Fatalf("window retains %d ids, want <= %d", got, maxLen)
	}
}

func TestDefaultMaxLen(t *testing.T) {
	w := newTestWindow(t, 0, FailOpen)
	if w.MaxLen() != DefaultMaxLen {
		t.Fatalf("MaxLen = %d, want %d", w.MaxLen(), DefaultMaxLen)
	}
}

// brokenStorage fails every existence check, as during a storage outage.
type brokenStorage struct{}

func (brokenStorage) SeenMsgID(string, int) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenStorage) CountMsgIDs() int64 { return 0 }

func TestFailOpenAnswersUnseen(t *testing.T) {
	w := NewWindow(brokenStorage{}, 100, FailOpen)
	warned := 0
	w.Warnf = func(string, ...any) { warned++ }
	if w.Seen("id-1") {
		t.Fatal("fail-open should answer unseen during an outage")
	}
	if warned == 0 {
		t.Fatal("degraded answer should be logged")
	}
}

func TestFailClosedAnswersSeen(t *testing.T) {
	w := NewWindow(brokenStorage{}, 100, FailClosed)
	w.Warnf = func(string, ...any) {}
	if !w.Seen("id-1") {
		t.Fatal("fail-closed should answer seen during an outage")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", FailOpen, false},
		{"fail-open", FailOpen, false},
		{"open", FailOpen, false},
		{"fail-closed", FailClosed, false},
		{"closed", FailClosed, false},
		{"fail-sideways", FailOpen, true},
	}
	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPolicyString(t *testing.T) {
	if FailOpen.String() != "fail-open" || FailClosed.String() != "fail-closed" {
		t.Fatalf("policy strings: %q, %q", FailOpen, FailClosed)
	}
}
