package eventlog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/daviddao/edgebill/pkg/model"
	"github.com/daviddao/edgebill/pkg/store"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAppendAckListFlow(t *testing.T) {
	l := newTestLog(t)

	s1, err := l.Append(map[string]any{"type": "sms", "amount": 5})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	s2, err := l.Append(map[string]any{"type": "sms", "amount": 7})
	if err != nil {
		t.Fatal(err)
	}
	if s2 <= s1 {
		t.Fatalf("seqnos not increasing: %d then %d", s1, s2)
	}

	// Cloud acks the first event; only the second remains.
	if err := l.Ack(s1); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	events, err := l.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Seqno != s2 {
		t.Fatalf("after ack, list = %+v, want only seqno %d", events, s2)
	}
	if got := l.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}
}

func TestResetSeqnoRejectsNegative(t *testing.T) {
	l := newTestLog(t)
	if err := l.ResetSeqno(-1); err == nil {
		t.Fatal("expected error for negative seqno")
	}
}

func TestResetSeqnoThenAppend(t *testing.T) {
	l := newTestLog(t)
	if err := l.ResetSeqno(41); err != nil {
		t.Fatalf("ResetSeqno: %v", err)
	}
	seqno, err := l.Append(map[string]any{"type": "tick"})
	if err != nil {
		t.Fatal(err)
	}
	if seqno != 42 {
		t.Fatalf("seqno after reset = %d, want 42", seqno)
	}
}

func TestDropAll(t *testing.T) {
	l := newTestLog(t)
	l.Append(map[string]any{"n": 1})
	last, _ := l.Append(map[string]any{"n": 2})
	if err := l.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if got := l.Pending(); got != 0 {
		t.Fatalf("Pending after DropAll = %d, want 0", got)
	}
	next, _ := l.Append(map[string]any{"n": 3})
	if next <= last {
		t.Fatalf("DropAll rebased the counter: %d after %d", next, last)
	}
}

// failingStorage simulates backend unavailability for every operation.
type failingStorage struct {
	err error
}

func (f *failingStorage) AppendEvent(map[string]any) (int64, error)    { return 0, f.err }
func (f *failingStorage) AckEvents(int64) error                        { return f.err }
func (f *failingStorage) ListPendingEvents(int) ([]model.Event, error) { return nil, f.err }
func (f *failingStorage) CountEvents() int64                           { return 0 }
func (f *failingStorage) MaxSeqno() int64                              { return 0 }
func (f *failingStorage) ResetSeqno(int64) error                       { return f.err }
func (f *failingStorage) DropAllEvents() error                         { return f.err }
func (f *failingStorage) ModifiedSubscribers() ([]string, error)       { return nil, f.err }

func TestStorageFailureSurfacesAsStorageError(t *testing.T) {
	backendDown := errors.New("disk I/O error")
	l := New(&failingStorage{err: backendDown})

	if _, err := l.Append(map[string]any{"n": 1}); err == nil {
		t.Fatal("expected append error")
	} else {
		var se *StorageError
		if !errors.As(err, &se) {
			t.Fatalf("append error %v is not a StorageError", err)
		}
		if !errors.Is(err, backendDown) {
			t.Fatalf("StorageError does not wrap the cause: %v", err)
		}
	}

	for _, op := range []func() error{
		func() error { return l.Ack(1) },
		func() error { _, err := l.List(10); return err },
		func() error { return l.ResetSeqno(1) },
		func() error { return l.DropAll() },
		func() error { _, err := l.ModifiedSubscribers(); return err },
	} {
		var se *StorageError
		if err := op(); !errors.As(err, &se) {
			t.Fatalf("error %v is not a StorageError", err)
		}
	}
}
