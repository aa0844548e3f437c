package clock

import (
	"testing"
	"time"
)

func TestManualFrozenUntilAdvanced(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	for i := 0; i < 3; i++ {
		now, err := m.Now()
		if err != nil {
			t.Fatalf("Now: %v", err)
		}
		if !now.Equal(start) {
			t.Fatalf("manual clock moved on its own: got %v, want %v", now, start)
		}
	}
}

func TestManualAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)
	m.Advance(90 * time.Second)

	now, _ := m.Now()
	if want := start.Add(90 * time.Second); !now.Equal(want) {
		t.Fatalf("after Advance: got %v, want %v", now, want)
	}
}

func TestManualSet(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	target := time.Date(2026, 6, 15, 8, 30, 0, 0, time.UTC)
	m.Set(target)

	now, _ := m.Now()
	if !now.Equal(target) {
		t.Fatalf("after Set: got %v, want %v", now, target)
	}
}

func TestSystemReturnsUTC(t *testing.T) {
	now, err := System{}.Now()
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if now.Location() != time.UTC {
		t.Fatalf("system source should report UTC, got %v", now.Location())
	}
}
