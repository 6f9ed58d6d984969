package scheduler

import (
	"testing"
	"time"
)

func TestManualOnce(t *testing.T) {
	ms := NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	ms.Once(time.Minute, func() { fired++ })

	ms.Advance(59 * time.Second)
	if fired != 0 {
		t.Fatal("task fired before its due time")
	}

	ms.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("expected one fire, got %d", fired)
	}

	ms.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("one-shot task fired again, total %d", fired)
	}
}

func TestManualCancel(t *testing.T) {
	ms := NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	handle := ms.Once(time.Minute, func() { fired++ })
	handle.Cancel()

	ms.Advance(time.Hour)
	if fired != 0 {
		t.Fatalf("cancelled task fired %d times", fired)
	}
}

func TestManualRepeat(t *testing.T) {
	ms := NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	fired := 0
	handle := ms.Repeat(time.Minute, func() { fired++ })

	ms.Advance(5 * time.Minute)
	if fired != 5 {
		t.Fatalf("expected 5 fires over 5 intervals, got %d", fired)
	}

	handle.Cancel()
	ms.Advance(5 * time.Minute)
	if fired != 5 {
		t.Fatalf("repeating task fired after cancel, total %d", fired)
	}
}

func TestManualFiresInDueOrder(t *testing.T) {
	ms := NewManual(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	var order []string
	ms.Once(2*time.Minute, func() { order = append(order, "second") })
	ms.Once(time.Minute, func() { order = append(order, "first") })

	ms.Advance(5 * time.Minute)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected due-order firing, got %v", order)
	}
}

func TestManualAdvancesClockToFireTime(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ms := NewManual(start)

	var seen time.Time
	ms.Once(time.Minute, func() { seen = ms.Now() })

	ms.Advance(time.Hour)

	if !seen.Equal(start.Add(time.Minute)) {
		t.Fatalf("expected task to observe its due time, got %v", seen)
	}
	if !ms.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("expected clock at advance target, got %v", ms.Now())
	}
}
