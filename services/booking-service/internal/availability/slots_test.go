package availability

import (
	"testing"
	"time"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func TestGenerateSlots_MorningRule(t *testing.T) {
	blocks := []Interval{{Start: at(9, 0), End: at(12, 0)}}
	slots := GenerateSlots(blocks, 30*time.Minute, nil)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	for i, s := range slots {
		want := at(9, 0).Add(time.Duration(i) * 30 * time.Minute)
		if !s.Start.Equal(want) || !s.Available {
			t.Fatalf("slot %d: got %s available=%v, want %s available", i, s.Start.Format(time.Kitchen), s.Available, want.Format(time.Kitchen))
		}
	}
}

func TestGenerateSlots_BookedSlotUnavailable(t *testing.T) {
	blocks := []Interval{{Start: at(9, 0), End: at(12, 0)}}
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	slots := GenerateSlots(blocks, 30*time.Minute, busy)
	for _, s := range slots {
		wantAvailable := !s.Start.Equal(at(10, 0))
		if s.Available != wantAvailable {
			t.Fatalf("slot %s: available=%v, want %v", s.Start.Format(time.Kitchen), s.Available, wantAvailable)
		}
	}
}

func TestGenerateSlots_PartialOverlapsEitherDirection(t *testing.T) {
	blocks := []Interval{{Start: at(9, 0), End: at(11, 0)}}
	busy := []Interval{
		{Start: at(9, 15), End: at(9, 45)},  // inside the 09:00 and 09:30 slots
		{Start: at(10, 0), End: at(11, 30)}, // covers both later slots
	}
	slots := GenerateSlots(blocks, 30*time.Minute, busy)
	for _, s := range slots {
		if s.Available {
			t.Fatalf("slot %s should be unavailable", s.Start.Format(time.Kitchen))
		}
	}
}

func TestGenerateSlots_DropsTrailingRemainder(t *testing.T) {
	blocks := []Interval{{Start: at(9, 0), End: at(10, 15)}}
	slots := GenerateSlots(blocks, 30*time.Minute, nil)
	if len(slots) != 2 || !slots[1].End.Equal(at(10, 0)) {
		t.Fatalf("expected 2 slots ending 10:00, got %+v", slots)
	}
}

func TestGenerateSlots_KeepsBlockOrder(t *testing.T) {
	blocks := []Interval{
		{Start: at(14, 0), End: at(15, 0)},
		{Start: at(9, 0), End: at(10, 0)},
	}
	slots := GenerateSlots(blocks, time.Hour, nil)
	if len(slots) != 2 || !slots[0].Start.Equal(at(14, 0)) || !slots[1].Start.Equal(at(9, 0)) {
		t.Fatalf("expected block order to be preserved, got %+v", slots)
	}
}

func TestGenerateSlots_ZeroDuration(t *testing.T) {
	if got := GenerateSlots([]Interval{{Start: at(9, 0), End: at(10, 0)}}, 0, nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestGenerateSlots_NoAvailableSlotOverlapsBusy(t *testing.T) {
	blocks := []Interval{{Start: at(8, 0), End: at(18, 0)}}
	busy := []Interval{
		{Start: at(8, 10), End: at(8, 55)},
		{Start: at(12, 0), End: at(13, 0)},
		{Start: at(16, 45), End: at(17, 5)},
	}
	for _, d := range []time.Duration{15 * time.Minute, 20 * time.Minute, 45 * time.Minute, 90 * time.Minute} {
		for _, s := range GenerateSlots(blocks, d, busy) {
			if s.Available && OverlapsAny(Interval{Start: s.Start, End: s.End}, busy) {
				t.Fatalf("duration %s: available slot %s overlaps a booking", d, s.Start.Format(time.Kitchen))
			}
		}
	}
}

func TestFits(t *testing.T) {
	blocks := []Interval{{Start: at(9, 0), End: at(12, 0)}, {Start: at(13, 0), End: at(17, 0)}}
	if !Fits(Interval{Start: at(11, 30), End: at(12, 0)}, blocks) {
		t.Fatal("slot ending at block end should fit")
	}
	if Fits(Interval{Start: at(11, 45), End: at(12, 15)}, blocks) {
		t.Fatal("slot spilling out of a block should not fit")
	}
}
