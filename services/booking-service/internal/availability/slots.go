package availability

import "time"

type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// GenerateSlots walks each block from its start in steps of duration and
// emits every slot that fits inside the block, flagged unavailable when it
// overlaps a busy interval. Slots keep block order; they are not re-sorted
// across blocks.
func GenerateSlots(blocks []Interval, duration time.Duration, busy []Interval) []Slot {
	if duration <= 0 {
		return nil
	}
	var out []Slot
	for _, b := range blocks {
		for t := b.Start; !t.Add(duration).After(b.End); t = t.Add(duration) {
			slot := Interval{Start: t, End: t.Add(duration)}
			out = append(out, Slot{
				Start:     slot.Start,
				End:       slot.End,
				Available: !OverlapsAny(slot, busy),
			})
		}
	}
	return out
}

// Fits reports whether iv lies entirely inside one of the blocks.
func Fits(iv Interval, blocks []Interval) bool {
	for _, b := range blocks {
		if !iv.Start.Before(b.Start) && !iv.End.After(b.End) {
			return true
		}
	}
	return false
}
