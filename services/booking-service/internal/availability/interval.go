package availability

import "time"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps is the single overlap test shared by slot generation and conflict
// detection: [a.Start,a.End) and [b.Start,b.End) overlap iff
// a.Start < b.End && b.Start < a.End. Ranges that only touch do not overlap,
// and empty ranges overlap nothing.
func Overlaps(a, b Interval) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(iv, o) {
			return true
		}
	}
	return false
}
