// Package timeslot compares shift time intervals.
//
// Intervals are half-open: [start, end). Inputs with the endpoints swapped are
// normalised rather than rejected, so every function here is total.
package timeslot

import "time"

// DefaultGrace is the largest endpoint move that does not count as a material change
const DefaultGrace = 5 * time.Minute

// Interval is a normalised half-open time interval
type Interval struct {
	Start time.Time
	End   time.Time
}

// Normalize orders the given endpoints so that Start <= End
func Normalize(start, end time.Time) Interval {
	if end.Before(start) {
		return Interval{Start: end, End: start}
	}
	return Interval{Start: start, End: end}
}

// Overlaps reports whether the two intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) overlap
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return Normalize(aStart, aEnd).Overlaps(Normalize(bStart, bEnd))
}

// MateriallyChanged reports whether moving an interval from old to new shifts
// either endpoint by strictly more than grace
func MateriallyChanged(oldStart, oldEnd, newStart, newEnd time.Time, grace time.Duration) bool {
	before := Normalize(oldStart, oldEnd)
	after := Normalize(newStart, newEnd)

	startDiff := absDuration(after.Start.Sub(before.Start))
	endDiff := absDuration(after.End.Sub(before.End))

	return startDiff > grace || endDiff > grace
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
