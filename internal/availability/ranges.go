package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/codr1/quadra/internal/models"
)

// Interval is a half-open [Start, End) range in minutes after midnight.
type Interval struct {
	Start int
	End   int
}

func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}

// Contains reports whether other lies entirely inside i.
func (i Interval) Contains(other Interval) bool {
	return i.Start <= other.Start && other.End <= i.End
}

// Overlaps reports whether two half-open intervals share any minute.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Subtract removes every cut from base and returns the remaining pieces in order.
func Subtract(base Interval, cuts []Interval) []Interval {
	sorted := append([]Interval(nil), cuts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Interval
	cursor := base.Start
	for _, c := range sorted {
		if c.End <= cursor || c.Start >= base.End {
			continue
		}
		if c.Start > cursor {
			out = append(out, Interval{Start: cursor, End: c.Start})
		}
		if c.End > cursor {
			cursor = c.End
		}
		if cursor >= base.End {
			break
		}
	}
	if cursor < base.End {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

// Range is one segment of a court's day.
type Range struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
	SlotID    int64  `json:"slot_id"`
}

// SlotWindow is a schedule slot reduced to its interval.
type SlotWindow struct {
	SlotID   int64
	Interval Interval
}

// BuildRanges cuts each slot at the boundaries of busy intervals. Segments
// covered by any busy interval are unavailable; adjacent segments of the same
// slot with equal availability are merged.
func BuildRanges(slots []SlotWindow, busy []Interval) []Range {
	sorted := append([]SlotWindow(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Interval.Start != sorted[j].Interval.Start {
			return sorted[i].Interval.Start < sorted[j].Interval.Start
		}
		return sorted[i].SlotID < sorted[j].SlotID
	})

	var out []Range
	for _, slot := range sorted {
		free := Subtract(slot.Interval, busy)
		cursor := slot.Interval.Start
		var segments []Range
		for _, f := range free {
			if f.Start > cursor {
				segments = appendSegment(segments, slot.SlotID, Interval{cursor, f.Start}, false)
			}
			segments = appendSegment(segments, slot.SlotID, f, true)
			cursor = f.End
		}
		if cursor < slot.Interval.End {
			segments = appendSegment(segments, slot.SlotID, Interval{cursor, slot.Interval.End}, false)
		}
		out = append(out, segments...)
	}
	return out
}

func appendSegment(segments []Range, slotID int64, iv Interval, available bool) []Range {
	if n := len(segments); n > 0 && segments[n-1].Available == available && segments[n-1].End == FormatClock(iv.Start) {
		segments[n-1].End = FormatClock(iv.End)
		return segments
	}
	return append(segments, Range{
		Start:     FormatClock(iv.Start),
		End:       FormatClock(iv.End),
		Available: available,
		SlotID:    slotID,
	})
}

// Clip keeps the part of each range that falls inside window.
func Clip(ranges []Range, window Interval) []Range {
	var out []Range
	for _, r := range ranges {
		iv, err := ParseInterval(r.Start, r.End)
		if err != nil || !Overlaps(iv, window) {
			continue
		}
		if iv.Start < window.Start {
			iv.Start = window.Start
		}
		if iv.End > window.End {
			iv.End = window.End
		}
		r.Start, r.End = FormatClock(iv.Start), FormatClock(iv.End)
		out = append(out, r)
	}
	return out
}

// ParseClock converts HH:MM to minutes after midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse(models.TimeLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseInterval parses a start/end pair and requires start < end.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	if s >= e {
		return Interval{}, fmt.Errorf("start %s must be before end %s", start, end)
	}
	return Interval{Start: s, End: e}, nil
}

// Instant returns the moment a local date and time of day happen in loc.
func Instant(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout+" "+models.TimeLayout, date+" "+clock, loc)
}
