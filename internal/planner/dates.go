package planner

import (
	"sort"
	"time"
)

// Slot identifies a schedule item by its week bucket and ordinal.
type Slot struct {
	ID       string
	Week     int
	Position int
}

// DatedSlot is a Slot with its calendar date.
type DatedSlot struct {
	Slot
	Date time.Time
}

// AssignDates walks every slot in (week, position) order and hands out dates round-robin
// over the selected weekdays, starting at the first selected weekday on or after start.
// Each weekday ends up with floor(M/N) or ceil(M/N) of the M slots. Week numbers only
// define the order; they do not pin a slot to its week.
func AssignDates(slots []Slot, start time.Time, weekdays []int) ([]DatedSlot, error) {
	days, err := NormalizeWeekdays(weekdays)
	if err != nil {
		return nil, err
	}
	ordered := make([]Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Week != ordered[j].Week {
			return ordered[i].Week < ordered[j].Week
		}
		return ordered[i].Position < ordered[j].Position
	})

	cursor, idx := anchor(dateOnly(start), days)
	out := make([]DatedSlot, 0, len(ordered))
	for _, slot := range ordered {
		out = append(out, DatedSlot{Slot: slot, Date: cursor})
		next := (idx + 1) % len(days)
		cursor = advance(cursor, days[idx], days[next], next == 0)
		idx = next
	}
	return out, nil
}

// anchor finds the first selected weekday on or after start, wrapping to the next week.
func anchor(start time.Time, days []int) (time.Time, int) {
	current := int(start.Weekday())
	for i, d := range days {
		if d >= current {
			return start.AddDate(0, 0, d-current), i
		}
	}
	return start.AddDate(0, 0, daysPerWeek-current+days[0]), 0
}

// advance moves from the weekday `from` to the weekday `to`. A completed rotation always
// lands in the following week, even when a single weekday is selected.
func advance(cursor time.Time, from, to int, wrapped bool) time.Time {
	delta := to - from
	if wrapped || delta <= 0 {
		delta += daysPerWeek
	}
	return cursor.AddDate(0, 0, delta)
}
