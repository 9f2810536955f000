package planner

import "time"

// BuildWeeks splits [start, end] into 7-day weeks numbered from 1. The last week ends on
// end. A week touching any vacation interval, even by a single day, has zero capacity;
// partial weeks are not prorated.
func BuildWeeks(start, end time.Time, vacations []Vacation, hoursPerDay float64, studyDays int) []Week {
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil
	}
	normalized := make([]Vacation, 0, len(vacations))
	for _, v := range vacations {
		normalized = append(normalized, Vacation{Start: dateOnly(v.Start), End: dateOnly(v.End)})
	}

	weekly := hoursPerDay * float64(studyDays) * minutesPerHour
	if weekly < 0 {
		weekly = 0
	}

	var weeks []Week
	for cursor, number := start, 1; !cursor.After(end); cursor, number = cursor.AddDate(0, 0, daysPerWeek), number+1 {
		weekEnd := cursor.AddDate(0, 0, daysPerWeek-1)
		if weekEnd.After(end) {
			weekEnd = end
		}
		week := Week{Number: number, Start: cursor, End: weekEnd}
		for _, v := range normalized {
			if overlaps(cursor, weekEnd, v) {
				week.IsVacation = true
				break
			}
		}
		if !week.IsVacation {
			week.CapacityMinutes = weekly
		}
		weeks = append(weeks, week)
	}
	return weeks
}

func overlaps(weekStart, weekEnd time.Time, v Vacation) bool {
	within := func(t time.Time) bool { return !t.Before(v.Start) && !t.After(v.End) }
	if within(weekStart) || within(weekEnd) {
		return true
	}
	return !v.Start.Before(weekStart) && !v.End.After(weekEnd)
}

// TotalCapacity sums the capacity of every week in minutes.
func TotalCapacity(weeks []Week) float64 {
	var total float64
	for _, w := range weeks {
		total += w.CapacityMinutes
	}
	return total
}

// UsefulWeeks counts weeks that are not vacation weeks.
func UsefulWeeks(weeks []Week) int {
	count := 0
	for _, w := range weeks {
		if !w.IsVacation {
			count++
		}
	}
	return count
}
