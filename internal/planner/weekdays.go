package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNoWeekdays is returned when a weekday distribution is empty.
	ErrNoWeekdays = errors.New("at least one weekday must be selected")
	// ErrWeekdayOutOfRange is returned for values outside 0 (Sunday) to 6 (Saturday).
	ErrWeekdayOutOfRange = errors.New("weekday must be between 0 and 6")
)

// NormalizeWeekdays validates, de-duplicates and sorts a weekday selection.
func NormalizeWeekdays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, ErrNoWeekdays
	}
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < int(time.Sunday) || d > int(time.Saturday) {
			return nil, fmt.Errorf("%w: %d", ErrWeekdayOutOfRange, d)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out, nil
}

// DefaultWeekdays derives the initial weekday selection from the weekly study-day count.
func DefaultWeekdays(daysPerWeek int) []int {
	switch daysPerWeek {
	case 5:
		return []int{1, 2, 3, 4, 5}
	case 4:
		return []int{1, 2, 4, 5}
	case 3:
		return []int{1, 3, 5}
	case 2:
		return []int{1, 4}
	default:
		return []int{1}
	}
}
