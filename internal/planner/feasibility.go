package planner

import (
	"fmt"
	"math"
)

// InsufficientTimeError reports that the selected content does not fit the study time,
// with the figures the caller needs to suggest a fix.
type InsufficientTimeError struct {
	HoursNeeded       int     `json:"hours_needed"`
	HoursAvailable    int     `json:"hours_available"`
	HoursPerDayNeeded float64 `json:"hours_per_day_needed"`
	HoursPerDay       float64 `json:"hours_per_day"`
}

func (e *InsufficientTimeError) Error() string {
	return fmt.Sprintf("insufficient study time: need %dh, have %dh (%.1fh/day needed, %.1fh/day planned)",
		e.HoursNeeded, e.HoursAvailable, e.HoursPerDayNeeded, e.HoursPerDay)
}

// Details exposes the figures as a flat map for API envelopes.
func (e *InsufficientTimeError) Details() map[string]any {
	return map[string]any{
		"hours_needed":         e.HoursNeeded,
		"hours_available":      e.HoursAvailable,
		"hours_per_day_needed": e.HoursPerDayNeeded,
		"hours_per_day":        e.HoursPerDay,
	}
}

// CheckFeasibility returns an *InsufficientTimeError when totalCost exceeds totalCapacity.
func CheckFeasibility(totalCost, totalCapacity, hoursPerDay float64, studyDays, usefulWeeks int) error {
	if totalCost <= totalCapacity+costEpsilon {
		return nil
	}
	return NewInsufficientTimeError(totalCost, totalCapacity, hoursPerDay, studyDays, usefulWeeks)
}

// NewInsufficientTimeError computes the remediation figures for a shortfall.
func NewInsufficientTimeError(totalCost, totalCapacity, hoursPerDay float64, studyDays, usefulWeeks int) *InsufficientTimeError {
	hoursNeeded := totalCost / minutesPerHour
	var perDay float64
	if slots := usefulWeeks * studyDays; slots > 0 {
		perDay = math.Round(hoursNeeded/float64(slots)*10) / 10
	}
	return &InsufficientTimeError{
		HoursNeeded:       int(math.Ceil(hoursNeeded)),
		HoursAvailable:    int(math.Ceil(totalCapacity / minutesPerHour)),
		HoursPerDayNeeded: perDay,
		HoursPerDay:       hoursPerDay,
	}
}
