package planner

// Statistics summarises a generated plan.
type Statistics struct {
	TotalItems           int     `json:"total_items"`
	TotalWeeks           int     `json:"total_weeks"`
	UsefulWeeks          int     `json:"useful_weeks"`
	TotalCapacityMinutes float64 `json:"total_capacity_minutes"`
	TotalCostMinutes     float64 `json:"total_cost_minutes"`
	FrontsTouched        int     `json:"fronts_touched"`
	ForcedItems          int     `json:"forced_items"`
	OverflowItems        int     `json:"overflow_items"`
}

// Summarize computes plan statistics from the week table and a distribution.
func Summarize(weeks []Week, dist *Distribution) Statistics {
	stats := Statistics{
		TotalWeeks:           len(weeks),
		UsefulWeeks:          UsefulWeeks(weeks),
		TotalCapacityMinutes: TotalCapacity(weeks),
	}
	if dist == nil {
		return stats
	}
	fronts := make(map[string]struct{})
	for _, a := range dist.Assignments {
		stats.TotalItems++
		stats.TotalCostMinutes += a.Cost
		fronts[a.FrontID] = struct{}{}
		if a.Forced {
			stats.ForcedItems++
		}
	}
	stats.FrontsTouched = len(fronts)
	stats.OverflowItems = dist.Overflow
	return stats
}
