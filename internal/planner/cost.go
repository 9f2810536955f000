package planner

// LessonCost converts a base duration into study effort minutes:
// (duration / speed) * StudyOverheadFactor.
func LessonCost(durationMinutes *float64, playbackSpeed float64) float64 {
	duration := DefaultLessonMinutes
	if durationMinutes != nil {
		duration = *durationMinutes
	}
	if playbackSpeed <= 0 {
		playbackSpeed = 1
	}
	return duration / playbackSpeed * StudyOverheadFactor
}

// ApplyCost returns a copy of items with Cost filled in.
func ApplyCost(items []ContentItem, playbackSpeed float64) []ContentItem {
	out := make([]ContentItem, len(items))
	for i, item := range items {
		item.Cost = LessonCost(item.DurationMinutes, playbackSpeed)
		out[i] = item
	}
	return out
}

// TotalCost sums item costs.
func TotalCost(items []ContentItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Cost
	}
	return total
}
