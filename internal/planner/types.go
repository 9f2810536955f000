package planner

import "time"

// Mode selects how lessons from different fronts share a week.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Valid reports whether m is a known distribution mode.
func (m Mode) Valid() bool {
	return m == ModeParallel || m == ModeSequential
}

const (
	// StudyOverheadFactor scales adjusted viewing time into total study effort.
	StudyOverheadFactor = 1.5
	// DefaultLessonMinutes replaces a missing lesson duration.
	DefaultLessonMinutes = 10.0

	minutesPerHour = 60.0
	daysPerWeek    = 7
	costEpsilon    = 1e-9
)

// Vacation is an inclusive date interval with no study time.
type Vacation struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Week is one 7-day bucket of the plan.
type Week struct {
	Number          int       `json:"number"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	IsVacation      bool      `json:"is_vacation"`
	CapacityMinutes float64   `json:"capacity_minutes"`
}

// ContentItem is a schedulable lesson with its catalog context.
type ContentItem struct {
	LessonID        string   `json:"lesson_id"`
	LessonName      string   `json:"lesson_name"`
	LessonSequence  int      `json:"lesson_sequence"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Priority        int      `json:"priority"`
	ModuleID        string   `json:"module_id"`
	ModuleName      string   `json:"module_name"`
	ModuleSequence  int      `json:"module_sequence"`
	FrontID         string   `json:"front_id"`
	FrontName       string   `json:"front_name"`
	SubjectID       string   `json:"subject_id"`
	SubjectName     string   `json:"subject_name"`
	Cost            float64  `json:"cost"`
}

// FrontBucket groups the lessons of one front in study order.
type FrontBucket struct {
	FrontID   string
	FrontName string
	Items     []ContentItem
	TotalCost float64
	Weight    float64
}

// Assignment places one lesson at an ordinal position inside a week.
type Assignment struct {
	LessonID string
	FrontID  string
	Week     int
	Position int
	Cost     float64
	Forced   bool
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
