package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// StudyPlanMode mirrors the distribution modes accepted by the planner.
type StudyPlanMode string

const (
	StudyPlanModeParallel   StudyPlanMode = "parallel"
	StudyPlanModeSequential StudyPlanMode = "sequential"
)

// StudyPlan is the persisted aggregate produced by a generation run. Each owner has at most
// one plan.
type StudyPlan struct {
	ID               string         `db:"id" json:"id"`
	OwnerID          string         `db:"owner_id" json:"owner_id"`
	CourseID         *string        `db:"course_id" json:"course_id,omitempty"`
	Name             string         `db:"name" json:"name"`
	StartDate        time.Time      `db:"start_date" json:"start_date"`
	EndDate          time.Time      `db:"end_date" json:"end_date"`
	DaysPerWeek      int            `db:"days_per_week" json:"days_per_week"`
	HoursPerDay      float64        `db:"hours_per_day" json:"hours_per_day"`
	Vacations        types.JSONText `db:"vacations" json:"vacations"`
	MinPriority      int            `db:"min_priority" json:"min_priority"`
	Mode             StudyPlanMode  `db:"mode" json:"mode"`
	SubjectIDs       pq.StringArray `db:"subject_ids" json:"subject_ids"`
	FrontOrder       pq.StringArray `db:"front_order" json:"front_order,omitempty"`
	ModuleIDs        pq.StringArray `db:"module_ids" json:"module_ids,omitempty"`
	ExcludeCompleted bool           `db:"exclude_completed" json:"exclude_completed"`
	PlaybackSpeed    float64        `db:"playback_speed" json:"playback_speed"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// VacationPeriod is the JSON shape stored in StudyPlan.Vacations.
type VacationPeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ScheduleItem is one lesson placed in a plan week.
type ScheduleItem struct {
	ID            string     `db:"id" json:"id"`
	PlanID        string     `db:"plan_id" json:"plan_id"`
	LessonID      string     `db:"lesson_id" json:"lesson_id"`
	WeekNumber    int        `db:"week_number" json:"week_number"`
	Position      int        `db:"position" json:"position"`
	Completed     bool       `db:"completed" json:"completed"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ScheduledDate *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`
}

// WeekdayDistribution stores the weekdays (0 = Sunday) a plan's items rotate through.
type WeekdayDistribution struct {
	PlanID    string        `db:"plan_id" json:"plan_id"`
	Weekdays  pq.Int64Array `db:"weekdays" json:"weekdays"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Ints converts the stored weekdays to a plain slice.
func (w *WeekdayDistribution) Ints() []int {
	if w == nil {
		return nil
	}
	out := make([]int, len(w.Weekdays))
	for i, v := range w.Weekdays {
		out[i] = int(v)
	}
	return out
}

// ScheduleItemDate is a date update produced by a recalculation.
type ScheduleItemDate struct {
	ID   string
	Date time.Time
}
