package dto

import (
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/planner"
)

// VacationRequest is an inclusive vacation interval in YYYY-MM-DD form.
type VacationRequest struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// GenerateStudyPlanRequest instructs the planner to build a new plan for the owner.
type GenerateStudyPlanRequest struct {
	OwnerID          string            `json:"owner_id" validate:"required"`
	CourseID         string            `json:"course_id"`
	Name             string            `json:"name" validate:"omitempty,max=120"`
	StartDate        string            `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string            `json:"end_date" validate:"required,datetime=2006-01-02"`
	SubjectIDs       []string          `json:"subject_ids" validate:"required,min=1,dive,required"`
	ModuleIDs        []string          `json:"module_ids" validate:"omitempty,dive,required"`
	MinPriority      int               `json:"min_priority" validate:"required,min=1"`
	Vacations        []VacationRequest `json:"vacations" validate:"omitempty,dive"`
	DaysPerWeek      int               `json:"days_per_week" validate:"required,min=1,max=7"`
	HoursPerDay      float64           `json:"hours_per_day" validate:"required,gt=0,lte=24"`
	Mode             string            `json:"mode" validate:"required,oneof=parallel sequential"`
	FrontOrder       []string          `json:"front_order" validate:"omitempty,dive,required"`
	PlaybackSpeed    float64           `json:"playback_speed" validate:"omitempty,gt=0,lte=4"`
	ExcludeCompleted bool              `json:"exclude_completed"`
}

// StudyPlanResponse bundles a plan with its items and weekday distribution.
type StudyPlanResponse struct {
	Plan          *models.StudyPlan     `json:"plan"`
	Items         []models.ScheduleItem `json:"items"`
	Weekdays      []int                 `json:"weekdays"`
	Statistics    *planner.Statistics   `json:"statistics,omitempty"`
	DatesAssigned bool                  `json:"dates_assigned"`
}

// SetWeekdaysRequest replaces the weekday distribution of a plan.
type SetWeekdaysRequest struct {
	Weekdays []int `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
}

// WeekdaysResponse returns the effective weekday distribution.
type WeekdaysResponse struct {
	PlanID       string `json:"plan_id"`
	Weekdays     []int  `json:"weekdays"`
	IsDefault    bool   `json:"is_default"`
	ItemsUpdated int    `json:"items_updated,omitempty"`
}

// RecalculateDatesResponse reports the outcome of a date recalculation.
type RecalculateDatesResponse struct {
	Success      bool `json:"success"`
	ItemsUpdated int  `json:"items_updated"`
}

// UpdateItemRequest toggles completion of a schedule item.
type UpdateItemRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

// ExportQuery selects the export format.
type ExportQuery struct {
	Format string `form:"format" json:"format"`
}
