package models

// LessonRow is the flattened catalog join of lesson, module, front and subject.
type LessonRow struct {
	LessonID        string   `db:"lesson_id" json:"lesson_id"`
	LessonName      string   `db:"lesson_name" json:"lesson_name"`
	LessonSequence  int      `db:"lesson_sequence" json:"lesson_sequence"`
	DurationMinutes *float64 `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Priority        int      `db:"priority" json:"priority"`
	ModuleID        string   `db:"module_id" json:"module_id"`
	ModuleName      string   `db:"module_name" json:"module_name"`
	ModuleSequence  int      `db:"module_sequence" json:"module_sequence"`
	FrontID         string   `db:"front_id" json:"front_id"`
	FrontName       string   `db:"front_name" json:"front_name"`
	SubjectID       string   `db:"subject_id" json:"subject_id"`
	SubjectName     string   `db:"subject_name" json:"subject_name"`
}

// LessonFilter narrows the catalog query.
type LessonFilter struct {
	SubjectIDs  []string
	CourseID    string
	ModuleIDs   []string
	MinPriority int
}
