package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// ContentCatalogRepository reads lessons and progress from the course catalog.
type ContentCatalogRepository struct {
	db *sqlx.DB
}

// NewContentCatalogRepository constructs repository.
func NewContentCatalogRepository(db *sqlx.DB) *ContentCatalogRepository {
	return &ContentCatalogRepository{db: db}
}

// ListLessons returns schedulable lessons of the selected subjects. Lessons with priority
// 0 are never returned.
func (r *ContentCatalogRepository) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.LessonRow, error) {
	if len(filter.SubjectIDs) == 0 {
		return nil, nil
	}
	builder := strings.Builder{}
	builder.WriteString(`SELECT l.id AS lesson_id, l.name AS lesson_name, l.sequence AS lesson_sequence,
       l.duration_minutes, l.priority, m.id AS module_id, m.name AS module_name, m.sequence AS module_sequence,
       f.id AS front_id, f.name AS front_name, s.id AS subject_id, s.name AS subject_name
FROM lessons l
JOIN modules m ON m.id = l.module_id
JOIN fronts f ON f.id = m.front_id
JOIN subjects s ON s.id = f.subject_id`)

	args := []interface{}{pq.Array(filter.SubjectIDs)}
	conditions := []string{"s.id = ANY($1)", "l.priority <> 0"}
	if filter.MinPriority > 0 {
		args = append(args, filter.MinPriority)
		conditions = append(conditions, fmt.Sprintf("l.priority >= $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("m.course_id = $%d", len(args)))
	}
	if len(filter.ModuleIDs) > 0 {
		args = append(args, pq.Array(filter.ModuleIDs))
		conditions = append(conditions, fmt.Sprintf("m.id = ANY($%d)", len(args)))
	}

	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(" ORDER BY s.name, f.name, m.sequence, l.sequence")

	var rows []models.LessonRow
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list catalog lessons: %w", err)
	}
	return rows, nil
}

// LessonsByIDs returns catalog rows for the given lessons regardless of priority.
func (r *ContentCatalogRepository) LessonsByIDs(ctx context.Context, ids []string) ([]models.LessonRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT l.id AS lesson_id, l.name AS lesson_name, l.sequence AS lesson_sequence,
       l.duration_minutes, l.priority, m.id AS module_id, m.name AS module_name, m.sequence AS module_sequence,
       f.id AS front_id, f.name AS front_name, s.id AS subject_id, s.name AS subject_name
FROM lessons l
JOIN modules m ON m.id = l.module_id
JOIN fronts f ON f.id = m.front_id
JOIN subjects s ON s.id = f.subject_id
WHERE l.id = ANY($1)`
	var rows []models.LessonRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list lessons by id: %w", err)
	}
	return rows, nil
}

// CompletedLessonIDs returns the lessons the owner already finished.
func (r *ContentCatalogRepository) CompletedLessonIDs(ctx context.Context, ownerID, courseID string) ([]string, error) {
	query := `SELECT lesson_id FROM lesson_progress WHERE owner_id = $1 AND completed = TRUE`
	args := []interface{}{ownerID}
	if courseID != "" {
		query += ` AND course_id = $2`
		args = append(args, courseID)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return ids, nil
}
