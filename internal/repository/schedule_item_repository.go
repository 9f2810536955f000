package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

const scheduleItemInsertBatch = 500

// ScheduleItemRepository persists the lessons placed in a plan.
type ScheduleItemRepository struct {
	db *sqlx.DB
}

// NewScheduleItemRepository constructs repository.
func NewScheduleItemRepository(db *sqlx.DB) *ScheduleItemRepository {
	return &ScheduleItemRepository{db: db}
}

func (r *ScheduleItemRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BulkInsert stores items in batches. Items without an id get one assigned.
func (r *ScheduleItemRepository) BulkInsert(ctx context.Context, exec sqlx.ExtContext, items []models.ScheduleItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].PlanID == "" {
			return fmt.Errorf("schedule item %d has no plan_id", i)
		}
	}

	const query = `
INSERT INTO schedule_items (id, plan_id, lesson_id, week_number, position, completed, completed_at, scheduled_date)
VALUES (:id, :plan_id, :lesson_id, :week_number, :position, :completed, :completed_at, :scheduled_date)`

	target := r.exec(exec)
	for start := 0; start < len(items); start += scheduleItemInsertBatch {
		end := start + scheduleItemInsertBatch
		if end > len(items) {
			end = len(items)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, items[start:end]); err != nil {
			return classify("insert schedule items", err)
		}
	}
	return nil
}

// ListByPlan returns the plan's items ordered by week and position.
func (r *ScheduleItemRepository) ListByPlan(ctx context.Context, planID string) ([]models.ScheduleItem, error) {
	const query = `SELECT id, plan_id, lesson_id, week_number, position, completed, completed_at, scheduled_date
FROM schedule_items WHERE plan_id = $1 ORDER BY week_number, position`
	var items []models.ScheduleItem
	if err := r.db.SelectContext(ctx, &items, query, planID); err != nil {
		return nil, fmt.Errorf("list schedule items: %w", err)
	}
	return items, nil
}

// UpdateDate sets the calendar date of one item.
func (r *ScheduleItemRepository) UpdateDate(ctx context.Context, exec sqlx.ExtContext, itemID string, date time.Time) error {
	const query = `UPDATE schedule_items SET scheduled_date = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, date, itemID)
	if err != nil {
		return fmt.Errorf("update schedule item date: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule item rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetCompleted toggles completion of an item belonging to planID and returns the new row.
func (r *ScheduleItemRepository) SetCompleted(ctx context.Context, planID, itemID string, completed bool, at *time.Time) (*models.ScheduleItem, error) {
	const query = `UPDATE schedule_items SET completed = $1, completed_at = $2
WHERE id = $3 AND plan_id = $4
RETURNING id, plan_id, lesson_id, week_number, position, completed, completed_at, scheduled_date`
	var item models.ScheduleItem
	if err := r.db.GetContext(ctx, &item, query, completed, at, itemID, planID); err != nil {
		return nil, err
	}
	return &item, nil
}
