package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// WeekdayDistributionRepository stores the weekday selection of each plan.
type WeekdayDistributionRepository struct {
	db *sqlx.DB
}

// NewWeekdayDistributionRepository constructs repository.
func NewWeekdayDistributionRepository(db *sqlx.DB) *WeekdayDistributionRepository {
	return &WeekdayDistributionRepository{db: db}
}

func (r *WeekdayDistributionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert creates or replaces the distribution keyed by plan id.
func (r *WeekdayDistributionRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, dist *models.WeekdayDistribution) error {
	if dist == nil || dist.PlanID == "" {
		return fmt.Errorf("plan_id is required")
	}
	dist.UpdatedAt = time.Now().UTC()
	const query = `
INSERT INTO weekday_distributions (plan_id, weekdays, updated_at)
VALUES (:plan_id, :weekdays, :updated_at)
ON CONFLICT (plan_id) DO UPDATE
SET weekdays = EXCLUDED.weekdays,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, dist); err != nil {
		return classify("upsert weekday distribution", err)
	}
	return nil
}

// GetByPlan returns the stored distribution or sql.ErrNoRows.
func (r *WeekdayDistributionRepository) GetByPlan(ctx context.Context, planID string) (*models.WeekdayDistribution, error) {
	const query = `SELECT plan_id, weekdays, updated_at FROM weekday_distributions WHERE plan_id = $1`
	var dist models.WeekdayDistribution
	if err := r.db.GetContext(ctx, &dist, query, planID); err != nil {
		return nil, err
	}
	return &dist, nil
}
