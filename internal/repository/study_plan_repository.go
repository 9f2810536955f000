package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/study-planner-api/internal/models"
)

const studyPlanColumns = `id, owner_id, course_id, name, start_date, end_date, days_per_week, hours_per_day,
       vacations, min_priority, mode, subject_ids, front_order, module_ids, exclude_completed,
       playback_speed, created_at, updated_at`

// StudyPlanRepository persists study plans.
type StudyPlanRepository struct {
	db *sqlx.DB
}

// NewStudyPlanRepository constructs repository.
func NewStudyPlanRepository(db *sqlx.DB) *StudyPlanRepository {
	return &StudyPlanRepository{db: db}
}

func (r *StudyPlanRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func preparePlan(plan *models.StudyPlan) error {
	if plan == nil {
		return fmt.Errorf("study plan payload is nil")
	}
	if plan.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if len(plan.Vacations) == 0 {
		plan.Vacations = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	return nil
}

// Create inserts the full plan row. Inside a transaction the insert is guarded by a
// savepoint so an ErrTransientStore failure leaves the transaction usable for a retry.
func (r *StudyPlanRepository) Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if err := preparePlan(plan); err != nil {
		return err
	}
	const query = `
INSERT INTO study_plans (id, owner_id, course_id, name, start_date, end_date, days_per_week, hours_per_day,
    vacations, min_priority, mode, subject_ids, front_order, module_ids, exclude_completed, playback_speed,
    created_at, updated_at)
VALUES (:id, :owner_id, :course_id, :name, :start_date, :end_date, :days_per_week, :hours_per_day,
    :vacations, :min_priority, :mode, :subject_ids, :front_order, :module_ids, :exclude_completed, :playback_speed,
    :created_at, :updated_at)`

	return withSavepoint(ctx, r.exec(exec), "study_plan_insert", func(target sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, target, query, plan)
		return classify("insert study plan", err)
	})
}

// CreateDegraded inserts only the columns every deployed schema revision has.
func (r *StudyPlanRepository) CreateDegraded(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if err := preparePlan(plan); err != nil {
		return err
	}
	const query = `
INSERT INTO study_plans (id, owner_id, name, start_date, end_date, days_per_week, hours_per_day, mode, subject_ids,
    created_at, updated_at)
VALUES (:id, :owner_id, :name, :start_date, :end_date, :days_per_week, :hours_per_day, :mode, :subject_ids,
    :created_at, :updated_at)`

	return withSavepoint(ctx, r.exec(exec), "study_plan_insert_degraded", func(target sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, target, query, plan)
		return classify("insert degraded study plan", err)
	})
}

// PatchExtended writes the columns skipped by CreateDegraded.
func (r *StudyPlanRepository) PatchExtended(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("study plan id is required")
	}
	plan.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE study_plans SET course_id = :course_id, vacations = :vacations, min_priority = :min_priority,
    front_order = :front_order, module_ids = :module_ids, exclude_completed = :exclude_completed,
    playback_speed = :playback_speed, updated_at = :updated_at
WHERE id = :id`

	return withSavepoint(ctx, r.exec(exec), "study_plan_patch", func(target sqlx.ExtContext) error {
		_, err := sqlx.NamedExecContext(ctx, target, query, plan)
		return classify("patch study plan", err)
	})
}

// FindByID loads a plan by id.
func (r *StudyPlanRepository) FindByID(ctx context.Context, id string) (*models.StudyPlan, error) {
	query := `SELECT ` + studyPlanColumns + ` FROM study_plans WHERE id = $1`
	var plan models.StudyPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByOwner loads the active plan of an owner.
func (r *StudyPlanRepository) FindByOwner(ctx context.Context, ownerID string) (*models.StudyPlan, error) {
	query := `SELECT ` + studyPlanColumns + ` FROM study_plans WHERE owner_id = $1 ORDER BY created_at DESC LIMIT 1`
	var plan models.StudyPlan
	if err := r.db.GetContext(ctx, &plan, query, ownerID); err != nil {
		return nil, err
	}
	return &plan, nil
}

// DeleteByOwner removes every plan of the owner; items and weekday rows cascade.
func (r *StudyPlanRepository) DeleteByOwner(ctx context.Context, exec sqlx.ExtContext, ownerID string) (int64, error) {
	const query = `DELETE FROM study_plans WHERE owner_id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete study plans by owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("study plan rows affected: %w", err)
	}
	return affected, nil
}

// Delete removes one plan owned by ownerID.
func (r *StudyPlanRepository) Delete(ctx context.Context, id, ownerID string) error {
	const query = `DELETE FROM study_plans WHERE id = $1 AND owner_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete study plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("study plan rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// withSavepoint runs fn behind a savepoint when target is a transaction. A failed fn rolls
// back to the savepoint; a successful one releases it.
func withSavepoint(ctx context.Context, target sqlx.ExtContext, name string, fn func(sqlx.ExtContext) error) error {
	if _, inTx := target.(*sqlx.Tx); !inTx {
		return fn(target)
	}
	if _, err := target.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(target); err != nil {
		if _, rbErr := target.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint %s: %w", name, rbErr))
		}
		return err
	}
	if _, err := target.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}
