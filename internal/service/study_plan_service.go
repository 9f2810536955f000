package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/planner"
	"github.com/noah-isme/study-planner-api/internal/repository"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
	"github.com/noah-isme/study-planner-api/pkg/middleware/requestid"
)

const (
	dateLayout = "2006-01-02"

	// RecalculateDatesJob is the job type retrying date assignment of an undated plan.
	RecalculateDatesJob = "recalculate_dates"
)

var studyPlanTracer = otel.Tracer("github.com/noah-isme/study-planner-api/internal/service")

type studyPlanStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error
	CreateDegraded(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error
	PatchExtended(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error
	FindByID(ctx context.Context, id string) (*models.StudyPlan, error)
	FindByOwner(ctx context.Context, ownerID string) (*models.StudyPlan, error)
	DeleteByOwner(ctx context.Context, exec sqlx.ExtContext, ownerID string) (int64, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type scheduleItemStore interface {
	BulkInsert(ctx context.Context, exec sqlx.ExtContext, items []models.ScheduleItem) error
	ListByPlan(ctx context.Context, planID string) ([]models.ScheduleItem, error)
	UpdateDate(ctx context.Context, exec sqlx.ExtContext, itemID string, date time.Time) error
	SetCompleted(ctx context.Context, planID, itemID string, completed bool, at *time.Time) (*models.ScheduleItem, error)
}

type weekdayStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, dist *models.WeekdayDistribution) error
	GetByPlan(ctx context.Context, planID string) (*models.WeekdayDistribution, error)
}

type contentCatalog interface {
	ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.LessonRow, error)
	LessonsByIDs(ctx context.Context, ids []string) ([]models.LessonRow, error)
	CompletedLessonIDs(ctx context.Context, ownerID, courseID string) ([]string, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type planExporter interface {
	RenderPlan(plan *models.StudyPlan, items []models.ScheduleItem, lessons map[string]models.LessonRow, format string) (*ExportFile, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type dateJobPayload struct {
	PlanID  string
	OwnerID string
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// StudyPlanConfig governs generation behaviour.
type StudyPlanConfig struct {
	RequestTimeout  time.Duration
	Locale          string
	CatalogCacheTTL time.Duration
}

// StudyPlanService generates study plans and keeps their calendar dates in sync with the
// owner's weekday selection.
type StudyPlanService struct {
	plans     studyPlanStore
	items     scheduleItemStore
	weekdays  weekdayStore
	catalog   contentCatalog
	cache     catalogCache
	exporter  planExporter
	dateJobs  jobEnqueuer
	tx        txProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	locale    language.Tag
	cfg       StudyPlanConfig
	now       func() time.Time

	catalogLoads singleflight.Group
}

// NewStudyPlanService wires planner dependencies.
func NewStudyPlanService(
	plans studyPlanStore,
	items scheduleItemStore,
	weekdays weekdayStore,
	catalog contentCatalog,
	cache catalogCache,
	exporter planExporter,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg StudyPlanConfig,
) *StudyPlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService(logger, nil, nil)
	}
	return &StudyPlanService{
		plans:     plans,
		items:     items,
		weekdays:  weekdays,
		catalog:   catalog,
		cache:     cache,
		exporter:  exporter,
		tx:        tx,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		locale:    planner.ParseLocale(cfg.Locale),
		cfg:       cfg,
		now:       time.Now,
	}
}

// UseDateQueue routes plans left undated after generation to a background retry queue.
func (s *StudyPlanService) UseDateQueue(queue jobEnqueuer) {
	s.dateJobs = queue
}

// HandleDateJob re-runs date assignment for a queued plan. Plans that were deleted or
// changed hands in the meantime are skipped.
func (s *StudyPlanService) HandleDateJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(dateJobPayload)
	if !ok {
		s.logger.Error("unexpected date job payload", zap.String("job_id", job.ID))
		return nil
	}
	resp, err := s.RecalculateDates(ctx, payload.PlanID, payload.OwnerID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrValidation) {
			return nil
		}
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plan %s still has undated items", payload.PlanID)
	}
	s.logger.Info("deferred date assignment completed", zap.String("plan_id", payload.PlanID), zap.Int("items_updated", resp.ItemsUpdated))
	return nil
}

func (s *StudyPlanService) enqueueDateRetry(plan *models.StudyPlan) {
	if s.dateJobs == nil {
		return
	}
	job := jobs.Job{ID: plan.ID, Type: RecalculateDatesJob, Payload: dateJobPayload{PlanID: plan.ID, OwnerID: plan.OwnerID}}
	err := s.dateJobs.Enqueue(job)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrAlreadyQueued):
		s.logger.Debug("date retry already queued", zap.String("plan_id", plan.ID))
	default:
		s.logger.Warn("date retry not queued", zap.String("plan_id", plan.ID), zap.Error(err))
	}
}

type generationInput struct {
	start     time.Time
	end       time.Time
	vacations []planner.Vacation
	mode      planner.Mode
	speed     float64
}

type dateResult struct {
	Updated int
	Failed  int
}

// Generate replaces the requester's plan with a freshly distributed one.
func (s *StudyPlanService) Generate(ctx context.Context, requesterID string, req dto.GenerateStudyPlanRequest) (*dto.StudyPlanResponse, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	mode := req.Mode
	if !planner.Mode(mode).Valid() {
		mode = "invalid"
	}
	ctx, span := studyPlanTracer.Start(ctx, "StudyPlanService.Generate", trace.WithAttributes(attribute.String("plan.mode", mode)))
	defer span.End()

	started := time.Now()
	resp, err := s.generate(ctx, requesterID, req)
	err = deadlineError(err)

	items := 0
	if resp != nil {
		items = len(resp.Items)
	}
	outcome := generationOutcome(err)
	s.metrics.ObservePlanGeneration(mode, outcome, time.Since(started), items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return resp, nil
}

func (s *StudyPlanService) generate(ctx context.Context, requesterID string, req dto.GenerateStudyPlanRequest) (*dto.StudyPlanResponse, error) {
	input, err := s.parseRequest(req)
	if err != nil {
		return nil, err
	}
	ownerID, err := resolveOwner(requesterID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("owner_id", ownerID), zap.String("mode", string(input.mode)))
	if reqID := requestid.FromContext(ctx); reqID != "" {
		log = log.With(zap.String("request_id", reqID))
	}

	weeks := planner.BuildWeeks(input.start, input.end, input.vacations, req.HoursPerDay, req.DaysPerWeek)
	capacity := planner.TotalCapacity(weeks)
	useful := planner.UsefulWeeks(weeks)
	log.Debug("capacity computed", zap.Int("weeks", len(weeks)), zap.Int("useful_weeks", useful), zap.Float64("capacity_minutes", capacity))

	content, err := s.loadContent(ctx, ownerID, req, input.speed)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no eligible lessons for the selected subjects and filters")
	}

	totalCost := planner.TotalCost(content)
	if err := planner.CheckFeasibility(totalCost, capacity, req.HoursPerDay, req.DaysPerWeek, useful); err != nil {
		log.Info("study plan rejected for insufficient time", zap.Float64("cost_minutes", totalCost), zap.Float64("capacity_minutes", capacity))
		return nil, insufficientTime(err)
	}

	var frontOrder []string
	if input.mode == planner.ModeSequential {
		frontOrder = req.FrontOrder
	}
	_, distSpan := studyPlanTracer.Start(ctx, "planner.Distribute")
	dist, err := planner.Distribute(planner.DistributionInput{Items: content, Weeks: weeks, Mode: input.mode, FrontOrder: frontOrder})
	distSpan.End()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "no lessons to distribute")
	}
	if len(dist.Assignments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no lessons could be scheduled with the selected configuration")
	}
	if dist.Overflow > 0 {
		log.Warn("lessons appended to the last study week", zap.Int("overflow", dist.Overflow))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan, err := buildPlan(ownerID, req, input)
	if err != nil {
		return nil, err
	}
	items := make([]models.ScheduleItem, 0, len(dist.Assignments))
	for _, a := range dist.Assignments {
		items = append(items, models.ScheduleItem{
			ID:         uuid.NewString(),
			PlanID:     plan.ID,
			LessonID:   a.LessonID,
			WeekNumber: a.Week,
			Position:   a.Position,
		})
	}
	weekdays := planner.DefaultWeekdays(req.DaysPerWeek)

	if err := s.persist(ctx, plan, items, weekdays); err != nil {
		return nil, err
	}

	datesAssigned := true
	result, err := s.applyDates(ctx, plan, items, weekdays)
	if err != nil || result.Failed > 0 {
		datesAssigned = false
		log.Warn("date assignment incomplete, plan kept", zap.String("plan_id", plan.ID), zap.Int("failed", result.Failed), zap.Error(err))
		s.enqueueDateRetry(plan)
	}

	stats := planner.Summarize(weeks, dist)
	log.Info("study plan generated",
		zap.String("plan_id", plan.ID),
		zap.Int("items", stats.TotalItems),
		zap.Int("weeks", stats.TotalWeeks),
		zap.Int("fronts", stats.FrontsTouched),
		zap.Bool("dates_assigned", datesAssigned),
	)
	return &dto.StudyPlanResponse{Plan: plan, Items: items, Weekdays: weekdays, Statistics: &stats, DatesAssigned: datesAssigned}, nil
}

// Current returns the requester's active plan.
func (s *StudyPlanService) Current(ctx context.Context, ownerID string) (*dto.StudyPlanResponse, error) {
	if ownerID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	plan, err := s.plans.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active study plan")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study plan")
	}
	items, err := s.listItems(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	weekdays, _, err := s.effectiveWeekdays(ctx, plan)
	if err != nil {
		return nil, err
	}

	resp := &dto.StudyPlanResponse{Plan: plan, Items: items, Weekdays: weekdays, DatesAssigned: len(items) > 0}
	for _, item := range items {
		if item.ScheduledDate == nil {
			resp.DatesAssigned = false
			break
		}
	}
	stats, err := s.storedStatistics(ctx, plan, items)
	if err != nil {
		s.logger.Warn("study plan statistics unavailable", zap.String("plan_id", plan.ID), zap.Error(err))
	} else {
		resp.Statistics = stats
	}
	return resp, nil
}

// Items lists the schedule items of an owned plan.
func (s *StudyPlanService) Items(ctx context.Context, planID, ownerID string) ([]models.ScheduleItem, error) {
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.listItems(ctx, plan.ID)
}

// GetWeekdays returns the stored weekday distribution or the default for the plan.
func (s *StudyPlanService) GetWeekdays(ctx context.Context, planID, ownerID string) (*dto.WeekdaysResponse, error) {
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	weekdays, isDefault, err := s.effectiveWeekdays(ctx, plan)
	if err != nil {
		return nil, err
	}
	return &dto.WeekdaysResponse{PlanID: plan.ID, Weekdays: weekdays, IsDefault: isDefault}, nil
}

// SetWeekdays stores a new weekday selection and reassigns every item date.
func (s *StudyPlanService) SetWeekdays(ctx context.Context, planID, ownerID string, weekdays []int) (*dto.WeekdaysResponse, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	days, err := planner.NormalizeWeekdays(weekdays)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}

	dist := &models.WeekdayDistribution{PlanID: plan.ID, Weekdays: toInt64Array(days)}
	if err := s.weekdays.Upsert(ctx, nil, dist); err != nil {
		return nil, deadlineError(storeError(err, "failed to save weekday distribution"))
	}

	items, err := s.listItems(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	result, err := s.applyDates(ctx, plan, items, days)
	if err != nil {
		s.logger.Warn("date recalculation after weekday change failed", zap.String("plan_id", plan.ID), zap.Error(err))
	}
	s.logger.Info("weekday distribution updated", zap.String("plan_id", plan.ID), zap.Ints("weekdays", days), zap.Int("items_updated", result.Updated))
	return &dto.WeekdaysResponse{PlanID: plan.ID, Weekdays: days, ItemsUpdated: result.Updated}, nil
}

// RecalculateDates reassigns item dates from the current weekday distribution. Only items
// whose date changes are written, so repeated calls are no-ops.
func (s *StudyPlanService) RecalculateDates(ctx context.Context, planID, ownerID string) (*dto.RecalculateDatesResponse, error) {
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	weekdays, _, err := s.effectiveWeekdays(ctx, plan)
	if err != nil {
		return nil, err
	}
	items, err := s.listItems(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	result, err := s.applyDates(ctx, plan, items, weekdays)
	if err != nil {
		return nil, deadlineError(appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate dates"))
	}
	return &dto.RecalculateDatesResponse{Success: result.Failed == 0, ItemsUpdated: result.Updated}, nil
}

// CompleteItem marks an item done (stamping completed_at) or reopens it.
func (s *StudyPlanService) CompleteItem(ctx context.Context, planID, ownerID, itemID string, completed bool) (*models.ScheduleItem, error) {
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	var at *time.Time
	if completed {
		now := s.now().UTC()
		at = &now
	}
	item, err := s.items.SetCompleted(ctx, plan.ID, itemID, completed, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule item")
	}
	return item, nil
}

// Delete removes an owned plan with its items and weekday distribution.
func (s *StudyPlanService) Delete(ctx context.Context, planID, ownerID string) error {
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return err
	}
	if err := s.plans.Delete(ctx, plan.ID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "study plan not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete study plan")
	}
	s.logger.Info("study plan deleted", zap.String("plan_id", plan.ID), zap.String("owner_id", ownerID))
	return nil
}

// Export renders an owned plan as CSV or PDF.
func (s *StudyPlanService) Export(ctx context.Context, planID, ownerID, format string) (*ExportFile, error) {
	plan, err := s.ownedPlan(ctx, planID, ownerID)
	if err != nil {
		return nil, err
	}
	items, err := s.listItems(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.lessonIndex(ctx, items)
	if err != nil {
		s.logger.Warn("lesson names unavailable for export", zap.String("plan_id", plan.ID), zap.Error(err))
		lessons = nil
	}
	return s.exporter.RenderPlan(plan, items, lessons, format)
}

func (s *StudyPlanService) parseRequest(req dto.GenerateStudyPlanRequest) (*generationInput, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study plan payload")
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_date must use YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "end_date must use YYYY-MM-DD")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after start_date")
	}

	vacations := make([]planner.Vacation, 0, len(req.Vacations))
	for i, v := range req.Vacations {
		vs, err := time.Parse(dateLayout, v.Start)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("vacations[%d].start must use YYYY-MM-DD", i))
		}
		ve, err := time.Parse(dateLayout, v.End)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("vacations[%d].end must use YYYY-MM-DD", i))
		}
		if ve.Before(vs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("vacations[%d] ends before it starts", i))
		}
		vacations = append(vacations, planner.Vacation{Start: vs, End: ve})
	}

	mode := planner.Mode(req.Mode)
	if !mode.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "mode must be parallel or sequential")
	}
	speed := req.PlaybackSpeed
	if speed == 0 {
		speed = 1
	}
	return &generationInput{start: start, end: end, vacations: vacations, mode: mode, speed: speed}, nil
}

func resolveOwner(requesterID, ownerID string) (string, error) {
	if requesterID == "" {
		return "", appErrors.ErrUnauthorized
	}
	if ownerID != requesterID {
		return "", appErrors.Clone(appErrors.ErrValidation, "owner_id must match the authenticated user")
	}
	return ownerID, nil
}

func buildPlan(ownerID string, req dto.GenerateStudyPlanRequest, input *generationInput) (*models.StudyPlan, error) {
	periods := make([]models.VacationPeriod, 0, len(input.vacations))
	for _, v := range input.vacations {
		periods = append(periods, models.VacationPeriod{Start: v.Start.Format(dateLayout), End: v.End.Format(dateLayout)})
	}
	vacations, err := json.Marshal(periods)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode vacations")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("Study plan %s to %s", req.StartDate, req.EndDate)
	}
	plan := &models.StudyPlan{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Name:             name,
		StartDate:        input.start,
		EndDate:          input.end,
		DaysPerWeek:      req.DaysPerWeek,
		HoursPerDay:      req.HoursPerDay,
		Vacations:        types.JSONText(vacations),
		MinPriority:      req.MinPriority,
		Mode:             models.StudyPlanMode(input.mode),
		SubjectIDs:       pq.StringArray(req.SubjectIDs),
		ExcludeCompleted: req.ExcludeCompleted,
		PlaybackSpeed:    input.speed,
	}
	if req.CourseID != "" {
		courseID := req.CourseID
		plan.CourseID = &courseID
	}
	if len(req.ModuleIDs) > 0 {
		plan.ModuleIDs = pq.StringArray(req.ModuleIDs)
	}
	if input.mode == planner.ModeSequential && len(req.FrontOrder) > 0 {
		plan.FrontOrder = pq.StringArray(req.FrontOrder)
	}
	return plan, nil
}

func (s *StudyPlanService) loadContent(ctx context.Context, ownerID string, req dto.GenerateStudyPlanRequest, speed float64) ([]planner.ContentItem, error) {
	ctx, span := studyPlanTracer.Start(ctx, "StudyPlanService.loadContent")
	defer span.End()

	filter := models.LessonFilter{
		SubjectIDs:  req.SubjectIDs,
		CourseID:    req.CourseID,
		ModuleIDs:   req.ModuleIDs,
		MinPriority: req.MinPriority,
	}
	var (
		rows      []models.LessonRow
		completed = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.lessons(gctx, filter)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog lessons")
		}
		return nil
	})
	if req.ExcludeCompleted {
		g.Go(func() error {
			ids, err := s.catalog.CompletedLessonIDs(gctx, ownerID, req.CourseID)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson progress")
			}
			for _, id := range ids {
				completed[id] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]planner.ContentItem, 0, len(rows))
	for _, row := range rows {
		if row.Priority == 0 || row.Priority < req.MinPriority {
			continue
		}
		if _, done := completed[row.LessonID]; done {
			continue
		}
		items = append(items, toContentItem(row))
	}
	items = planner.ApplyCost(planner.SortContent(items, s.locale), speed)
	span.SetAttributes(attribute.Int("lessons.catalog", len(rows)), attribute.Int("lessons.eligible", len(items)))
	return items, nil
}

// lessons reads the catalog through the cache. Concurrent misses on the same key share
// one database query. The shared query is detached from the first caller's cancellation
// and bounded by its own deadline, while each caller still stops waiting on its own ctx.
func (s *StudyPlanService) lessons(ctx context.Context, filter models.LessonFilter) ([]models.LessonRow, error) {
	key := catalogCacheKey(filter)
	var rows []models.LessonRow
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &rows); hit {
			return rows, nil
		}
	}

	ch := s.catalogLoads.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := s.withDeadline(context.WithoutCancel(ctx))
		defer cancel()

		started := time.Now()
		loaded, err := s.catalog.ListLessons(loadCtx, filter)
		s.metrics.ObserveDBQuery("list_catalog_lessons", time.Since(started))
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(loadCtx, key, loaded, s.cfg.CatalogCacheTTL)
		}
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]models.LessonRow(nil), res.Val.([]models.LessonRow)...), nil
	}
}

// catalogCacheKey derives a stable key from the filter, independent of id order.
func catalogCacheKey(filter models.LessonFilter) string {
	subjects := append([]string(nil), filter.SubjectIDs...)
	modules := append([]string(nil), filter.ModuleIDs...)
	sort.Strings(subjects)
	sort.Strings(modules)
	raw := strings.Join([]string{
		strings.Join(subjects, ","),
		filter.CourseID,
		strings.Join(modules, ","),
		strconv.Itoa(filter.MinPriority),
	}, "|")
	return "lessons:" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)).String()
}

func toContentItem(row models.LessonRow) planner.ContentItem {
	return planner.ContentItem{
		LessonID:        row.LessonID,
		LessonName:      row.LessonName,
		LessonSequence:  row.LessonSequence,
		DurationMinutes: row.DurationMinutes,
		Priority:        row.Priority,
		ModuleID:        row.ModuleID,
		ModuleName:      row.ModuleName,
		ModuleSequence:  row.ModuleSequence,
		FrontID:         row.FrontID,
		FrontName:       row.FrontName,
		SubjectID:       row.SubjectID,
		SubjectName:     row.SubjectName,
	}
}

// persist replaces the owner's plan inside one transaction: previous plan removal, plan
// row, items and weekday distribution commit together or not at all.
func (s *StudyPlanService) persist(ctx context.Context, plan *models.StudyPlan, items []models.ScheduleItem, weekdays []int) (err error) {
	ctx, span := studyPlanTracer.Start(ctx, "StudyPlanService.persist")
	defer span.End()
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	started := time.Now()
	defer func() { s.metrics.ObserveDBQuery("persist_study_plan", time.Since(started)) }()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			span.RecordError(err)
		}
	}()

	removed, err := s.plans.DeleteByOwner(ctx, tx, plan.OwnerID)
	if err != nil {
		return storeError(err, "failed to remove previous study plan")
	}
	if err = s.createPlan(ctx, tx, plan); err != nil {
		return err
	}
	for i := range items {
		items[i].PlanID = plan.ID
	}
	if err = s.items.BulkInsert(ctx, tx, items); err != nil {
		return storeError(err, "failed to persist schedule items")
	}
	dist := &models.WeekdayDistribution{PlanID: plan.ID, Weekdays: toInt64Array(weekdays)}
	if err = s.weekdays.Upsert(ctx, tx, dist); err != nil {
		return storeError(err, "failed to persist weekday distribution")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit study plan")
	}

	s.logger.Debug("study plan persisted",
		zap.String("plan_id", plan.ID),
		zap.Int64("replaced_plans", removed),
		zap.Int("items", len(items)),
	)
	return nil
}

// createPlan inserts the plan, falling back to the core columns when the store rejects the
// full row with a transient schema error. The extended columns are then patched on a best
// effort basis.
func (s *StudyPlanService) createPlan(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	err := s.plans.Create(ctx, exec, plan)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrTransientStore) {
		return storeError(err, "failed to create study plan")
	}

	s.logger.Warn("study plan insert rejected, retrying with core columns", zap.String("plan_id", plan.ID), zap.Error(err))
	if err := s.plans.CreateDegraded(ctx, exec, plan); err != nil {
		return storeError(err, "failed to create study plan")
	}
	if err := s.plans.PatchExtended(ctx, exec, plan); err != nil {
		s.logger.Warn("study plan extended columns not saved", zap.String("plan_id", plan.ID), zap.Error(err))
	}
	return nil
}

// applyDates assigns dates to items in place and writes the ones that changed. A failed
// item write is logged and counted; it does not stop the batch.
func (s *StudyPlanService) applyDates(ctx context.Context, plan *models.StudyPlan, items []models.ScheduleItem, weekdays []int) (dateResult, error) {
	ctx, span := studyPlanTracer.Start(ctx, "StudyPlanService.applyDates")
	defer span.End()

	var result dateResult
	slots := make([]planner.Slot, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		slots[i] = planner.Slot{ID: item.ID, Week: item.WeekNumber, Position: item.Position}
		index[item.ID] = i
	}
	dated, err := planner.AssignDates(slots, plan.StartDate, weekdays)
	if err != nil {
		return result, err
	}

	for _, d := range dated {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordDateUpdates(result.Updated, result.Failed)
			return result, err
		}
		i := index[d.ID]
		if current := items[i].ScheduledDate; current != nil && sameDay(*current, d.Date) {
			continue
		}
		if err := s.items.UpdateDate(ctx, nil, d.ID, d.Date); err != nil {
			result.Failed++
			s.logger.Warn("schedule item date update failed", zap.String("plan_id", plan.ID), zap.String("item_id", d.ID), zap.Error(err))
			continue
		}
		date := d.Date
		items[i].ScheduledDate = &date
		result.Updated++
	}
	s.metrics.RecordDateUpdates(result.Updated, result.Failed)
	span.SetAttributes(attribute.Int("items.updated", result.Updated), attribute.Int("items.failed", result.Failed))
	return result, nil
}

func (s *StudyPlanService) ownedPlan(ctx context.Context, planID, ownerID string) (*models.StudyPlan, error) {
	if ownerID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "study plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study plan")
	}
	if plan.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "study plan does not belong to the requester")
	}
	return plan, nil
}

func (s *StudyPlanService) listItems(ctx context.Context, planID string) ([]models.ScheduleItem, error) {
	items, err := s.items.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule items")
	}
	return items, nil
}

func (s *StudyPlanService) effectiveWeekdays(ctx context.Context, plan *models.StudyPlan) ([]int, bool, error) {
	dist, err := s.weekdays.GetByPlan(ctx, plan.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return planner.DefaultWeekdays(plan.DaysPerWeek), true, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekday distribution")
	}
	days, err := planner.NormalizeWeekdays(dist.Ints())
	if err != nil {
		s.logger.Warn("stored weekday distribution invalid, using default", zap.String("plan_id", plan.ID), zap.Error(err))
		return planner.DefaultWeekdays(plan.DaysPerWeek), true, nil
	}
	return days, false, nil
}

func (s *StudyPlanService) lessonIndex(ctx context.Context, items []models.ScheduleItem) (map[string]models.LessonRow, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.LessonID)
	}
	rows, err := s.catalog.LessonsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.LessonRow, len(rows))
	for _, row := range rows {
		index[row.LessonID] = row
	}
	return index, nil
}

// storedStatistics rebuilds plan statistics from the persisted plan and catalog durations.
// Forced and overflow counts are not persisted and stay zero.
func (s *StudyPlanService) storedStatistics(ctx context.Context, plan *models.StudyPlan, items []models.ScheduleItem) (*planner.Statistics, error) {
	vacations, err := decodeVacations(plan.Vacations)
	if err != nil {
		return nil, err
	}
	weeks := planner.BuildWeeks(plan.StartDate, plan.EndDate, vacations, plan.HoursPerDay, plan.DaysPerWeek)
	lessons, err := s.lessonIndex(ctx, items)
	if err != nil {
		return nil, err
	}
	dist := &planner.Distribution{Assignments: make([]planner.Assignment, 0, len(items))}
	for _, item := range items {
		lesson := lessons[item.LessonID]
		dist.Assignments = append(dist.Assignments, planner.Assignment{
			LessonID: item.LessonID,
			FrontID:  lesson.FrontID,
			Week:     item.WeekNumber,
			Position: item.Position,
			Cost:     planner.LessonCost(lesson.DurationMinutes, plan.PlaybackSpeed),
		})
	}
	stats := planner.Summarize(weeks, dist)
	return &stats, nil
}

func (s *StudyPlanService) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

func decodeVacations(raw types.JSONText) ([]planner.Vacation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var periods []models.VacationPeriod
	if err := json.Unmarshal(raw, &periods); err != nil {
		return nil, fmt.Errorf("decode vacations: %w", err)
	}
	vacations := make([]planner.Vacation, 0, len(periods))
	for _, p := range periods {
		start, err := time.Parse(dateLayout, p.Start)
		if err != nil {
			return nil, fmt.Errorf("decode vacation start: %w", err)
		}
		end, err := time.Parse(dateLayout, p.End)
		if err != nil {
			return nil, fmt.Errorf("decode vacation end: %w", err)
		}
		vacations = append(vacations, planner.Vacation{Start: start, End: end})
	}
	return vacations, nil
}

func insufficientTime(err error) error {
	var shortfall *planner.InsufficientTimeError
	if !errors.As(err, &shortfall) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "feasibility check failed")
	}
	wrapped := appErrors.Wrap(err, appErrors.ErrInsufficientTime.Code, appErrors.ErrInsufficientTime.Status, appErrors.ErrInsufficientTime.Message)
	return appErrors.WithDetails(wrapped, shortfall.Details())
}

// storeError maps repository sentinels onto API errors.
func storeError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "a study plan for this owner already exists")
	case errors.Is(err, repository.ErrTransientStore):
		return appErrors.Wrap(err, appErrors.ErrTransientStore.Code, appErrors.ErrTransientStore.Status, message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// deadlineError converts an exceeded request deadline into a retryable timeout.
func deadlineError(err error) error {
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, appErrors.ErrTimeout.Message)
}

func generationOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(appErrors.FromError(err).Code)
}

func toInt64Array(days []int) pq.Int64Array {
	out := make(pq.Int64Array, len(days))
	for i, d := range days {
		out[i] = int64(d)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
