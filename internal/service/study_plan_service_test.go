package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/repository"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
)

func TestStudyPlanServiceGenerateParallel(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	stubs.plans.plans["old-plan"] = &models.StudyPlan{ID: "old-plan", OwnerID: "user-1"}

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := service.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, resp.Items, 60)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, resp.Weekdays)
	assert.True(t, resp.DatesAssigned)
	require.NotNil(t, resp.Statistics)
	assert.Equal(t, 60, resp.Statistics.TotalItems)
	assert.Equal(t, 4, resp.Statistics.UsefulWeeks)
	assert.Equal(t, 2, resp.Statistics.FrontsTouched)
	assert.InDelta(t, 1800.0, resp.Statistics.TotalCostMinutes, 1e-9)

	_, err = stubs.plans.FindByID(context.Background(), "old-plan")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	stored, err := stubs.plans.FindByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, resp.Plan.ID, stored.ID)
	assert.Equal(t, models.StudyPlanModeParallel, stored.Mode)
	assert.JSONEq(t, `[]`, string(stored.Vacations))

	for _, item := range resp.Items {
		assert.Equal(t, resp.Plan.ID, item.PlanID)
		require.NotNil(t, item.ScheduledDate)
		weekday := item.ScheduledDate.Weekday()
		assert.True(t, weekday >= time.Monday && weekday <= time.Friday, "unexpected weekday %s", weekday)
		if item.WeekNumber == 1 && item.Position == 1 {
			assert.Equal(t, "2024-01-01", item.ScheduledDate.Format(dateLayout))
		}
	}
	assert.Len(t, stubs.items.byPlan[resp.Plan.ID], 60)
	assert.Equal(t, int64Slice(1, 2, 3, 4, 5), stubs.weekdays.byPlan[resp.Plan.ID].Weekdays)
}

func TestStudyPlanServiceGenerateSequentialHonoursFrontOrder(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, _ := newStudyPlanFixture(t, tx)
	mock.ExpectBegin()
	mock.ExpectCommit()

	req := generateRequest()
	req.Mode = "sequential"
	req.FrontOrder = []string{"geometria"}

	resp, err := service.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	for _, item := range resp.Items {
		if item.WeekNumber == 1 && item.Position == 1 {
			assert.Equal(t, "b-01", item.LessonID)
		}
	}
	assert.Equal(t, []string{"geometria"}, []string(resp.Plan.FrontOrder))
}

func TestStudyPlanServiceGenerateInsufficientTime(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})

	req := generateRequest()
	req.HoursPerDay = 0.5
	req.DaysPerWeek = 1

	_, err := service.Generate(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientTime)

	appErr := appErrors.FromError(err)
	assert.Equal(t, 30, appErr.Details["hours_needed"])
	assert.Equal(t, 2, appErr.Details["hours_available"])
	assert.Equal(t, 7.5, appErr.Details["hours_per_day_needed"])
	assert.Empty(t, stubs.plans.plans)
}

func TestStudyPlanServiceGenerateKeepsPreviousPlanWhenInfeasible(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 4, 3)

	req := generateRequest()
	req.HoursPerDay = 0.5
	req.DaysPerWeek = 1

	_, err := service.Generate(context.Background(), "user-1", req)
	require.ErrorIs(t, err, appErrors.ErrInsufficientTime)

	require.Contains(t, stubs.plans.plans, "plan-1")
	assert.Len(t, stubs.items.byPlan["plan-1"], 7)
}

func TestStudyPlanServiceGenerateRejectsForeignOwner(t *testing.T) {
	service, _ := newStudyPlanFixture(t, noopTxProvider{})

	_, err := service.Generate(context.Background(), "user-2", generateRequest())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = service.Generate(context.Background(), "", generateRequest())
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestStudyPlanServiceGenerateValidation(t *testing.T) {
	service, _ := newStudyPlanFixture(t, noopTxProvider{})

	cases := map[string]func(*dto.GenerateStudyPlanRequest){
		"end before start":   func(r *dto.GenerateStudyPlanRequest) { r.EndDate = "2023-12-01" },
		"bad mode":           func(r *dto.GenerateStudyPlanRequest) { r.Mode = "random" },
		"no subjects":        func(r *dto.GenerateStudyPlanRequest) { r.SubjectIDs = nil },
		"too many days":      func(r *dto.GenerateStudyPlanRequest) { r.DaysPerWeek = 8 },
		"inverted vacation":  func(r *dto.GenerateStudyPlanRequest) { r.Vacations = []dto.VacationRequest{{Start: "2024-01-10", End: "2024-01-05"}} },
		"malformed vacation": func(r *dto.GenerateStudyPlanRequest) { r.Vacations = []dto.VacationRequest{{Start: "10/01/2024", End: "2024-01-12"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := generateRequest()
			mutate(&req)
			_, err := service.Generate(context.Background(), "user-1", req)
			assert.ErrorIs(t, err, appErrors.ErrValidation)
		})
	}
}

func TestStudyPlanServiceGenerateWithoutEligibleLessons(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	for i := range stubs.catalog.rows {
		stubs.catalog.rows[i].Priority = 0
	}

	_, err := service.Generate(context.Background(), "user-1", generateRequest())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestStudyPlanServiceGenerateExcludesCompleted(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	stubs.catalog.completed = []string{"a-01", "b-20"}
	mock.ExpectBegin()
	mock.ExpectCommit()

	req := generateRequest()
	req.ExcludeCompleted = true
	resp, err := service.Generate(context.Background(), "user-1", req)
	require.NoError(t, err)
	require.Len(t, resp.Items, 58)
	for _, item := range resp.Items {
		assert.NotContains(t, []string{"a-01", "b-20"}, item.LessonID)
	}
}

func TestStudyPlanServiceGenerateFallsBackOnTransientInsert(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	stubs.plans.createErr = fmt.Errorf("insert study plan: %w", repository.ErrTransientStore)
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := service.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	assert.True(t, stubs.plans.degraded)
	assert.True(t, stubs.plans.patched)
	assert.NotNil(t, stubs.plans.plans[resp.Plan.ID])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyPlanServiceGenerateDuplicateRollsBack(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	stubs.plans.createErr = fmt.Errorf("insert study plan: %w", repository.ErrDuplicate)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := service.Generate(context.Background(), "user-1", generateRequest())
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Empty(t, stubs.items.byPlan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyPlanServiceGenerateDeadlineIsRetryable(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	stubs.catalog.err = context.DeadlineExceeded

	_, err := service.Generate(context.Background(), "user-1", generateRequest())
	assert.ErrorIs(t, err, appErrors.ErrTimeout)
	assert.Equal(t, 503, appErrors.FromError(err).Status)
}

func TestStudyPlanServiceGenerateUsesCatalogCache(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := service.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	require.Len(t, stubs.cache.entries, 1)

	_, err = service.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, stubs.catalog.listCalls)
}

type blockingCatalog struct {
	catalogStub
	entered chan struct{}
	release chan struct{}
	calls   int32
}

func (c *blockingCatalog) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.LessonRow, error) {
	if atomic.AddInt32(&c.calls, 1) == 1 {
		close(c.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.release:
		return append([]models.LessonRow(nil), c.rows...), nil
	}
}

func newBlockingCatalog(n int) *blockingCatalog {
	return &blockingCatalog{
		catalogStub: catalogStub{rows: lessonRows("s-1", "Matemática", "f-a", "Álgebra", "a", n)},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func TestStudyPlanServiceSharesConcurrentCatalogLoads(t *testing.T) {
	service, _ := newStudyPlanFixture(t, noopTxProvider{})
	catalog := newBlockingCatalog(3)
	service.catalog = catalog
	service.cache = nil
	filter := models.LessonFilter{SubjectIDs: []string{"s-1"}, MinPriority: 1}

	var wg sync.WaitGroup
	results := make([][]models.LessonRow, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := service.lessons(context.Background(), filter)
			assert.NoError(t, err)
			results[i] = rows
		}(i)
		if i == 0 {
			<-catalog.entered
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(catalog.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&catalog.calls))
	require.Len(t, results[0], 3)
	require.Len(t, results[1], 3)
	results[0][0].LessonID = "mutated"
	assert.NotEqual(t, "mutated", results[1][0].LessonID)
}

func TestStudyPlanServiceCatalogLoadSurvivesFirstCallerCancel(t *testing.T) {
	service, _ := newStudyPlanFixture(t, noopTxProvider{})
	catalog := newBlockingCatalog(4)
	service.catalog = catalog
	service.cache = nil
	filter := models.LessonFilter{SubjectIDs: []string{"s-1"}, MinPriority: 1}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := service.lessons(firstCtx, filter)
		firstErr <- err
	}()
	<-catalog.entered

	type result struct {
		rows []models.LessonRow
		err  error
	}
	second := make(chan result, 1)
	go func() {
		rows, err := service.lessons(context.Background(), filter)
		second <- result{rows: rows, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(catalog.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Len(t, res.rows, 4)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never finished")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&catalog.calls))
}

func TestCatalogCacheKeyIgnoresIDOrder(t *testing.T) {
	a := catalogCacheKey(models.LessonFilter{SubjectIDs: []string{"s1", "s2"}, MinPriority: 1})
	b := catalogCacheKey(models.LessonFilter{SubjectIDs: []string{"s2", "s1"}, MinPriority: 1})
	c := catalogCacheKey(models.LessonFilter{SubjectIDs: []string{"s1", "s2"}, MinPriority: 2})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "lessons:"))
}

func TestStudyPlanServiceSetWeekdays(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 3, 2)

	resp, err := service.SetWeekdays(context.Background(), "plan-1", "user-1", []int{3, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, resp.Weekdays)
	assert.Equal(t, 5, resp.ItemsUpdated)
	assert.Equal(t, int64Slice(1, 3), stubs.weekdays.byPlan["plan-1"].Weekdays)

	var got []string
	for _, item := range stubs.items.byPlan["plan-1"] {
		got = append(got, item.ScheduledDate.Format(dateLayout))
	}
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15"}, got)
}

func TestStudyPlanServiceSetWeekdaysErrors(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 1, 0)

	_, err := service.SetWeekdays(context.Background(), "plan-1", "user-1", []int{7})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = service.SetWeekdays(context.Background(), "plan-1", "user-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = service.SetWeekdays(context.Background(), "plan-1", "user-2", []int{1})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = service.SetWeekdays(context.Background(), "missing", "user-1", []int{1})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudyPlanServiceRecalculateDatesIsIdempotent(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 4, 3)

	first, err := service.RecalculateDates(context.Background(), "plan-1", "user-1")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 7, first.ItemsUpdated)

	second, err := service.RecalculateDates(context.Background(), "plan-1", "user-1")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Zero(t, second.ItemsUpdated)
	assert.Equal(t, 7, stubs.items.updates)
}

func TestStudyPlanServiceRecalculateDatesCountsFailures(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 3, 0)
	stubs.items.failUpdate = map[string]bool{"item-1-2": true}

	resp, err := service.RecalculateDates(context.Background(), "plan-1", "user-1")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.ItemsUpdated)
}

func TestStudyPlanServiceGetWeekdaysFallsBackToDefault(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 1, 0)

	resp, err := service.GetWeekdays(context.Background(), "plan-1", "user-1")
	require.NoError(t, err)
	assert.True(t, resp.IsDefault)
	assert.Equal(t, []int{1, 3, 5}, resp.Weekdays)

	stubs.weekdays.byPlan["plan-1"] = &models.WeekdayDistribution{PlanID: "plan-1", Weekdays: int64Slice(2, 4)}
	resp, err = service.GetWeekdays(context.Background(), "plan-1", "user-1")
	require.NoError(t, err)
	assert.False(t, resp.IsDefault)
	assert.Equal(t, []int{2, 4}, resp.Weekdays)
}

func TestStudyPlanServiceCompleteItem(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 2, 0)
	fixed := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	item, err := service.CompleteItem(context.Background(), "plan-1", "user-1", "item-1-1", true)
	require.NoError(t, err)
	assert.True(t, item.Completed)
	require.NotNil(t, item.CompletedAt)
	assert.Equal(t, fixed, *item.CompletedAt)

	item, err = service.CompleteItem(context.Background(), "plan-1", "user-1", "item-1-1", false)
	require.NoError(t, err)
	assert.False(t, item.Completed)
	assert.Nil(t, item.CompletedAt)

	_, err = service.CompleteItem(context.Background(), "plan-1", "user-1", "nope", true)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudyPlanServiceDelete(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 1, 0)

	assert.ErrorIs(t, service.Delete(context.Background(), "plan-1", "user-2"), appErrors.ErrValidation)
	require.NoError(t, service.Delete(context.Background(), "plan-1", "user-1"))
	assert.ErrorIs(t, service.Delete(context.Background(), "plan-1", "user-1"), appErrors.ErrNotFound)
}

func TestStudyPlanServiceCurrent(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 2, 1)

	resp, err := service.Current(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "plan-1", resp.Plan.ID)
	assert.Len(t, resp.Items, 3)
	assert.False(t, resp.DatesAssigned)
	require.NotNil(t, resp.Statistics)
	assert.Equal(t, 3, resp.Statistics.TotalItems)
	assert.InDelta(t, 90.0, resp.Statistics.TotalCostMinutes, 1e-9)

	_, err = service.Current(context.Background(), "user-9")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStudyPlanServiceExport(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 2, 0)

	file, err := service.Export(context.Background(), "plan-1", "user-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "study-plan-20240101.csv", file.Filename)
	assert.Contains(t, string(file.Body), "Álgebra")
	assert.Contains(t, string(file.Body), "Lesson a-01")

	_, err = service.Export(context.Background(), "plan-1", "user-1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedFormat)
}

type jobQueueStub struct {
	jobs []jobs.Job
}

func (q *jobQueueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func TestStudyPlanServiceGenerateQueuesDateRetry(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	service, stubs := newStudyPlanFixture(t, tx)
	queue := &jobQueueStub{}
	service.UseDateQueue(queue)
	stubs.items.failAll = true
	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := service.Generate(context.Background(), "user-1", generateRequest())
	require.NoError(t, err)
	assert.False(t, resp.DatesAssigned)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, RecalculateDatesJob, queue.jobs[0].Type)
	assert.Equal(t, dateJobPayload{PlanID: resp.Plan.ID, OwnerID: "user-1"}, queue.jobs[0].Payload)
}

func TestStudyPlanServiceHandleDateJob(t *testing.T) {
	service, stubs := newStudyPlanFixture(t, noopTxProvider{})
	seedPlan(stubs, 2, 1)
	job := jobs.Job{ID: "plan-1", Type: RecalculateDatesJob, Payload: dateJobPayload{PlanID: "plan-1", OwnerID: "user-1"}}

	stubs.items.failAll = true
	assert.Error(t, service.HandleDateJob(context.Background(), job))

	stubs.items.failAll = false
	require.NoError(t, service.HandleDateJob(context.Background(), job))
	for _, item := range stubs.items.byPlan["plan-1"] {
		assert.NotNil(t, item.ScheduledDate)
	}

	gone := jobs.Job{ID: "plan-x", Payload: dateJobPayload{PlanID: "plan-x", OwnerID: "user-1"}}
	assert.NoError(t, service.HandleDateJob(context.Background(), gone))
	assert.NoError(t, service.HandleDateJob(context.Background(), jobs.Job{ID: "bad", Payload: "plan-1"}))
}

type studyPlanStubs struct {
	plans    *planStoreStub
	items    *itemStoreStub
	weekdays *weekdayStoreStub
	catalog  *catalogStub
	cache    *catalogCacheStub
}

func newStudyPlanFixture(t *testing.T, tx txProvider) (*StudyPlanService, *studyPlanStubs) {
	t.Helper()
	rows := append(lessonRows("s-1", "Matemática", "f-a", "Álgebra", "a", 40), lessonRows("s-1", "Matemática", "f-b", "Geometria", "b", 20)...)
	stubs := &studyPlanStubs{
		plans:    &planStoreStub{plans: map[string]*models.StudyPlan{}},
		items:    &itemStoreStub{byPlan: map[string][]models.ScheduleItem{}},
		weekdays: &weekdayStoreStub{byPlan: map[string]*models.WeekdayDistribution{}},
		catalog:  &catalogStub{rows: rows},
		cache:    &catalogCacheStub{entries: map[string][]models.LessonRow{}},
	}
	service := NewStudyPlanService(
		stubs.plans, stubs.items, stubs.weekdays, stubs.catalog, stubs.cache,
		nil, tx, NewMetricsService(), validator.New(), zap.NewNop(),
		StudyPlanConfig{RequestTimeout: 5 * time.Second, Locale: "pt-BR"},
	)
	return service, stubs
}

func generateRequest() dto.GenerateStudyPlanRequest {
	return dto.GenerateStudyPlanRequest{
		OwnerID:     "user-1",
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-28",
		SubjectIDs:  []string{"s-1"},
		MinPriority: 1,
		DaysPerWeek: 5,
		HoursPerDay: 2,
		Mode:        "parallel",
	}
}

func lessonRows(subjectID, subjectName, frontID, frontName, prefix string, n int) []models.LessonRow {
	rows := make([]models.LessonRow, 0, n)
	duration := 20.0
	for i := 1; i <= n; i++ {
		rows = append(rows, models.LessonRow{
			LessonID:        fmt.Sprintf("%s-%02d", prefix, i),
			LessonName:      fmt.Sprintf("Lesson %s-%02d", prefix, i),
			LessonSequence:  i,
			DurationMinutes: &duration,
			Priority:        2,
			ModuleID:        frontID + "-m1",
			ModuleName:      "Module 1",
			ModuleSequence:  1,
			FrontID:         frontID,
			FrontName:       frontName,
			SubjectID:       subjectID,
			SubjectName:     subjectName,
		})
	}
	return rows
}

// seedPlan stores plan-1 for user-1 with undated items spread over two weeks.
func seedPlan(stubs *studyPlanStubs, firstWeek, secondWeek int) {
	stubs.plans.plans["plan-1"] = &models.StudyPlan{
		ID:            "plan-1",
		OwnerID:       "user-1",
		Name:          "Vestibular",
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC),
		DaysPerWeek:   3,
		HoursPerDay:   1,
		Vacations:     types.JSONText(`[]`),
		Mode:          models.StudyPlanModeParallel,
		PlaybackSpeed: 1,
	}
	var items []models.ScheduleItem
	n := 0
	for week, count := range []int{firstWeek, secondWeek} {
		for p := 1; p <= count; p++ {
			n++
			items = append(items, models.ScheduleItem{
				ID:         fmt.Sprintf("item-%d-%d", week+1, p),
				PlanID:     "plan-1",
				LessonID:   fmt.Sprintf("a-%02d", n),
				WeekNumber: week + 1,
				Position:   p,
			})
		}
	}
	stubs.items.byPlan["plan-1"] = items
}

func int64Slice(values ...int64) pq.Int64Array {
	return pq.Int64Array(values)
}

type planStoreStub struct {
	plans     map[string]*models.StudyPlan
	createErr error
	degraded  bool
	patched   bool
}

func (s *planStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	if s.createErr != nil {
		return s.createErr
	}
	copied := *plan
	s.plans[plan.ID] = &copied
	return nil
}

func (s *planStoreStub) CreateDegraded(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	s.degraded = true
	copied := *plan
	s.plans[plan.ID] = &copied
	return nil
}

func (s *planStoreStub) PatchExtended(ctx context.Context, exec sqlx.ExtContext, plan *models.StudyPlan) error {
	s.patched = true
	return nil
}

func (s *planStoreStub) FindByID(ctx context.Context, id string) (*models.StudyPlan, error) {
	plan, ok := s.plans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return plan, nil
}

func (s *planStoreStub) FindByOwner(ctx context.Context, ownerID string) (*models.StudyPlan, error) {
	for _, plan := range s.plans {
		if plan.OwnerID == ownerID {
			return plan, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *planStoreStub) DeleteByOwner(ctx context.Context, exec sqlx.ExtContext, ownerID string) (int64, error) {
	var removed int64
	for id, plan := range s.plans {
		if plan.OwnerID == ownerID {
			delete(s.plans, id)
			removed++
		}
	}
	return removed, nil
}

func (s *planStoreStub) Delete(ctx context.Context, id, ownerID string) error {
	plan, ok := s.plans[id]
	if !ok || plan.OwnerID != ownerID {
		return sql.ErrNoRows
	}
	delete(s.plans, id)
	return nil
}

type itemStoreStub struct {
	byPlan     map[string][]models.ScheduleItem
	failUpdate map[string]bool
	failAll    bool
	updates    int
}

func (s *itemStoreStub) BulkInsert(ctx context.Context, exec sqlx.ExtContext, items []models.ScheduleItem) error {
	for _, item := range items {
		s.byPlan[item.PlanID] = append(s.byPlan[item.PlanID], item)
	}
	return nil
}

func (s *itemStoreStub) ListByPlan(ctx context.Context, planID string) ([]models.ScheduleItem, error) {
	return append([]models.ScheduleItem(nil), s.byPlan[planID]...), nil
}

func (s *itemStoreStub) UpdateDate(ctx context.Context, exec sqlx.ExtContext, itemID string, date time.Time) error {
	if s.failAll || s.failUpdate[itemID] {
		return errors.New("connection reset")
	}
	for planID, items := range s.byPlan {
		for i := range items {
			if items[i].ID == itemID {
				d := date
				s.byPlan[planID][i].ScheduledDate = &d
				s.updates++
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (s *itemStoreStub) SetCompleted(ctx context.Context, planID, itemID string, completed bool, at *time.Time) (*models.ScheduleItem, error) {
	items := s.byPlan[planID]
	for i := range items {
		if items[i].ID == itemID {
			items[i].Completed = completed
			items[i].CompletedAt = at
			item := items[i]
			return &item, nil
		}
	}
	return nil, sql.ErrNoRows
}

type weekdayStoreStub struct {
	byPlan map[string]*models.WeekdayDistribution
}

func (s *weekdayStoreStub) Upsert(ctx context.Context, exec sqlx.ExtContext, dist *models.WeekdayDistribution) error {
	copied := *dist
	s.byPlan[dist.PlanID] = &copied
	return nil
}

func (s *weekdayStoreStub) GetByPlan(ctx context.Context, planID string) (*models.WeekdayDistribution, error) {
	dist, ok := s.byPlan[planID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return dist, nil
}

type catalogStub struct {
	rows      []models.LessonRow
	completed []string
	err       error
	listCalls int
}

func (s *catalogStub) ListLessons(ctx context.Context, filter models.LessonFilter) ([]models.LessonRow, error) {
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.LessonRow(nil), s.rows...), nil
}

func (s *catalogStub) LessonsByIDs(ctx context.Context, ids []string) ([]models.LessonRow, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []models.LessonRow
	for _, row := range s.rows {
		if _, ok := wanted[row.LessonID]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *catalogStub) CompletedLessonIDs(ctx context.Context, ownerID, courseID string) ([]string, error) {
	return s.completed, nil
}

type catalogCacheStub struct {
	entries map[string][]models.LessonRow
}

func (s *catalogCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	rows, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	*dest.(*[]models.LessonRow) = rows
	return true, nil
}

func (s *catalogCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.entries[key] = value.([]models.LessonRow)
	return nil
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
