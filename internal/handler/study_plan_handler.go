package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/middleware"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/service"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

const catalogCachePattern = "lessons:*"

type studyPlanService interface {
	Generate(ctx context.Context, requesterID string, req dto.GenerateStudyPlanRequest) (*dto.StudyPlanResponse, error)
	Current(ctx context.Context, ownerID string) (*dto.StudyPlanResponse, error)
	Items(ctx context.Context, planID, ownerID string) ([]models.ScheduleItem, error)
	GetWeekdays(ctx context.Context, planID, ownerID string) (*dto.WeekdaysResponse, error)
	SetWeekdays(ctx context.Context, planID, ownerID string, weekdays []int) (*dto.WeekdaysResponse, error)
	RecalculateDates(ctx context.Context, planID, ownerID string) (*dto.RecalculateDatesResponse, error)
	CompleteItem(ctx context.Context, planID, ownerID, itemID string, completed bool) (*models.ScheduleItem, error)
	Delete(ctx context.Context, planID, ownerID string) error
	Export(ctx context.Context, planID, ownerID, format string) (*service.ExportFile, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// StudyPlanHandler exposes study plan endpoints.
type StudyPlanHandler struct {
	service studyPlanService
	cache   cacheInvalidator
}

// NewStudyPlanHandler constructs the handler.
func NewStudyPlanHandler(svc *service.StudyPlanService, cache *service.CacheService) *StudyPlanHandler {
	return &StudyPlanHandler{service: svc, cache: cache}
}

// Generate godoc
// @Summary Generate a study plan
// @Description Replaces the caller's plan with a new one distributed over the study period. Responds 422 with the missing hours when the content does not fit.
// @Tags StudyPlans
// @Accept json
// @Produce json
// @Param payload body dto.GenerateStudyPlanRequest true "Generation parameters"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /study-plans [post]
func (h *StudyPlanHandler) Generate(c *gin.Context) {
	var req dto.GenerateStudyPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid study plan payload"))
		return
	}
	requester := requesterID(c)
	if req.OwnerID == "" {
		req.OwnerID = requester
	}
	result, err := h.service.Generate(c.Request.Context(), requester, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Current godoc
// @Summary Get the caller's active study plan
// @Tags StudyPlans
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /study-plans/current [get]
func (h *StudyPlanHandler) Current(c *gin.Context) {
	h.respondCurrent(c, requesterID(c))
}

// OwnerPlan godoc
// @Summary Get the active study plan of an owner
// @Description Available to administrators and to the owner.
// @Tags StudyPlans
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /owners/{ownerId}/study-plan [get]
func (h *StudyPlanHandler) OwnerPlan(c *gin.Context) {
	h.respondCurrent(c, c.Param("ownerId"))
}

// Items godoc
// @Summary List schedule items of a plan
// @Tags StudyPlans
// @Produce json
// @Param id path string true "Study plan ID"
// @Success 200 {object} response.Envelope
// @Router /study-plans/{id}/items [get]
func (h *StudyPlanHandler) Items(c *gin.Context) {
	items, err := h.service.Items(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(items))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// GetWeekdays godoc
// @Summary Get the weekday distribution of a plan
// @Tags StudyPlans
// @Produce json
// @Param id path string true "Study plan ID"
// @Success 200 {object} response.Envelope
// @Router /study-plans/{id}/weekdays [get]
func (h *StudyPlanHandler) GetWeekdays(c *gin.Context) {
	result, err := h.service.GetWeekdays(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SetWeekdays godoc
// @Summary Replace the weekday distribution of a plan
// @Description Weekdays use 0 for Sunday through 6 for Saturday. Every item date is recalculated.
// @Tags StudyPlans
// @Accept json
// @Produce json
// @Param id path string true "Study plan ID"
// @Param payload body dto.SetWeekdaysRequest true "Weekdays"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /study-plans/{id}/weekdays [put]
func (h *StudyPlanHandler) SetWeekdays(c *gin.Context) {
	var req dto.SetWeekdaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid weekdays payload"))
		return
	}
	result, err := h.service.SetWeekdays(c.Request.Context(), c.Param("id"), requesterID(c), req.Weekdays)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RecalculateDates godoc
// @Summary Recalculate item dates from the weekday distribution
// @Tags StudyPlans
// @Produce json
// @Param id path string true "Study plan ID"
// @Success 200 {object} response.Envelope
// @Router /study-plans/{id}/recalculate-dates [post]
func (h *StudyPlanHandler) RecalculateDates(c *gin.Context) {
	result, err := h.service.RecalculateDates(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateItem godoc
// @Summary Mark a schedule item as completed or pending
// @Tags StudyPlans
// @Accept json
// @Produce json
// @Param id path string true "Study plan ID"
// @Param itemId path string true "Schedule item ID"
// @Param payload body dto.UpdateItemRequest true "Completion flag"
// @Success 200 {object} response.Envelope
// @Router /study-plans/{id}/items/{itemId} [patch]
func (h *StudyPlanHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid item payload"))
		return
	}
	if req.Completed == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "completed is required"))
		return
	}
	item, err := h.service.CompleteItem(c.Request.Context(), c.Param("id"), requesterID(c), c.Param("itemId"), *req.Completed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a study plan
// @Tags StudyPlans
// @Param id path string true "Study plan ID"
// @Success 204
// @Router /study-plans/{id} [delete]
func (h *StudyPlanHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), requesterID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a study plan
// @Tags StudyPlans
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Study plan ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /study-plans/{id}/export [get]
func (h *StudyPlanHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), requesterID(c), query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// InvalidateCatalogCache godoc
// @Summary Drop cached catalog lessons
// @Tags Admin
// @Success 204
// @Router /admin/catalog-cache [delete]
func (h *StudyPlanHandler) InvalidateCatalogCache(c *gin.Context) {
	if h.cache == nil {
		response.NoContent(c)
		return
	}
	if err := h.cache.Invalidate(c.Request.Context(), catalogCachePattern); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "catalog cache unavailable"))
		return
	}
	response.NoContent(c)
}

func (h *StudyPlanHandler) respondCurrent(c *gin.Context, ownerID string) {
	result, err := h.service.Current(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}
