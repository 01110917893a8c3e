package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ibuc-edu/transition-api/internal/models"
	"github.com/ibuc-edu/transition-api/pkg/response"
)

type cohortService interface {
	List(ctx context.Context, filter models.CohortFilter) ([]models.Cohort, models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Cohort, error)
}

// CohortHandler exposes cohort read endpoints.
type CohortHandler struct {
	cohorts cohortService
}

// NewCohortHandler constructs the handler.
func NewCohortHandler(cohorts cohortService) *CohortHandler {
	return &CohortHandler{cohorts: cohorts}
}

// List godoc
// @Summary List cohorts
// @Tags Cohorts
// @Produce json
// @Param poloId query string false "Filter by site"
// @Param status query string false "Filter by status"
// @Param moduloId query string false "Filter by current module"
// @Param anoLetivo query int false "Filter by academic year"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /turmas [get]
func (h *CohortHandler) List(c *gin.Context) {
	filter := models.CohortFilter{
		SiteID:          c.Query("poloId"),
		Status:          models.CohortStatus(c.Query("status")),
		CurrentModuleID: c.Query("moduloId"),
	}
	if year, err := strconv.Atoi(c.Query("anoLetivo")); err == nil {
		filter.AcademicYear = year
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.Query("pageSize")); err == nil {
		filter.PageSize = size
	}

	cohorts, pagination, err := h.cohorts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohorts, &pagination)
}

// Get godoc
// @Summary Get one cohort
// @Tags Cohorts
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /turmas/{id} [get]
func (h *CohortHandler) Get(c *gin.Context) {
	cohort, err := h.cohorts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cohort, nil)
}
