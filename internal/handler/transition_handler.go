package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ibuc-edu/transition-api/internal/dto"
	appErrors "github.com/ibuc-edu/transition-api/pkg/errors"
	"github.com/ibuc-edu/transition-api/pkg/response"
)

// TransitionHandler exposes the module transition endpoints.
type TransitionHandler struct {
	transitions transitionService
	batch       batchService
}

type transitionService interface {
	Preview(ctx context.Context, cohortID string) (*dto.TransitionPreview, error)
	Close(ctx context.Context, cohortID string, req dto.CloseModuleRequest) (*dto.ClosureResult, error)
	BringForward(ctx context.Context, cohortID string, req dto.BringForwardRequest) (*dto.BringForwardResult, error)
}

type batchService interface {
	CloseBatch(ctx context.Context, req dto.BatchCloseRequest) (*dto.BatchResult, error)
}

// NewTransitionHandler constructs the handler.
func NewTransitionHandler(transitions transitionService, batch batchService) *TransitionHandler {
	return &TransitionHandler{transitions: transitions, batch: batch}
}

// Preview godoc
// @Summary Preview module transition for a cohort
// @Tags Transitions
// @Produce json
// @Param id path string true "Cohort ID"
// @Success 200 {object} response.Envelope
// @Router /turmas/{id}/preview-transition [get]
func (h *TransitionHandler) Preview(c *gin.Context) {
	preview, err := h.transitions.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Close godoc
// @Summary Close the cohort's current module
// @Tags Transitions
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body dto.CloseModuleRequest true "Closure payload"
// @Success 200 {object} response.Envelope
// @Router /turmas/{id}/close-module [post]
func (h *TransitionHandler) Close(c *gin.Context) {
	var req dto.CloseModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.transitions.Close(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		// A partial commit already moved the cohort forward; the caller
		// gets the result alongside the error so it is not retried blindly.
		var appErr *appErrors.Error
		if result != nil && errors.As(err, &appErr) && appErr.Code == appErrors.ErrPartialCommit.Code {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CloseBatch godoc
// @Summary Close modules for many cohorts
// @Tags Transitions
// @Accept json
// @Produce json
// @Param payload body dto.BatchCloseRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /turmas/close-module/batch [post]
func (h *TransitionHandler) CloseBatch(c *gin.Context) {
	var req dto.BatchCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.batch.CloseBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BringForward godoc
// @Summary Enroll students approved in a previous module into the cohort
// @Tags Transitions
// @Accept json
// @Produce json
// @Param id path string true "Cohort ID"
// @Param payload body dto.BringForwardRequest true "Bring-forward payload"
// @Success 200 {object} response.Envelope
// @Router /turmas/{id}/bring-forward [post]
func (h *TransitionHandler) BringForward(c *gin.Context) {
	var req dto.BringForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.transitions.BringForward(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
