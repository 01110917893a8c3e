package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ibuc-edu/transition-api/internal/models"
	"github.com/ibuc-edu/transition-api/pkg/response"
)

type reconciliationService interface {
	Pending(ctx context.Context, limit int) ([]models.BillingReconciliation, error)
}

// ReconciliationHandler exposes the billing reconciliation backlog.
type ReconciliationHandler struct {
	reconciliations reconciliationService
}

// NewReconciliationHandler constructs the handler.
func NewReconciliationHandler(reconciliations reconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{reconciliations: reconciliations}
}

// Pending godoc
// @Summary List billing charges pending reconciliation
// @Tags Billing
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /cobrancas/reconciliacoes [get]
func (h *ReconciliationHandler) Pending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.reconciliations.Pending(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
