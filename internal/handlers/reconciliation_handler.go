package handler

import (
	"errors"
	"net/http"

	"payout-reconciliation-backend/internal/models"
	service "payout-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReconciliationHandler struct {
	service *service.Service
}

func NewReconciliationHandler(s *service.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

// Run triggers a reconciliation pass. Scoped to one owner when user_id is
// given, system-wide otherwise.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	matched, err := h.service.Run(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"matched": matched})
}

func (h *ReconciliationHandler) ManualReconcile(c *gin.Context) {
	var payload struct {
		PayoutID      string `json:"payout_id"`
		TransactionID string `json:"transaction_id"`
		PerformedBy   string `json:"performed_by"`
		Reason        string `json:"reason"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	payoutID, err := uuid.Parse(payload.PayoutID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout ID"})
		return
	}
	transactionID, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	err = h.service.ManualReconcile(c.Request.Context(), payoutID, transactionID, payload.PerformedBy, payload.Reason)
	switch {
	case errors.Is(err, models.ErrPayoutNotFound), errors.Is(err, models.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTransactionMatched):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *ReconciliationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
