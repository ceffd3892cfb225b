package handler

import (
	"errors"
	"net/http"
	"time"

	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/internal/repository"
	"payout-reconciliation-backend/internal/services/ingest"
	"payout-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PayoutHandler struct {
	ingest  *ingest.Service
	recon   *reconciliation.Service
	payouts *repository.PayoutRepository
}

func NewPayoutHandler(ingestService *ingest.Service, reconService *reconciliation.Service, payouts *repository.PayoutRepository) *PayoutHandler {
	return &PayoutHandler{
		ingest:  ingestService,
		recon:   reconService,
		payouts: payouts,
	}
}

// IngestEvent accepts one normalized payout event from a processor webhook
// normalizer. Replays of the same (processor, payout id) update in place.
func (h *PayoutHandler) IngestEvent(c *gin.Context) {
	var payload struct {
		UserID            string                 `json:"user_id"`
		Processor         string                 `json:"processor"`
		ProcessorPayoutID string                 `json:"processor_payout_id"`
		Amount            int64                  `json:"amount"`
		Currency          string                 `json:"currency"`
		ExpectedDate      string                 `json:"expected_date"` // "yyyy-mm-dd", optional
		Status            string                 `json:"status"`
		Metadata          map[string]interface{} `json:"metadata"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	var expectedDate *time.Time
	if payload.ExpectedDate != "" {
		parsed, err := time.Parse("2006-01-02", payload.ExpectedDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expected date format, expected yyyy-mm-dd"})
			return
		}
		expectedDate = &parsed
	}

	err := h.ingest.ApplyPayoutEvent(c.Request.Context(), ingest.PayoutEvent{
		UserID:            payload.UserID,
		Processor:         models.Processor(payload.Processor),
		ProcessorPayoutID: payload.ProcessorPayoutID,
		Amount:            payload.Amount,
		Currency:          payload.Currency,
		ExpectedDate:      expectedDate,
		Status:            models.PayoutStatus(payload.Status),
		Metadata:          payload.Metadata,
	})
	switch {
	case errors.Is(err, models.ErrInvalidProcessor), errors.Is(err, models.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "payout event applied"})
	}
}

func (h *PayoutHandler) List(c *gin.Context) {
	status := models.PayoutStatus(c.Query("status"))

	payouts, err := h.payouts.List(c.Request.Context(), c.Query("user_id"), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": payouts})
}

// Promote confirms a landed payout as reconciled.
func (h *PayoutHandler) Promote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout ID"})
		return
	}

	err = h.recon.Promote(c.Request.Context(), id)
	switch {
	case errors.Is(err, models.ErrPayoutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPayoutNotLanded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "payout reconciled"})
	}
}
