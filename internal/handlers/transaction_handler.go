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

type TransactionHandler struct {
	ingest       *ingest.Service
	recon        *reconciliation.Service
	transactions *repository.BankTransactionRepository
}

func NewTransactionHandler(ingestService *ingest.Service, reconService *reconciliation.Service, transactions *repository.BankTransactionRepository) *TransactionHandler {
	return &TransactionHandler{
		ingest:       ingestService,
		recon:        reconService,
		transactions: transactions,
	}
}

// RegisterConnection records a bank connection established with the
// aggregator so its transactions can be synced.
func (h *TransactionHandler) RegisterConnection(c *gin.Context) {
	var payload struct {
		UserID          string `json:"user_id"`
		ProviderItemID  string `json:"provider_item_id"`
		InstitutionName string `json:"institution_name"`
		AccountMask     string `json:"account_mask"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	conn, err := h.ingest.RegisterConnection(c.Request.Context(), ingest.ConnectionRegistration{
		UserID:          payload.UserID,
		ProviderItemID:  payload.ProviderItemID,
		InstitutionName: payload.InstitutionName,
		AccountMask:     payload.AccountMask,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"connection_id": conn.ID})
}

type syncedTransactionPayload struct {
	ProviderTransactionID string `json:"provider_transaction_id"`
	Amount                int64  `json:"amount"`
	Date                  string `json:"date"` // "yyyy-mm-dd"
	Description           string `json:"description"`
	Category              string `json:"category"`
}

// Sync applies one bank-aggregator sync batch, then immediately reconciles
// the affected owner so fresh deposits land without waiting for the timer.
func (h *TransactionHandler) Sync(c *gin.Context) {
	var payload struct {
		BankConnectionID string                     `json:"bank_connection_id"`
		Added            []syncedTransactionPayload `json:"added"`
		Modified         []syncedTransactionPayload `json:"modified"`
		Removed          []string                   `json:"removed"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	connectionID, err := uuid.Parse(payload.BankConnectionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bank connection ID"})
		return
	}

	batch := ingest.SyncBatch{
		BankConnectionID: connectionID,
		Removed:          payload.Removed,
	}
	batch.Added, err = parseSynced(payload.Added)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch.Modified, err = parseSynced(payload.Modified)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ingest.ApplyBankSync(c.Request.Context(), batch)
	switch {
	case errors.Is(err, models.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	matched, err := h.recon.Run(c.Request.Context(), result.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "sync": result})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":    result.Added,
		"modified": result.Modified,
		"removed":  result.Removed,
		"matched":  matched,
	})
}

func (h *TransactionHandler) List(c *gin.Context) {
	unmatchedOnly := c.Query("unmatched") == "true"

	txs, err := h.transactions.List(c.Request.Context(), c.Query("user_id"), unmatchedOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": txs})
}

func parseSynced(rows []syncedTransactionPayload) ([]ingest.SyncedTransaction, error) {
	var out []ingest.SyncedTransaction
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, errors.New("invalid transaction date format, expected yyyy-mm-dd")
		}
		out = append(out, ingest.SyncedTransaction{
			ProviderTransactionID: row.ProviderTransactionID,
			Amount:                row.Amount,
			Date:                  date,
			Description:           row.Description,
			Category:              row.Category,
		})
	}
	return out, nil
}
