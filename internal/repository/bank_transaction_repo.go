package repository

import (
	"context"
	"errors"

	"payout-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

// Upsert applies a sync row keyed by (bank_connection_id, provider_transaction_id).
// An established payout link is never touched by re-sync.
func (r *BankTransactionRepository) Upsert(ctx context.Context, t *models.BankTransaction) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bank_connection_id"}, {Name: "provider_transaction_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":              t.Amount,
			"transaction_date":    t.Date,
			"description":         t.Description,
			"category":            t.Category,
			"is_potential_payout": t.IsPotentialPayout,
		}),
	}).Create(t).Error
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindUnmatchedCredits returns the candidate pool for one reconciliation run:
// unlinked credits, ordered by date ascending with created_at and id tie-breaks.
func (r *BankTransactionRepository) FindUnmatchedCredits(ctx context.Context, userID string) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction

	query := r.db.WithContext(ctx).
		Where("matched_payout_id IS NULL").
		Where("amount > 0")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	err := query.Order("transaction_date ASC, created_at ASC, id ASC").Find(&txs).Error
	return txs, err
}

// Claim is the conditional landing commit: the link is written only if still
// absent. A false return means a concurrent run claimed the row first.
func (r *BankTransactionRepository) Claim(ctx context.Context, transactionID, payoutID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND matched_payout_id IS NULL", transactionID).
		Update("matched_payout_id", payoutID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Unclaim releases a claim after the payout side of the commit lost its race.
// Conditional on the link still being ours, so a claim written by someone
// else in the meantime is never torn down.
func (r *BankTransactionRepository) Unclaim(ctx context.Context, transactionID, payoutID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND matched_payout_id = ?", transactionID, payoutID).
		Update("matched_payout_id", nil).Error
}

// DeleteByProviderID removes a transaction the aggregator reported as gone,
// e.g. a reversed pending transaction.
func (r *BankTransactionRepository) DeleteByProviderID(ctx context.Context, connectionID uuid.UUID, providerTransactionID string) error {
	return r.db.WithContext(ctx).
		Where("bank_connection_id = ? AND provider_transaction_id = ?", connectionID, providerTransactionID).
		Delete(&models.BankTransaction{}).Error
}

// List returns transactions with optional owner and unmatched-only filters.
func (r *BankTransactionRepository) List(ctx context.Context, userID string, unmatchedOnly bool) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction

	query := r.db.WithContext(ctx).Model(&models.BankTransaction{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if unmatchedOnly {
		query = query.Where("matched_payout_id IS NULL")
	}

	err := query.Order("transaction_date DESC").Find(&txs).Error
	return txs, err
}
