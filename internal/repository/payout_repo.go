package repository

import (
	"context"
	"errors"
	"time"

	"payout-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Upsert applies a processor event keyed by (processor, processor_payout_id).
// Rows whose status is terminal keep their status and transaction link; a late
// processor event may only refresh the descriptive columns.
func (r *PayoutRepository) Upsert(ctx context.Context, p *models.ExpectedPayout) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "processor"}, {Name: "processor_payout_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":             p.Amount,
			"currency":           p.Currency,
			"expected_date":      p.ExpectedDate,
			"processor_metadata": p.ProcessorMetadata,
			"status": gorm.Expr(
				"CASE WHEN expected_payouts.status IN ('pending','in_transit') THEN ? ELSE expected_payouts.status END",
				string(p.Status),
			),
			"updated_at": time.Now(),
		}),
	}).Create(p).Error
}

// GetByID fetch a single payout by ID
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExpectedPayout, error) {
	var payout models.ExpectedPayout
	err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindMatchable returns payouts the engine may still land, in the documented
// candidate order: creation time ascending, id as tie-break.
func (r *PayoutRepository) FindMatchable(ctx context.Context, userID string) ([]models.ExpectedPayout, error) {
	var payouts []models.ExpectedPayout

	query := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(models.StatusPending), string(models.StatusInTransit)}).
		Where("bank_transaction_id IS NULL")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	err := query.Order("created_at ASC, id ASC").Find(&payouts).Error
	return payouts, err
}

// Land commits the landing transition. The payout must still be in a
// matchable state; ErrPayoutNotMatchable means a concurrent run got there
// first and the caller should release its claim.
func (r *PayoutRepository) Land(ctx context.Context, payoutID, transactionID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ExpectedPayout{}).
		Where("id = ? AND status IN ?", payoutID,
			[]string{string(models.StatusPending), string(models.StatusInTransit)}).
		Updates(map[string]interface{}{
			"status":              models.StatusLanded,
			"bank_transaction_id": transactionID,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, payoutID); err != nil {
			return err
		}
		return models.ErrPayoutNotMatchable
	}
	return nil
}

// MarkManual links a payout by operator decision, regardless of prior status.
func (r *PayoutRepository) MarkManual(ctx context.Context, payoutID, transactionID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ExpectedPayout{}).
		Where("id = ?", payoutID).
		Updates(map[string]interface{}{
			"status":              models.StatusManual,
			"bank_transaction_id": transactionID,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrPayoutNotFound
	}
	return nil
}

// Promote confirms a landed payout as reconciled.
func (r *PayoutRepository) Promote(ctx context.Context, payoutID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.ExpectedPayout{}).
		Where("id = ? AND status = ?", payoutID, models.StatusLanded).
		Updates(map[string]interface{}{
			"status":     models.StatusReconciled,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, payoutID); err != nil {
			return err
		}
		return models.ErrPayoutNotLanded
	}
	return nil
}

func (r *PayoutRepository) RecordManualMatch(ctx context.Context, entry *models.ManualMatchLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns payouts with optional status and owner filters.
func (r *PayoutRepository) List(ctx context.Context, userID string, status models.PayoutStatus) ([]models.ExpectedPayout, error) {
	var payouts []models.ExpectedPayout

	query := r.db.WithContext(ctx).Model(&models.ExpectedPayout{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.Order("created_at DESC").Find(&payouts).Error
	return payouts, err
}

// StatusCounts aggregates counts and amount sums per status.
func (r *PayoutRepository) StatusCounts(ctx context.Context, userID string) ([]models.StatusCount, error) {
	var rows []models.StatusCount

	query := r.db.WithContext(ctx).Model(&models.ExpectedPayout{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status")
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	err := query.Scan(&rows).Error
	return rows, err
}
