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

type BankConnectionRepository struct {
	db *gorm.DB
}

func NewBankConnectionRepository(db *gorm.DB) *BankConnectionRepository {
	return &BankConnectionRepository{db: db}
}

func (r *BankConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankConnection, error) {
	var conn models.BankConnection
	err := r.db.WithContext(ctx).First(&conn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *BankConnectionRepository) GetByProviderItemID(ctx context.Context, providerItemID string) (*models.BankConnection, error) {
	var conn models.BankConnection
	err := r.db.WithContext(ctx).First(&conn, "provider_item_id = ?", providerItemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *BankConnectionRepository) Upsert(ctx context.Context, conn *models.BankConnection) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"institution_name": conn.InstitutionName,
			"account_mask":     conn.AccountMask,
			"is_active":        conn.IsActive,
		}),
	}).Create(conn).Error
}

func (r *BankConnectionRepository) TouchSynced(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.BankConnection{}).
		Where("id = ?", id).
		Update("last_synced_at", time.Now()).Error
}
