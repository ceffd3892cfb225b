package models

import (
	"time"

	"github.com/google/uuid"
)

type BankConnection struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"index"`
	ProviderItemID  string    `gorm:"uniqueIndex"`
	InstitutionName string
	AccountMask     string
	IsActive        bool
	LastSyncedAt    *time.Time
	CreatedAt       time.Time
}
