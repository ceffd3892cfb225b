package models

import (
	"time"

	"github.com/google/uuid"
)

// BankTransaction is a row synced from the bank aggregator. Amount is signed,
// in minor units; positive means money into the account.
type BankTransaction struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID                string    `gorm:"index"`
	BankConnectionID      uuid.UUID `gorm:"uniqueIndex:idx_connection_tx"`
	ProviderTransactionID string    `gorm:"uniqueIndex:idx_connection_tx"`
	Amount                int64     `gorm:"index"`
	Date                  time.Time `gorm:"column:transaction_date;index"`
	Description           string
	Category              string
	IsPotentialPayout     bool `gorm:"index"`
	MatchedPayoutID       *uuid.UUID
	CreatedAt             time.Time
}
