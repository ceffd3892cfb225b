package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExpectedPayout is a disbursement reported by a processor, not yet confirmed
// as received. Amounts are integer minor currency units (cents).
type ExpectedPayout struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            string    `gorm:"index"`
	Processor         Processor `gorm:"uniqueIndex:idx_processor_payout"`
	ProcessorPayoutID string    `gorm:"uniqueIndex:idx_processor_payout"`
	Amount            int64     `gorm:"index"`
	Currency          string
	ExpectedDate      *time.Time
	Status            PayoutStatus `gorm:"index"`
	BankTransactionID *uuid.UUID
	ProcessorMetadata datatypes.JSON
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
