package models

import (
	"time"

	"github.com/google/uuid"
)

// ManualMatchLog records every operator override for later review.
type ManualMatchLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	PayoutID       uuid.UUID `gorm:"index"`
	TransactionID  uuid.UUID `gorm:"index"`
	PreviousStatus PayoutStatus
	PerformedBy    string
	Reason         string
	CreatedAt      time.Time
}
