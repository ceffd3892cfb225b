package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PayoutStore is satisfied by repository.PayoutRepository.
type PayoutStore interface {
	Upsert(ctx context.Context, p *models.ExpectedPayout) error
}

// TransactionStore is satisfied by repository.BankTransactionRepository.
type TransactionStore interface {
	Upsert(ctx context.Context, t *models.BankTransaction) error
	DeleteByProviderID(ctx context.Context, connectionID uuid.UUID, providerTransactionID string) error
}

// ConnectionStore is satisfied by repository.BankConnectionRepository.
type ConnectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.BankConnection, error)
	GetByProviderItemID(ctx context.Context, providerItemID string) (*models.BankConnection, error)
	Upsert(ctx context.Context, conn *models.BankConnection) error
	TouchSynced(ctx context.Context, id uuid.UUID) error
}

// PayoutEvent is the uniform record the per-processor normalizers push.
type PayoutEvent struct {
	UserID            string
	Processor         models.Processor
	ProcessorPayoutID string
	Amount            int64
	Currency          string
	ExpectedDate      *time.Time
	Status            models.PayoutStatus
	Metadata          map[string]interface{}
}

// SyncedTransaction is one added or modified row from the bank aggregator.
type SyncedTransaction struct {
	ProviderTransactionID string
	Amount                int64
	Date                  time.Time
	Description           string
	Category              string
}

// SyncBatch is the outcome of one bank sync: upserts plus removals.
type SyncBatch struct {
	BankConnectionID uuid.UUID
	Added            []SyncedTransaction
	Modified         []SyncedTransaction
	Removed          []string
}

type SyncResult struct {
	UserID   string `json:"-"`
	Added    int    `json:"added"`
	Modified int    `json:"modified"`
	Removed  int    `json:"removed"`
}

type Service struct {
	payouts         PayoutStore
	transactions    TransactionStore
	connections     ConnectionStore
	minPayoutAmount int64
	logger          *logger.Logger
}

func NewService(payouts PayoutStore, transactions TransactionStore, connections ConnectionStore, minPayoutAmount int64, log *logger.Logger) *Service {
	return &Service{
		payouts:         payouts,
		transactions:    transactions,
		connections:     connections,
		minPayoutAmount: minPayoutAmount,
		logger:          log,
	}
}

// ConnectionRegistration describes a bank connection established with the
// aggregator, keyed by its provider item id.
type ConnectionRegistration struct {
	UserID          string
	ProviderItemID  string
	InstitutionName string
	AccountMask     string
}

// RegisterConnection records a bank connection so its sync batches can be
// applied. Re-registering the same provider item refreshes the existing
// connection instead of creating a second one.
func (s *Service) RegisterConnection(ctx context.Context, reg ConnectionRegistration) (*models.BankConnection, error) {
	if reg.UserID == "" {
		return nil, fmt.Errorf("missing user id")
	}
	if reg.ProviderItemID == "" {
		return nil, fmt.Errorf("missing provider item id")
	}

	conn := &models.BankConnection{
		ID:              uuid.New(),
		UserID:          reg.UserID,
		ProviderItemID:  reg.ProviderItemID,
		InstitutionName: reg.InstitutionName,
		AccountMask:     reg.AccountMask,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	if err := s.connections.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("upserting connection %s: %w", reg.ProviderItemID, err)
	}

	stored, err := s.connections.GetByProviderItemID(ctx, reg.ProviderItemID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "bank connection registered",
		"connection_id", stored.ID,
		"institution", stored.InstitutionName,
	)

	return stored, nil
}

// ApplyPayoutEvent validates and upserts one normalized processor event.
// Re-delivery of the same (processor, payout id) updates the existing record.
func (s *Service) ApplyPayoutEvent(ctx context.Context, ev PayoutEvent) error {
	if !ev.Processor.Valid() {
		return models.ErrInvalidProcessor
	}
	if !ev.Status.FromProcessor() {
		return models.ErrInvalidStatus
	}
	if ev.ProcessorPayoutID == "" {
		return fmt.Errorf("missing processor payout id")
	}
	if ev.Amount <= 0 {
		return fmt.Errorf("payout amount must be positive, got %d", ev.Amount)
	}

	var metadata datatypes.JSON
	if ev.Metadata != nil {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encoding processor metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}

	now := time.Now()
	payout := &models.ExpectedPayout{
		ID:                uuid.New(),
		UserID:            ev.UserID,
		Processor:         ev.Processor,
		ProcessorPayoutID: ev.ProcessorPayoutID,
		Amount:            ev.Amount,
		Currency:          strings.ToUpper(ev.Currency),
		ExpectedDate:      ev.ExpectedDate,
		Status:            ev.Status,
		ProcessorMetadata: metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.payouts.Upsert(ctx, payout); err != nil {
		return fmt.Errorf("upserting payout %s/%s: %w", ev.Processor, ev.ProcessorPayoutID, err)
	}

	s.logger.Debug(ctx, "payout event applied",
		"processor", ev.Processor,
		"processor_payout_id", ev.ProcessorPayoutID,
		"status", ev.Status,
	)

	return nil
}

// ApplyBankSync applies one aggregator sync batch: upserts for added and
// modified rows, deletes for removed ones, and stamps the connection. The
// potential-payout flag is recomputed from the configured credit threshold.
func (s *Service) ApplyBankSync(ctx context.Context, batch SyncBatch) (SyncResult, error) {
	var result SyncResult

	conn, err := s.connections.GetByID(ctx, batch.BankConnectionID)
	if err != nil {
		return result, err
	}
	result.UserID = conn.UserID

	for _, st := range batch.Added {
		if err := s.upsertSynced(ctx, conn, st); err != nil {
			return result, err
		}
		result.Added++
	}
	for _, st := range batch.Modified {
		if err := s.upsertSynced(ctx, conn, st); err != nil {
			return result, err
		}
		result.Modified++
	}
	for _, providerID := range batch.Removed {
		if err := s.transactions.DeleteByProviderID(ctx, conn.ID, providerID); err != nil {
			return result, fmt.Errorf("removing transaction %s: %w", providerID, err)
		}
		result.Removed++
	}

	if err := s.connections.TouchSynced(ctx, conn.ID); err != nil {
		s.logger.Warn(ctx, "failed to stamp connection sync time",
			"connection_id", conn.ID,
			"error", err,
		)
	}

	s.logger.Info(ctx, "bank sync applied",
		"connection_id", conn.ID,
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed,
	)

	return result, nil
}

func (s *Service) upsertSynced(ctx context.Context, conn *models.BankConnection, st SyncedTransaction) error {
	if st.ProviderTransactionID == "" {
		return fmt.Errorf("missing provider transaction id")
	}

	tx := &models.BankTransaction{
		ID:                    uuid.New(),
		UserID:                conn.UserID,
		BankConnectionID:      conn.ID,
		ProviderTransactionID: st.ProviderTransactionID,
		Amount:                st.Amount,
		Date:                  st.Date,
		Description:           st.Description,
		Category:              st.Category,
		IsPotentialPayout:     st.Amount > s.minPayoutAmount,
		CreatedAt:             time.Now(),
	}

	if err := s.transactions.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("upserting transaction %s: %w", st.ProviderTransactionID, err)
	}
	return nil
}
