package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/internal/services/matching"
	"payout-reconciliation-backend/pkg/logger"

	"github.com/google/uuid"
)

// PayoutStore is the persistence surface the orchestrator needs for payouts.
// Satisfied by repository.PayoutRepository.
type PayoutStore interface {
	FindMatchable(ctx context.Context, userID string) ([]models.ExpectedPayout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExpectedPayout, error)
	Land(ctx context.Context, payoutID, transactionID uuid.UUID) error
	MarkManual(ctx context.Context, payoutID, transactionID uuid.UUID) error
	Promote(ctx context.Context, payoutID uuid.UUID) error
	RecordManualMatch(ctx context.Context, entry *models.ManualMatchLog) error
	StatusCounts(ctx context.Context, userID string) ([]models.StatusCount, error)
}

// TransactionStore is the persistence surface for bank transactions.
// Satisfied by repository.BankTransactionRepository.
type TransactionStore interface {
	FindUnmatchedCredits(ctx context.Context, userID string) ([]models.BankTransaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error)
	Claim(ctx context.Context, transactionID, payoutID uuid.UUID) (bool, error)
	Unclaim(ctx context.Context, transactionID, payoutID uuid.UUID) error
}

type Service struct {
	payouts      PayoutStore
	transactions TransactionStore
	logger       *logger.Logger
}

func NewService(payouts PayoutStore, transactions TransactionStore, log *logger.Logger) *Service {
	return &Service{
		payouts:      payouts,
		transactions: transactions,
		logger:       log,
	}
}

// Run loads the candidate sets (global when userID is empty), asks the engine
// for a pairing plan and commits the landing transition per pair. Both sides
// of the commit are conditional; losing either to a concurrent run is not an
// error, the pair is discarded and any claim released. A store failure
// aborts the run; pairs already committed stand, and re-running is safe
// because linked entities never re-enter the candidate sets.
func (s *Service) Run(ctx context.Context, userID string) (int, error) {
	ctx = logger.WithRunID(ctx, uuid.New().String())

	payouts, err := s.payouts.FindMatchable(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading matchable payouts: %w", err)
	}
	if len(payouts) == 0 {
		s.logger.Debug(ctx, "no payouts to reconcile")
		return 0, nil
	}

	pool, err := s.transactions.FindUnmatchedCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading unmatched transactions: %w", err)
	}
	if len(pool) == 0 {
		s.logger.Debug(ctx, "no unmatched transactions to reconcile against")
		return 0, nil
	}

	pairs := matching.Match(payouts, pool)

	matched := 0
	for _, pair := range pairs {
		claimed, err := s.transactions.Claim(ctx, pair.Transaction.ID, pair.Payout.ID)
		if err != nil {
			return matched, fmt.Errorf("claiming transaction %s: %w", pair.Transaction.ID, err)
		}
		if !claimed {
			s.logger.Debug(ctx, "transaction claimed by concurrent run, skipping",
				"transaction_id", pair.Transaction.ID,
				"payout_id", pair.Payout.ID,
			)
			continue
		}

		if err := s.payouts.Land(ctx, pair.Payout.ID, pair.Transaction.ID); err != nil {
			if errors.Is(err, models.ErrPayoutNotMatchable) {
				// A concurrent run landed the payout between the candidate
				// load and our commit. Release the claim so the deposit
				// stays available and move on.
				if uerr := s.transactions.Unclaim(ctx, pair.Transaction.ID, pair.Payout.ID); uerr != nil {
					return matched, fmt.Errorf("releasing claim on transaction %s: %w", pair.Transaction.ID, uerr)
				}
				s.logger.Debug(ctx, "payout landed by concurrent run, claim released",
					"transaction_id", pair.Transaction.ID,
					"payout_id", pair.Payout.ID,
				)
				continue
			}
			return matched, fmt.Errorf("landing payout %s: %w", pair.Payout.ID, err)
		}
		matched++
	}

	s.logger.Info(ctx, "reconciliation complete",
		"matched", matched,
		"candidate_payouts", len(payouts),
		"candidate_transactions", len(pool),
	)

	return matched, nil
}

// ManualReconcile force-links a payout to a transaction by operator decision,
// bypassing the matching heuristics. Amount and date are deliberately not
// re-validated. The prior payout status does not matter; even failed payouts
// may be linked, the operator may know better than the processor.
func (s *Service) ManualReconcile(ctx context.Context, payoutID, transactionID uuid.UUID, performedBy, reason string) error {
	ctx = logger.WithPayoutID(ctx, payoutID.String())

	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if _, err := s.transactions.GetByID(ctx, transactionID); err != nil {
		return err
	}

	claimed, err := s.transactions.Claim(ctx, transactionID, payoutID)
	if err != nil {
		return fmt.Errorf("claiming transaction %s: %w", transactionID, err)
	}
	if !claimed {
		return models.ErrTransactionMatched
	}

	if err := s.payouts.MarkManual(ctx, payoutID, transactionID); err != nil {
		// The transaction link is already written. This needs operator
		// attention; full two-phase atomicity depends on the backing store.
		s.logger.Error(ctx, "transaction claimed but payout update failed, records are inconsistent",
			"transaction_id", transactionID,
			"error", err,
		)
		return err
	}

	entry := &models.ManualMatchLog{
		ID:             uuid.New(),
		PayoutID:       payoutID,
		TransactionID:  transactionID,
		PreviousStatus: payout.Status,
		PerformedBy:    performedBy,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if err := s.payouts.RecordManualMatch(ctx, entry); err != nil {
		s.logger.Warn(ctx, "failed to record manual match audit entry", "error", err)
	}

	s.logger.Info(ctx, "manual reconcile committed",
		"transaction_id", transactionID,
		"previous_status", payout.Status,
	)

	return nil
}

// Promote confirms a landed payout as reconciled. Administrative action, not
// produced by the engine.
func (s *Service) Promote(ctx context.Context, payoutID uuid.UUID) error {
	return s.payouts.Promote(ctx, payoutID)
}

type Stats struct {
	Total       int64 `json:"total"`
	TotalAmount int64 `json:"total_amount"`

	PendingCount  int64 `json:"pending_count"`
	PendingAmount int64 `json:"pending_amount"`

	InTransitCount  int64 `json:"in_transit_count"`
	InTransitAmount int64 `json:"in_transit_amount"`

	LandedCount  int64 `json:"landed_count"`
	LandedAmount int64 `json:"landed_amount"`

	ReconciledCount  int64 `json:"reconciled_count"`
	ReconciledAmount int64 `json:"reconciled_amount"`

	FailedCount  int64 `json:"failed_count"`
	FailedAmount int64 `json:"failed_amount"`

	ManualCount  int64 `json:"manual_count"`
	ManualAmount int64 `json:"manual_amount"`
}

// Stats aggregates payout counts and amounts by status for the dashboard.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	var stats Stats

	rows, err := s.payouts.StatusCounts(ctx, userID)
	if err != nil {
		return stats, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.TotalAmount += r.Sum

		switch r.Status {
		case models.StatusPending:
			stats.PendingCount = r.Count
			stats.PendingAmount = r.Sum
		case models.StatusInTransit:
			stats.InTransitCount = r.Count
			stats.InTransitAmount = r.Sum
		case models.StatusLanded:
			stats.LandedCount = r.Count
			stats.LandedAmount = r.Sum
		case models.StatusReconciled:
			stats.ReconciledCount = r.Count
			stats.ReconciledAmount = r.Sum
		case models.StatusFailed:
			stats.FailedCount = r.Count
			stats.FailedAmount = r.Sum
		case models.StatusManual:
			stats.ManualCount = r.Count
			stats.ManualAmount = r.Sum
		}
	}

	return stats, nil
}
