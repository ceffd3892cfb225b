package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/internal/storage"
	"payout-reconciliation-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func seedPayout(t *testing.T, store *storage.MemoryPayoutStore, userID string, amount int64, expectedDate *time.Time, status models.PayoutStatus) models.ExpectedPayout {
	t.Helper()

	payout := models.ExpectedPayout{
		ID:                uuid.New(),
		UserID:            userID,
		Processor:         models.ProcessorStripe,
		ProcessorPayoutID: uuid.New().String(),
		Amount:            amount,
		Currency:          "USD",
		ExpectedDate:      expectedDate,
		Status:            status,
		CreatedAt:         time.Now(),
	}
	require.NoError(t, store.Upsert(context.Background(), &payout))
	return payout
}

func seedTransaction(t *testing.T, store *storage.MemoryTransactionStore, userID string, amount int64, date time.Time, description string) models.BankTransaction {
	t.Helper()

	tx := models.BankTransaction{
		ID:                    uuid.New(),
		UserID:                userID,
		BankConnectionID:      uuid.New(),
		ProviderTransactionID: uuid.New().String(),
		Amount:                amount,
		Date:                  date,
		Description:           description,
		CreatedAt:             time.Now(),
	}
	require.NoError(t, store.Upsert(context.Background(), &tx))
	return tx
}

func newTestService() (*Service, *storage.MemoryPayoutStore, *storage.MemoryTransactionStore) {
	payouts := storage.NewMemoryPayoutStore()
	transactions := storage.NewMemoryTransactionStore()
	return NewService(payouts, transactions, logger.NewNop()), payouts, transactions
}

func TestRun_LandsMatchingPayout(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 150000, dayPtr("2024-03-01"), models.StatusPending)
	tx := seedTransaction(t, transactions, "user-1", 150000, day("2024-03-03"), "STRIPE TRANSFER")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	updated, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLanded, updated.Status)
	require.NotNil(t, updated.BankTransactionID)
	assert.Equal(t, tx.ID, *updated.BankTransactionID)

	claimed, err := transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.MatchedPayoutID)
	assert.Equal(t, payout.ID, *claimed.MatchedPayoutID)
}

func TestRun_DepositTooLateStaysPending(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 150000, dayPtr("2024-03-01"), models.StatusPending)
	seedTransaction(t, transactions, "user-1", 150000, day("2024-03-10"), "STRIPE TRANSFER")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, matched)

	updated, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.Nil(t, updated.BankTransactionID)
}

func TestRun_EmptyCandidateSets(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, matched)

	seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	matched, err = svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, matched, "no transactions is a no-op, not an error")

	seedTransaction(t, transactions, "user-1", 9999, day("2024-03-01"), "")
	matched, err = svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, matched)
}

func TestRun_SecondRunMatchesNothing(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	seedPayout(t, payouts, "user-1", 1000, nil, models.StatusInTransit)
	seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	matched, err = svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, matched, "re-run with no new data is a no-op")
}

func TestRun_OneTransactionLandsOnePayout(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	first := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	time.Sleep(time.Millisecond)
	second := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	landed, err := payouts.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLanded, landed.Status)

	pending, err := payouts.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Nil(t, pending.BankTransactionID)
}

func TestRun_ScopedToOwner(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	mine := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	theirs := seedPayout(t, payouts, "user-2", 2000, nil, models.StatusPending)
	seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")
	seedTransaction(t, transactions, "user-2", 2000, day("2024-03-01"), "")

	matched, err := svc.Run(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	landed, err := payouts.GetByID(ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLanded, landed.Status)

	untouched, err := payouts.GetByID(ctx, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, untouched.Status)
}

// claimLosingStore simulates a concurrent run winning the conditional write.
type claimLosingStore struct {
	*storage.MemoryTransactionStore
	lost int
}

func (s *claimLosingStore) Claim(ctx context.Context, transactionID, payoutID uuid.UUID) (bool, error) {
	s.lost++
	return false, nil
}

func TestRun_LostClaimSkippedSilently(t *testing.T) {
	payouts := storage.NewMemoryPayoutStore()
	transactions := storage.NewMemoryTransactionStore()
	losing := &claimLosingStore{MemoryTransactionStore: transactions}
	svc := NewService(payouts, losing, logger.NewNop())
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err, "a lost race is not an error")
	assert.Equal(t, 0, matched)
	assert.Equal(t, 1, losing.lost)

	still, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, still.Status, "payout remains a future candidate")
}

// landRacingStore lands the payout on a rival transaction just before the
// first commit, simulating a concurrent run winning the payout side of the
// conditional write.
type landRacingStore struct {
	*storage.MemoryPayoutStore
	rival uuid.UUID
	raced bool
}

func (s *landRacingStore) Land(ctx context.Context, payoutID, transactionID uuid.UUID) error {
	if !s.raced {
		s.raced = true
		if err := s.MemoryPayoutStore.Land(ctx, payoutID, s.rival); err != nil {
			return err
		}
	}
	return s.MemoryPayoutStore.Land(ctx, payoutID, transactionID)
}

func TestRun_LostLandingRaceReleasesClaim(t *testing.T) {
	payouts := storage.NewMemoryPayoutStore()
	transactions := storage.NewMemoryTransactionStore()
	rival := uuid.New()
	racing := &landRacingStore{MemoryPayoutStore: payouts, rival: rival}
	svc := NewService(racing, transactions, logger.NewNop())
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	tx := seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	matched, err := svc.Run(ctx, "")
	require.NoError(t, err, "a lost landing race is not an error")
	assert.Equal(t, 0, matched)

	released, err := transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, released.MatchedPayoutID, "claim released, deposit stays available")

	landed, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLanded, landed.Status)
	require.NotNil(t, landed.BankTransactionID)
	assert.Equal(t, rival, *landed.BankTransactionID, "the concurrent run's link stands")
}

// failingPayoutStore propagates a transient read failure.
type failingPayoutStore struct {
	*storage.MemoryPayoutStore
	err error
}

func (s *failingPayoutStore) FindMatchable(ctx context.Context, userID string) ([]models.ExpectedPayout, error) {
	return nil, s.err
}

func TestRun_StoreErrorPropagates(t *testing.T) {
	payouts := storage.NewMemoryPayoutStore()
	transactions := storage.NewMemoryTransactionStore()
	storeErr := errors.New("connection refused")
	svc := NewService(&failingPayoutStore{MemoryPayoutStore: payouts, err: storeErr}, transactions, logger.NewNop())

	_, err := svc.Run(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}

func TestManualReconcile_OverridesFailedStatus(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusFailed)
	tx := seedTransaction(t, transactions, "user-1", 999, day("2024-03-01"), "WIRE IN")

	err := svc.ManualReconcile(ctx, payout.ID, tx.ID, "ops@example.com", "deposit visible on statement")
	require.NoError(t, err)

	updated, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusManual, updated.Status)
	require.NotNil(t, updated.BankTransactionID)
	assert.Equal(t, tx.ID, *updated.BankTransactionID)

	claimed, err := transactions.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.MatchedPayoutID)
	assert.Equal(t, payout.ID, *claimed.MatchedPayoutID)

	logs := payouts.ManualMatchLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusFailed, logs[0].PreviousStatus)
	assert.Equal(t, "ops@example.com", logs[0].PerformedBy)
}

func TestManualReconcile_UnknownIdentifiers(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	tx := seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	err := svc.ManualReconcile(ctx, uuid.New(), tx.ID, "", "")
	assert.ErrorIs(t, err, models.ErrPayoutNotFound)

	err = svc.ManualReconcile(ctx, payout.ID, uuid.New(), "", "")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	untouched, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, untouched.Status, "no partial state change")
}

func TestManualReconcile_TransactionAlreadyMatched(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	first := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	second := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	tx := seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	require.NoError(t, svc.ManualReconcile(ctx, first.ID, tx.ID, "", ""))

	err := svc.ManualReconcile(ctx, second.ID, tx.ID, "", "")
	assert.ErrorIs(t, err, models.ErrTransactionMatched)
}

func TestPromote(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	payout := seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	seedTransaction(t, transactions, "user-1", 1000, day("2024-03-01"), "")

	err := svc.Promote(ctx, payout.ID)
	assert.ErrorIs(t, err, models.ErrPayoutNotLanded, "only landed payouts can be promoted")

	_, err = svc.Run(ctx, "")
	require.NoError(t, err)

	require.NoError(t, svc.Promote(ctx, payout.ID))

	updated, err := payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReconciled, updated.Status)

	assert.ErrorIs(t, svc.Promote(ctx, uuid.New()), models.ErrPayoutNotFound)
}

func TestStats(t *testing.T) {
	svc, payouts, transactions := newTestService()
	ctx := context.Background()

	seedPayout(t, payouts, "user-1", 1000, nil, models.StatusPending)
	seedPayout(t, payouts, "user-1", 2500, nil, models.StatusPending)
	seedPayout(t, payouts, "user-1", 4000, nil, models.StatusFailed)
	seedPayout(t, payouts, "user-2", 7000, nil, models.StatusPending)
	seedTransaction(t, transactions, "user-1", 2500, day("2024-03-01"), "")

	_, err := svc.Run(ctx, "user-1")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(7500), stats.TotalAmount)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(1000), stats.PendingAmount)
	assert.Equal(t, int64(1), stats.LandedCount)
	assert.Equal(t, int64(2500), stats.LandedAmount)
	assert.Equal(t, int64(1), stats.FailedCount)
	assert.Equal(t, int64(4000), stats.FailedAmount)

	global, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), global.Total)
}
