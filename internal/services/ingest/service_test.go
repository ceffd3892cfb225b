package ingest

import (
	"context"
	"testing"
	"time"

	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/internal/storage"
	"payout-reconciliation-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMinPayoutAmount = 5000

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService() (*Service, *storage.MemoryPayoutStore, *storage.MemoryTransactionStore, *storage.MemoryConnectionStore) {
	payouts := storage.NewMemoryPayoutStore()
	transactions := storage.NewMemoryTransactionStore()
	connections := storage.NewMemoryConnectionStore()
	svc := NewService(payouts, transactions, connections, testMinPayoutAmount, logger.NewNop())
	return svc, payouts, transactions, connections
}

func stripeEvent(nativeID string, amount int64, status models.PayoutStatus) PayoutEvent {
	return PayoutEvent{
		UserID:            "user-1",
		Processor:         models.ProcessorStripe,
		ProcessorPayoutID: nativeID,
		Amount:            amount,
		Currency:          "usd",
		Status:            status,
	}
}

func TestApplyPayoutEvent_IdempotentUpsert(t *testing.T) {
	svc, payouts, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ApplyPayoutEvent(ctx, stripeEvent("po_123", 5000, models.StatusPending)))
	require.NoError(t, svc.ApplyPayoutEvent(ctx, stripeEvent("po_123", 5000, models.StatusInTransit)))

	matchable, err := payouts.FindMatchable(ctx, "")
	require.NoError(t, err)
	require.Len(t, matchable, 1, "re-delivery must update, never duplicate")
	assert.Equal(t, models.StatusInTransit, matchable[0].Status)
}

func TestApplyPayoutEvent_TerminalStatusNotDowngraded(t *testing.T) {
	svc, payouts, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ApplyPayoutEvent(ctx, stripeEvent("po_456", 5000, models.StatusPending)))

	matchable, err := payouts.FindMatchable(ctx, "")
	require.NoError(t, err)
	require.Len(t, matchable, 1)
	payoutID := matchable[0].ID

	txID := uuid.New()
	require.NoError(t, payouts.Land(ctx, payoutID, txID))

	// Late processor event after the deposit already landed.
	require.NoError(t, svc.ApplyPayoutEvent(ctx, stripeEvent("po_456", 5000, models.StatusInTransit)))

	payout, err := payouts.GetByID(ctx, payoutID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLanded, payout.Status)
	require.NotNil(t, payout.BankTransactionID)
	assert.Equal(t, txID, *payout.BankTransactionID)
}

func TestApplyPayoutEvent_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	ev := stripeEvent("po_1", 5000, models.StatusPending)
	ev.Processor = "paypal"
	assert.ErrorIs(t, svc.ApplyPayoutEvent(ctx, ev), models.ErrInvalidProcessor)

	ev = stripeEvent("po_1", 5000, models.StatusLanded)
	assert.ErrorIs(t, svc.ApplyPayoutEvent(ctx, ev), models.ErrInvalidStatus,
		"landed is only ever set by the engine, never by a processor")

	ev = stripeEvent("", 5000, models.StatusPending)
	assert.Error(t, svc.ApplyPayoutEvent(ctx, ev))

	ev = stripeEvent("po_1", 0, models.StatusPending)
	assert.Error(t, svc.ApplyPayoutEvent(ctx, ev))
}

func TestApplyPayoutEvent_NormalizesCurrency(t *testing.T) {
	svc, payouts, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ApplyPayoutEvent(ctx, stripeEvent("po_789", 5000, models.StatusPending)))

	matchable, err := payouts.FindMatchable(ctx, "")
	require.NoError(t, err)
	require.Len(t, matchable, 1)
	assert.Equal(t, "USD", matchable[0].Currency)
}

func seedConnection(store *storage.MemoryConnectionStore, userID string) *models.BankConnection {
	conn := &models.BankConnection{
		ID:             uuid.New(),
		UserID:         userID,
		ProviderItemID: uuid.New().String(),
		IsActive:       true,
	}
	store.Add(conn)
	return conn
}

func TestRegisterConnection_SeedsConnectionForSync(t *testing.T) {
	svc, _, _, connections := newTestService()
	ctx := context.Background()

	conn, err := svc.RegisterConnection(ctx, ConnectionRegistration{
		UserID:          "user-1",
		ProviderItemID:  "item_1",
		InstitutionName: "First National",
		AccountMask:     "4321",
	})
	require.NoError(t, err)

	stored, err := connections.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.True(t, stored.IsActive)

	result, err := svc.ApplyBankSync(ctx, SyncBatch{
		BankConnectionID: conn.ID,
		Added: []SyncedTransaction{
			{ProviderTransactionID: "tx_1", Amount: 6000, Date: day("2024-03-01")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, "user-1", result.UserID)
}

func TestRegisterConnection_SameItemUpdatesInPlace(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	first, err := svc.RegisterConnection(ctx, ConnectionRegistration{
		UserID:         "user-1",
		ProviderItemID: "item_1",
	})
	require.NoError(t, err)

	second, err := svc.RegisterConnection(ctx, ConnectionRegistration{
		UserID:          "user-1",
		ProviderItemID:  "item_1",
		InstitutionName: "First National",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "re-registration must not create a second connection")
	assert.Equal(t, "First National", second.InstitutionName)
}

func TestRegisterConnection_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RegisterConnection(ctx, ConnectionRegistration{ProviderItemID: "item_1"})
	assert.Error(t, err)

	_, err = svc.RegisterConnection(ctx, ConnectionRegistration{UserID: "user-1"})
	assert.Error(t, err)
}

func TestApplyBankSync_AddsAndFlagsPotentialPayouts(t *testing.T) {
	svc, _, transactions, connections := newTestService()
	ctx := context.Background()

	conn := seedConnection(connections, "user-1")

	result, err := svc.ApplyBankSync(ctx, SyncBatch{
		BankConnectionID: conn.ID,
		Added: []SyncedTransaction{
			{ProviderTransactionID: "tx_big", Amount: 150000, Date: day("2024-03-03"), Description: "STRIPE TRANSFER"},
			{ProviderTransactionID: "tx_small", Amount: 1200, Date: day("2024-03-03"), Description: "COFFEE REFUND"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, "user-1", result.UserID)

	credits, err := transactions.FindUnmatchedCredits(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, credits, 2)

	byProvider := map[string]models.BankTransaction{}
	for _, tx := range credits {
		byProvider[tx.ProviderTransactionID] = tx
	}
	assert.True(t, byProvider["tx_big"].IsPotentialPayout)
	assert.False(t, byProvider["tx_small"].IsPotentialPayout)

	updated, err := connections.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastSyncedAt)
}

func TestApplyBankSync_ModifiedAndRemoved(t *testing.T) {
	svc, _, transactions, connections := newTestService()
	ctx := context.Background()

	conn := seedConnection(connections, "user-1")

	_, err := svc.ApplyBankSync(ctx, SyncBatch{
		BankConnectionID: conn.ID,
		Added: []SyncedTransaction{
			{ProviderTransactionID: "tx_1", Amount: 6000, Date: day("2024-03-01")},
			{ProviderTransactionID: "tx_2", Amount: 7000, Date: day("2024-03-01")},
		},
	})
	require.NoError(t, err)

	result, err := svc.ApplyBankSync(ctx, SyncBatch{
		BankConnectionID: conn.ID,
		Modified: []SyncedTransaction{
			{ProviderTransactionID: "tx_1", Amount: 6500, Date: day("2024-03-02"), Description: "STRIPE"},
		},
		Removed: []string{"tx_2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, result.Removed)

	credits, err := transactions.FindUnmatchedCredits(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, credits, 1, "modified row updated in place, removed row gone")
	assert.Equal(t, "tx_1", credits[0].ProviderTransactionID)
	assert.Equal(t, int64(6500), credits[0].Amount)
	assert.Equal(t, "STRIPE", credits[0].Description)
}

func TestApplyBankSync_UnknownConnection(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.ApplyBankSync(context.Background(), SyncBatch{BankConnectionID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrConnectionNotFound)
}
