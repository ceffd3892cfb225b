package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"payout-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// In-memory implementations of the store interfaces, one per aggregate to
// mirror the repository split. They reproduce the conditional-write semantics
// of the Postgres repositories and back the service tests.

type MemoryPayoutStore struct {
	mu         sync.RWMutex
	payouts    map[uuid.UUID]*models.ExpectedPayout
	keys       map[string]uuid.UUID // processor|processor_payout_id
	manualLogs []models.ManualMatchLog
}

func NewMemoryPayoutStore() *MemoryPayoutStore {
	return &MemoryPayoutStore{
		payouts: make(map[uuid.UUID]*models.ExpectedPayout),
		keys:    make(map[string]uuid.UUID),
	}
}

func payoutKey(processor models.Processor, nativeID string) string {
	return string(processor) + "|" + nativeID
}

func (s *MemoryPayoutStore) Upsert(ctx context.Context, p *models.ExpectedPayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := payoutKey(p.Processor, p.ProcessorPayoutID)
	if id, exists := s.keys[key]; exists {
		existing := s.payouts[id]
		existing.Amount = p.Amount
		existing.Currency = p.Currency
		existing.ExpectedDate = p.ExpectedDate
		existing.ProcessorMetadata = p.ProcessorMetadata
		if !existing.Status.Terminal() {
			existing.Status = p.Status
		}
		existing.UpdatedAt = time.Now()
		return nil
	}

	cp := *p
	s.payouts[cp.ID] = &cp
	s.keys[key] = cp.ID
	return nil
}

func (s *MemoryPayoutStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExpectedPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.payouts[id]
	if !exists {
		return nil, models.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPayoutStore) FindMatchable(ctx context.Context, userID string) ([]models.ExpectedPayout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ExpectedPayout
	for _, p := range s.payouts {
		if !p.Status.Matchable() || p.BankTransactionID != nil {
			continue
		}
		if userID != "" && p.UserID != userID {
			continue
		}
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return out, nil
}

func (s *MemoryPayoutStore) Land(ctx context.Context, payoutID, transactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.payouts[payoutID]
	if !exists {
		return models.ErrPayoutNotFound
	}
	if !p.Status.Matchable() {
		return models.ErrPayoutNotMatchable
	}

	p.Status = models.StatusLanded
	p.BankTransactionID = &transactionID
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryPayoutStore) MarkManual(ctx context.Context, payoutID, transactionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.payouts[payoutID]
	if !exists {
		return models.ErrPayoutNotFound
	}

	p.Status = models.StatusManual
	p.BankTransactionID = &transactionID
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryPayoutStore) Promote(ctx context.Context, payoutID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.payouts[payoutID]
	if !exists {
		return models.ErrPayoutNotFound
	}
	if p.Status != models.StatusLanded {
		return models.ErrPayoutNotLanded
	}

	p.Status = models.StatusReconciled
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryPayoutStore) RecordManualMatch(ctx context.Context, entry *models.ManualMatchLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manualLogs = append(s.manualLogs, *entry)
	return nil
}

func (s *MemoryPayoutStore) ManualMatchLogs() []models.ManualMatchLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ManualMatchLog, len(s.manualLogs))
	copy(out, s.manualLogs)
	return out
}

func (s *MemoryPayoutStore) StatusCounts(ctx context.Context, userID string) ([]models.StatusCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[models.PayoutStatus]*models.StatusCount)
	for _, p := range s.payouts {
		if userID != "" && p.UserID != userID {
			continue
		}
		row, exists := byStatus[p.Status]
		if !exists {
			row = &models.StatusCount{Status: p.Status}
			byStatus[p.Status] = row
		}
		row.Count++
		row.Sum += p.Amount
	}

	var out []models.StatusCount
	for _, row := range byStatus {
		out = append(out, *row)
	}
	return out, nil
}

type MemoryTransactionStore struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*models.BankTransaction
	keys         map[string]uuid.UUID // connection|provider_transaction_id
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{
		transactions: make(map[uuid.UUID]*models.BankTransaction),
		keys:         make(map[string]uuid.UUID),
	}
}

func txKey(connectionID uuid.UUID, providerID string) string {
	return connectionID.String() + "|" + providerID
}

func (s *MemoryTransactionStore) Upsert(ctx context.Context, t *models.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey(t.BankConnectionID, t.ProviderTransactionID)
	if id, exists := s.keys[key]; exists {
		existing := s.transactions[id]
		existing.Amount = t.Amount
		existing.Date = t.Date
		existing.Description = t.Description
		existing.Category = t.Category
		existing.IsPotentialPayout = t.IsPotentialPayout
		return nil
	}

	cp := *t
	s.transactions[cp.ID] = &cp
	s.keys[key] = cp.ID
	return nil
}

func (s *MemoryTransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.transactions[id]
	if !exists {
		return nil, models.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryTransactionStore) FindUnmatchedCredits(ctx context.Context, userID string) ([]models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.BankTransaction
	for _, t := range s.transactions {
		if t.MatchedPayoutID != nil || t.Amount <= 0 {
			continue
		}
		if userID != "" && t.UserID != userID {
			continue
		}
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return out, nil
}

// Claim writes the payout link only if still absent, mirroring the conditional
// update the Postgres repository issues.
func (s *MemoryTransactionStore) Claim(ctx context.Context, transactionID, payoutID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.transactions[transactionID]
	if !exists {
		return false, models.ErrTransactionNotFound
	}
	if t.MatchedPayoutID != nil {
		return false, nil
	}

	t.MatchedPayoutID = &payoutID
	return true, nil
}

// Unclaim removes the payout link only while it still points at the given
// payout, mirroring the conditional update the Postgres repository issues.
func (s *MemoryTransactionStore) Unclaim(ctx context.Context, transactionID, payoutID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.transactions[transactionID]
	if !exists {
		return models.ErrTransactionNotFound
	}
	if t.MatchedPayoutID != nil && *t.MatchedPayoutID == payoutID {
		t.MatchedPayoutID = nil
	}
	return nil
}

func (s *MemoryTransactionStore) DeleteByProviderID(ctx context.Context, connectionID uuid.UUID, providerTransactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := txKey(connectionID, providerTransactionID)
	if id, exists := s.keys[key]; exists {
		delete(s.transactions, id)
		delete(s.keys, key)
	}
	return nil
}

type MemoryConnectionStore struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*models.BankConnection
	items       map[string]uuid.UUID // provider_item_id
}

func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{
		connections: make(map[uuid.UUID]*models.BankConnection),
		items:       make(map[string]uuid.UUID),
	}
}

func (s *MemoryConnectionStore) Add(conn *models.BankConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *conn
	s.connections[cp.ID] = &cp
	s.items[cp.ProviderItemID] = cp.ID
}

// Upsert registers a connection keyed by provider_item_id. Re-registering the
// same item refreshes the descriptive columns on the existing row.
func (s *MemoryConnectionStore) Upsert(ctx context.Context, conn *models.BankConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, exists := s.items[conn.ProviderItemID]; exists {
		existing := s.connections[id]
		existing.InstitutionName = conn.InstitutionName
		existing.AccountMask = conn.AccountMask
		existing.IsActive = conn.IsActive
		return nil
	}

	cp := *conn
	s.connections[cp.ID] = &cp
	s.items[cp.ProviderItemID] = cp.ID
	return nil
}

func (s *MemoryConnectionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.BankConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, exists := s.connections[id]
	if !exists {
		return nil, models.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (s *MemoryConnectionStore) GetByProviderItemID(ctx context.Context, providerItemID string) (*models.BankConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.items[providerItemID]
	if !exists {
		return nil, models.ErrConnectionNotFound
	}
	cp := *s.connections[id]
	return &cp, nil
}

func (s *MemoryConnectionStore) TouchSynced(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, exists := s.connections[id]
	if !exists {
		return models.ErrConnectionNotFound
	}

	now := time.Now()
	conn.LastSyncedAt = &now
	return nil
}
