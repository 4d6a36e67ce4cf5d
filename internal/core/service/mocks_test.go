package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flipzon/flash-sale/internal/core/domain"
)

// Mock SaleRepository
type mockSaleRepo struct {
	mu    sync.Mutex
	sales map[string]domain.Sale
	err   error
}

func (m *mockSaleRepo) GetActiveSale(ctx context.Context, saleID string, now time.Time) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sales[saleID]
	if !ok || !s.AdmitsAt(now) {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSaleRepo) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sales[saleID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSaleRepo) ListSalesByItem(ctx context.Context, itemID string) ([]domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Sale
	for _, s := range m.sales {
		if s.ItemID == itemID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Mock StockLedger
type mockStockLedger struct {
	mu           sync.Mutex
	stock        map[string]int
	reserveErr   error
	releaseFails int // fail this many Release calls before succeeding
	releaseCalls int
}

func (m *mockStockLedger) TryReserve(ctx context.Context, itemID string, quantity int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserveErr != nil {
		return 0, false, m.reserveErr
	}
	current, ok := m.stock[itemID]
	if !ok || current < quantity {
		return 0, false, nil
	}
	m.stock[itemID] = current - quantity
	return current - quantity, true, nil
}

func (m *mockStockLedger) Release(ctx context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseCalls++
	if m.releaseFails > 0 {
		m.releaseFails--
		return errors.New("stock release unavailable")
	}
	m.stock[itemID] += quantity
	return nil
}

func (m *mockStockLedger) SetStock(ctx context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[itemID] = quantity
	return nil
}

func (m *mockStockLedger) Remaining(ctx context.Context, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[itemID], nil
}

func (m *mockStockLedger) stockOf(itemID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[itemID]
}

// Mock QuotaKeeper
type mockQuotaKeeper struct {
	mu           sync.Mutex
	totals       map[string]int
	admitErr     error
	releaseFails int
}

func quotaCellKey(saleID, customerID string) string {
	return saleID + "|" + customerID
}

func (m *mockQuotaKeeper) TryAdmit(ctx context.Context, customerID, saleID string, quantity, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.admitErr != nil {
		return 0, false, m.admitErr
	}
	key := quotaCellKey(saleID, customerID)
	if m.totals[key]+quantity > limit {
		return 0, false, nil
	}
	m.totals[key] += quantity
	return m.totals[key], true, nil
}

func (m *mockQuotaKeeper) Release(ctx context.Context, customerID, saleID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.releaseFails > 0 {
		m.releaseFails--
		return errors.New("quota release unavailable")
	}
	key := quotaCellKey(saleID, customerID)
	if quantity >= m.totals[key] {
		m.totals[key] = 0
	} else {
		m.totals[key] -= quantity
	}
	return nil
}

func (m *mockQuotaKeeper) SetTotal(ctx context.Context, customerID, saleID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[quotaCellKey(saleID, customerID)] = total
	return nil
}

func (m *mockQuotaKeeper) ListCustomers(ctx context.Context, saleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := saleID + "|"
	var out []string
	for key := range m.totals {
		if strings.HasPrefix(key, prefix) {
			out = append(out, strings.TrimPrefix(key, prefix))
		}
	}
	return out, nil
}

func (m *mockQuotaKeeper) totalOf(saleID, customerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[quotaCellKey(saleID, customerID)]
}

// Mock LeaseManager. With alwaysGrant set it hands out tokens without
// mutual exclusion, for concurrency tests that target the atomic
// primitives rather than the lease layer.
type mockLeaseManager struct {
	mu          sync.Mutex
	leases      map[string]string
	nextToken   int
	alwaysGrant bool
	alwaysHeld  bool
	acquireErr  error
}

func (m *mockLeaseManager) Acquire(ctx context.Context, itemID string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acquireErr != nil {
		return "", false, m.acquireErr
	}
	if m.alwaysHeld {
		return "", false, nil
	}
	m.nextToken++
	token := fmt.Sprintf("token-%d", m.nextToken)
	if m.alwaysGrant {
		return token, true, nil
	}
	if _, held := m.leases[itemID]; held {
		return "", false, nil
	}
	m.leases[itemID] = token
	return token, true, nil
}

func (m *mockLeaseManager) Renew(ctx context.Context, itemID, token string, extension time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alwaysGrant {
		return true, nil
	}
	return m.leases[itemID] == token, nil
}

func (m *mockLeaseManager) Release(ctx context.Context, itemID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alwaysGrant {
		return true, nil
	}
	if m.leases[itemID] != token {
		return false, nil
	}
	delete(m.leases, itemID)
	return true, nil
}

// Mock TransactionRepository
type mockTxnRepo struct {
	mu          sync.Mutex
	recs        map[string]domain.TransactionRecord
	order       []string
	recordFails int // fail this many Record calls before succeeding
	statusErrs  map[domain.TransactionStatus]error
	checkpoints map[string]time.Time

	checkpointReads int
}

func newMockTxnRepo() *mockTxnRepo {
	return &mockTxnRepo{
		recs:        make(map[string]domain.TransactionRecord),
		statusErrs:  make(map[domain.TransactionStatus]error),
		checkpoints: make(map[string]time.Time),
	}
}

func (m *mockTxnRepo) Record(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recordFails > 0 {
		m.recordFails--
		return domain.TransactionRecord{}, errors.New("transaction store unavailable")
	}
	if existing, ok := m.recs[rec.ID]; ok {
		return existing, nil
	}
	m.recs[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec, nil
}

func (m *mockTxnRepo) UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.statusErrs[to]; err != nil {
		return err
	}
	rec, ok := m.recs[id]
	if !ok {
		return errors.New("transaction not found")
	}
	if rec.Status == to {
		return nil
	}
	if rec.Status != from {
		return fmt.Errorf("status conflict: %s is %s", id, rec.Status)
	}
	rec.Status = to
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Millisecond)
	m.recs[id] = rec
	return nil
}

func (m *mockTxnRepo) ListByItemSince(ctx context.Context, itemID string, since time.Time) ([]domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TransactionRecord
	for _, id := range m.order {
		rec := m.recs[id]
		if rec.ItemID == itemID && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockTxnRepo) GetCheckpoint(ctx context.Context, itemID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpointReads++
	return m.checkpoints[itemID], nil
}

func (m *mockTxnRepo) SaveCheckpoint(ctx context.Context, itemID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[itemID] = at
	return nil
}

func (m *mockTxnRepo) statusOf(id string) domain.TransactionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recs[id].Status
}

func (m *mockTxnRepo) countByStatus(status domain.TransactionStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.recs {
		if rec.Status == status {
			n++
		}
	}
	return n
}
