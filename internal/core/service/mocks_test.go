package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var errMockStore = errors.New("mock store down")

// Mock OrderRepository
type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	lines     map[string][]domain.OrderLine
	updateErr error
	updates   int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{
		orders: make(map[string]domain.Order),
		lines:  make(map[string][]domain.OrderLine),
	}
}

func (m *mockOrderRepo) put(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *mockOrderRepo) get(id string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *mockOrderRepo) FindOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *mockOrderRepo) FindActiveOrderByTable(ctx context.Context, tableID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.TableID == tableID && o.IsActive() {
			return &o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.Version = 1
	m.orders[o.ID] = *o
	return nil
}

func (m *mockOrderRepo) UpdateOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(o)
}

func (m *mockOrderRepo) updateLocked(o *domain.Order) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s missing", o.ID)
	}
	if stored.Version != o.Version {
		return fmt.Errorf("version conflict on %s", o.ID)
	}
	o.Version++
	m.orders[o.ID] = *o
	m.updates++
	return nil
}

func (m *mockOrderRepo) ListLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderLine(nil), m.lines[orderID]...), nil
}

func (m *mockOrderRepo) SaveLine(ctx context.Context, o *domain.Order, line domain.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateLocked(o); err != nil {
		return err
	}
	lines := m.lines[line.OrderID]
	for i := range lines {
		if lines[i].ItemID == line.ItemID {
			lines[i] = line
			return nil
		}
	}
	m.lines[line.OrderID] = append(lines, line)
	return nil
}

func (m *mockOrderRepo) RemoveLine(ctx context.Context, o *domain.Order, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateLocked(o); err != nil {
		return err
	}
	var kept []domain.OrderLine
	for _, l := range m.lines[o.ID] {
		if l.ItemID != itemID {
			kept = append(kept, l)
		}
	}
	m.lines[o.ID] = kept
	return nil
}

func (m *mockOrderRepo) lineCount(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines[orderID])
}

// Mock PromotionRepository
type mockPromotionRepo struct {
	mu         sync.Mutex
	promotions map[string]domain.Promotion
	usages     []domain.PromotionUsage
	listErr    error
}

func newMockPromotionRepo(ps ...domain.Promotion) *mockPromotionRepo {
	m := &mockPromotionRepo{promotions: make(map[string]domain.Promotion)}
	for _, p := range ps {
		m.promotions[p.ID] = p
	}
	return m
}

func (m *mockPromotionRepo) FindPromotion(ctx context.Context, id string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.promotions[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockPromotionRepo) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Promotion, 0, len(m.promotions))
	for _, p := range m.promotions {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPromotionRepo) SavePromotion(ctx context.Context, p *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions[p.ID] = *p
	return nil
}

func (m *mockPromotionRepo) UpdatePromotion(ctx context.Context, p *domain.Promotion) error {
	return m.SavePromotion(ctx, p)
}

func (m *mockPromotionRepo) RecordUsage(ctx context.Context, u domain.PromotionUsage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.promotions[u.PromotionID]
	if !ok {
		return false, fmt.Errorf("promotion %s missing", u.PromotionID)
	}
	if !p.HasUsageLeft() {
		return false, nil
	}
	p.UsageCount++
	m.promotions[p.ID] = p
	m.usages = append(m.usages, u)
	return true, nil
}

func (m *mockPromotionRepo) RevertUsage(ctx context.Context, u domain.PromotionUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.promotions[u.PromotionID]
	p.UsageCount--
	m.promotions[p.ID] = p

	kept := m.usages[:0]
	for _, existing := range m.usages {
		if existing.ID != u.ID {
			kept = append(kept, existing)
		}
	}
	m.usages = kept
	return nil
}

func (m *mockPromotionRepo) usageCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.promotions[id].UsageCount
}

// Mock ItemCatalog
type mockCatalog struct {
	stock map[string]int
}

func (m *mockCatalog) IsAvailable(ctx context.Context, itemID string, qty int) (bool, error) {
	if m.stock == nil {
		return true, nil
	}
	left, ok := m.stock[itemID]
	return ok && left >= qty, nil
}

func (m *mockCatalog) FindMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error) {
	for _, it := range []domain.MenuItem{latte, bagel} {
		if it.ID == itemID {
			return &it, nil
		}
	}
	return nil, nil
}

// Mock Gateway
type mockGateway struct {
	mu      sync.Mutex
	err     error
	charges []port.ChargeRequest
}

func (m *mockGateway) Charge(ctx context.Context, req port.ChargeRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	m.charges = append(m.charges, req)
	return fmt.Sprintf("%s_TX%d", req.Method, len(m.charges)), nil
}

// Mock ReceiptSink
type mockSink struct {
	mu       sync.Mutex
	err      error
	receipts []port.Receipt
}

func (m *mockSink) Write(ctx context.Context, r port.Receipt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}
	m.receipts = append(m.receipts, r)
	return fmt.Sprintf("receipt-%d", len(m.receipts)), nil
}

// Mock OrderNotifier
type mockNotifier struct {
	mu     sync.Mutex
	err    error
	events []domain.OrderEvent
}

func (m *mockNotifier) Notify(ctx context.Context, e domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, e)
	return m.err
}

func (m *mockNotifier) types() []domain.OrderEventType {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.OrderEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu       sync.Mutex
	keys     map[string]bool
	releases int
}

func (m *mockIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotency) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	m.releases++
	return nil
}

func (m *mockIdempotency) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

var (
	testTaxRate = decimal.RequireFromString("0.08")
	testNow     = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testNow }

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// confirmedOrder builds a confirmed, unpaid order with no tax so totals are
// easy to read in assertions.
func confirmedOrder(id string, total int64) domain.Order {
	return domain.Order{
		ID:             id,
		OrderNumber:    "ORD-" + id,
		TableID:        "T1",
		StaffID:        "staff-1",
		TotalAmount:    money(total),
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		FinalAmount:    money(total),
		Status:         domain.OrderStatusConfirmed,
		PaymentStatus:  domain.PaymentStatusPending,
		Version:        1,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}
