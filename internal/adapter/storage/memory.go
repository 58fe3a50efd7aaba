package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type menuEntry struct {
	item  domain.MenuItem
	stock int // negative means untracked
}

// MemoryStore keeps orders, promotions and the menu in process memory. It
// follows the same contracts as MySQLAdapter, optimistic version check
// included, and backs single-node demos, the stress tool and handler tests.
type MemoryStore struct {
	mu         sync.Mutex
	orders     map[string]domain.Order
	lines      map[string][]domain.OrderLine
	promotions map[string]domain.Promotion
	usages     map[string]domain.PromotionUsage
	menu       map[string]menuEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:     make(map[string]domain.Order),
		lines:      make(map[string][]domain.OrderLine),
		promotions: make(map[string]domain.Promotion),
		usages:     make(map[string]domain.PromotionUsage),
		menu:       make(map[string]menuEntry),
	}
}

func (s *MemoryStore) FindOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *MemoryStore) FindActiveOrderByTable(ctx context.Context, tableID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *domain.Order
	for _, o := range s.orders {
		if o.TableID != tableID || !o.IsActive() {
			continue
		}
		if found == nil || o.CreatedAt.After(found.CreatedAt) {
			found = &o
		}
	}
	return found, nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("insert order: duplicate id %s", order.ID)
	}
	order.Version = 1
	s.orders[order.ID] = *order
	return nil
}

func (s *MemoryStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOrderLocked(order)
}

func (s *MemoryStore) updateOrderLocked(order *domain.Order) error {
	stored, ok := s.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return ErrOptimisticLock
	}
	order.Version++
	s.orders[order.ID] = *order
	return nil
}

func (s *MemoryStore) ListLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OrderLine(nil), s.lines[orderID]...), nil
}

func (s *MemoryStore) SaveLine(ctx context.Context, order *domain.Order, line domain.OrderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateOrderLocked(order); err != nil {
		return err
	}

	lines := s.lines[line.OrderID]
	for i := range lines {
		if lines[i].ItemID == line.ItemID {
			lines[i].Quantity = line.Quantity
			return nil
		}
	}
	s.lines[line.OrderID] = append(lines, line)
	return nil
}

func (s *MemoryStore) RemoveLine(ctx context.Context, order *domain.Order, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateOrderLocked(order); err != nil {
		return err
	}

	var kept []domain.OrderLine
	for _, l := range s.lines[order.ID] {
		if l.ItemID != itemID {
			kept = append(kept, l)
		}
	}
	s.lines[order.ID] = kept
	return nil
}

func (s *MemoryStore) FindPromotion(ctx context.Context, promotionID string) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[promotionID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SavePromotion(ctx context.Context, p *domain.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.promotions[p.ID]; exists {
		return fmt.Errorf("insert promotion: duplicate id %s", p.ID)
	}
	s.promotions[p.ID] = *p
	return nil
}

func (s *MemoryStore) UpdatePromotion(ctx context.Context, p *domain.Promotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.promotions[p.ID]
	if !ok {
		return nil
	}
	count := stored.UsageCount
	stored = *p
	stored.UsageCount = count
	s.promotions[p.ID] = stored
	return nil
}

func (s *MemoryStore) RecordUsage(ctx context.Context, usage domain.PromotionUsage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.promotions[usage.PromotionID]
	if !ok || !p.HasUsageLeft() {
		return false, nil
	}
	p.UsageCount++
	p.UpdatedAt = usage.AppliedAt
	s.promotions[p.ID] = p
	s.usages[usage.ID] = usage
	return true, nil
}

func (s *MemoryStore) RevertUsage(ctx context.Context, usage domain.PromotionUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usages[usage.ID]; !ok {
		return nil
	}
	delete(s.usages, usage.ID)

	if p, ok := s.promotions[usage.PromotionID]; ok && p.UsageCount > 0 {
		p.UsageCount--
		s.promotions[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) IsAvailable(ctx context.Context, itemID string, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.menu[itemID]
	if !ok || !e.item.Available {
		return false, nil
	}
	return e.stock < 0 || e.stock >= quantity, nil
}

func (s *MemoryStore) FindMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.menu[itemID]
	if !ok {
		return nil, nil
	}
	item := e.item
	return &item, nil
}

// SaveMenuItem mirrors MySQLAdapter.SaveMenuItem: stock < 0 disables stock
// tracking.
func (s *MemoryStore) SaveMenuItem(ctx context.Context, item domain.MenuItem, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menu[item.ID] = menuEntry{item: item, stock: stock}
	return nil
}

// Ping lets the memory store stand in wherever a health probe is expected.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
