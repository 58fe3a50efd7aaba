package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

type OrderService struct {
	orders  port.OrderRepository
	catalog port.ItemCatalog
	locker  port.OrderLocker
	taxRate decimal.Decimal
	logger  *zap.Logger
	opts    options
}

func NewOrderService(orders port.OrderRepository, catalog port.ItemCatalog, locker port.OrderLocker, taxRate decimal.Decimal, logger *zap.Logger, opts ...Option) *OrderService {
	return &OrderService{
		orders:  orders,
		catalog: catalog,
		locker:  locker,
		taxRate: taxRate,
		logger:  logger.Named("orders"),
		opts:    applyOptions(opts),
	}
}

// CreateOrder opens an order for a table. If the table already has an active
// order, that order is returned instead.
func (s *OrderService) CreateOrder(ctx context.Context, tableID, staffID, customerID string) (*domain.Order, error) {
	if tableID == "" || staffID == "" {
		return nil, fmt.Errorf("%w: table and staff are required", domain.ErrValidation)
	}

	unlock, err := s.locker.Lock(ctx, "table:"+tableID)
	if err != nil {
		return nil, storeErr("lock table", err)
	}
	defer unlock()

	existing, err := s.orders.FindActiveOrderByTable(ctx, tableID)
	if err != nil {
		return nil, storeErr("find active order", err)
	}
	if existing != nil {
		s.logger.Info("table already has an active order",
			zap.String("table_id", tableID),
			zap.String("order_number", existing.OrderNumber))
		return existing, nil
	}

	now := s.opts.now()
	order := &domain.Order{
		ID:             uuid.New().String(),
		OrderNumber:    newOrderNumber(now),
		TableID:        tableID,
		StaffID:        staffID,
		CustomerID:     customerID,
		TotalAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		FinalAmount:    decimal.Zero,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return nil, storeErr("save order", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("table_id", tableID),
		zap.String("staff_id", staffID))
	s.opts.notify(ctx, s.logger, domain.NewOrderEvent(domain.OrderEventCreated, order, now))

	return order, nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:4])
	return "ORD" + now.Format("20060102150405") + suffix
}

// AddItem adds quantity units of item to a pending order. Adding an item
// already on the order merges the quantities at the original unit price.
func (s *OrderService) AddItem(ctx context.Context, orderID string, item domain.MenuItem, quantity int) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}
	if item.ID == "" {
		return nil, fmt.Errorf("%w: item is required", domain.ErrValidation)
	}
	if !item.Available {
		return nil, fmt.Errorf("%w: item %s is not available", domain.ErrValidation, item.Name)
	}

	order, unlock, err := lockOrder(ctx, s.locker, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := requireEditable(order); err != nil {
		return nil, err
	}

	ok, err := s.catalog.IsAvailable(ctx, item.ID, quantity)
	if err != nil {
		return nil, storeErr("check availability", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: insufficient stock for %s", domain.ErrValidation, item.Name)
	}

	lines, err := s.orders.ListLines(ctx, orderID)
	if err != nil {
		return nil, storeErr("list lines", err)
	}

	line := domain.OrderLine{
		OrderID:   orderID,
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.UnitPrice,
	}
	merged := false
	for i := range lines {
		if lines[i].ItemID == item.ID {
			lines[i].Quantity += quantity
			line = lines[i]
			merged = true
			break
		}
	}
	if !merged {
		lines = append(lines, line)
	}

	s.applyTotals(order, lines)
	if err := s.orders.SaveLine(ctx, order, line); err != nil {
		return nil, storeErr("save line", err)
	}

	s.logger.Info("item added",
		zap.String("order_id", orderID),
		zap.String("item_id", item.ID),
		zap.Int("quantity", quantity),
		zap.String("total", order.TotalAmount.String()))
	s.opts.notify(ctx, s.logger, domain.NewOrderEvent(domain.OrderEventItemsChanged, order, order.UpdatedAt))

	return order, nil
}

func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID string) (*domain.Order, error) {
	order, unlock, err := lockOrder(ctx, s.locker, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := requireEditable(order); err != nil {
		return nil, err
	}

	lines, err := s.orders.ListLines(ctx, orderID)
	if err != nil {
		return nil, storeErr("list lines", err)
	}

	kept := lines[:0]
	found := false
	for _, l := range lines {
		if l.ItemID == itemID {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		return nil, fmt.Errorf("%w: item %s is not on order %s", domain.ErrNotFound, itemID, order.OrderNumber)
	}

	s.applyTotals(order, kept)
	if err := s.orders.RemoveLine(ctx, order, itemID); err != nil {
		return nil, storeErr("remove line", err)
	}

	s.logger.Info("item removed", zap.String("order_id", orderID), zap.String("item_id", itemID))
	s.opts.notify(ctx, s.logger, domain.NewOrderEvent(domain.OrderEventItemsChanged, order, order.UpdatedAt))

	return order, nil
}

func (s *OrderService) applyTotals(order *domain.Order, lines []domain.OrderLine) {
	order.TotalAmount = domain.SumLines(lines)
	order.Recalculate(s.taxRate)
	order.UpdatedAt = s.opts.now()
}

func requireEditable(order *domain.Order) error {
	if order.IsPaid() {
		return fmt.Errorf("%w: order %s is already paid", domain.ErrState, order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("%w: cannot change items of order %s in status %s", domain.ErrState, order.OrderNumber, order.Status)
	}
	return nil
}

// Confirm moves a pending order to confirmed.
func (s *OrderService) Confirm(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderEventConfirmed, "", func(o *domain.Order) error {
		if o.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be confirmed, order %s is %s", domain.ErrState, o.OrderNumber, o.Status)
		}
		o.Status = domain.OrderStatusConfirmed
		return nil
	})
}

// Complete moves a confirmed order to completed.
func (s *OrderService) Complete(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderEventCompleted, "", func(o *domain.Order) error {
		if o.Status != domain.OrderStatusConfirmed {
			return fmt.Errorf("%w: only confirmed orders can be completed, order %s is %s", domain.ErrState, o.OrderNumber, o.Status)
		}
		o.Status = domain.OrderStatusCompleted
		return nil
	})
}

// Cancel is allowed from pending or confirmed, as long as nothing was paid.
func (s *OrderService) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.OrderEventCancelled, reason, func(o *domain.Order) error {
		if !o.CanBeCancelled() {
			return fmt.Errorf("%w: order %s cannot be cancelled (status %s, payment %s)", domain.ErrState, o.OrderNumber, o.Status, o.PaymentStatus)
		}
		o.Status = domain.OrderStatusCancelled
		if reason != "" {
			o.Notes = appendNote(o.Notes, "Cancelled: "+reason)
		}
		return nil
	})
}

func (s *OrderService) transition(ctx context.Context, orderID string, event domain.OrderEventType, reason string, apply func(*domain.Order) error) (*domain.Order, error) {
	order, unlock, err := lockOrder(ctx, s.locker, s.orders, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	from := order.Status
	next := *order
	if err := apply(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.opts.now()

	if err := s.orders.UpdateOrder(ctx, &next); err != nil {
		return nil, storeErr("update order", err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", next.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next.Status)))

	ev := domain.NewOrderEvent(event, &next, next.UpdatedAt)
	ev.Reason = reason
	s.opts.notify(ctx, s.logger, ev)

	return &next, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, storeErr("load order", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return order, nil
}

func (s *OrderService) ListLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	lines, err := s.orders.ListLines(ctx, orderID)
	if err != nil {
		return nil, storeErr("list lines", err)
	}
	return lines, nil
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
