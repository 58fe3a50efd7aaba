package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

type PromotionService struct {
	promotions port.PromotionRepository
	orders     port.OrderRepository
	locker     port.OrderLocker
	taxRate    decimal.Decimal
	logger     *zap.Logger
	opts       options
}

func NewPromotionService(promotions port.PromotionRepository, orders port.OrderRepository, locker port.OrderLocker, taxRate decimal.Decimal, logger *zap.Logger, opts ...Option) *PromotionService {
	return &PromotionService{
		promotions: promotions,
		orders:     orders,
		locker:     locker,
		taxRate:    taxRate,
		logger:     logger.Named("promotions"),
		opts:       applyOptions(opts),
	}
}

// GetActivePromotions returns promotions that are switched on and inside
// their validity window.
func (s *PromotionService) GetActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	all, err := s.promotions.ListPromotions(ctx)
	if err != nil {
		return nil, storeErr("list promotions", err)
	}

	now := s.opts.now()
	active := make([]domain.Promotion, 0, len(all))
	for _, p := range all {
		if p.IsActiveAt(now) {
			active = append(active, p)
		}
	}
	return active, nil
}

// GetApplicablePromotions narrows the active promotions to those an order
// of the given subtotal qualifies for.
func (s *PromotionService) GetApplicablePromotions(ctx context.Context, orderAmount decimal.Decimal) ([]domain.Promotion, error) {
	active, err := s.GetActivePromotions(ctx)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	applicable := make([]domain.Promotion, 0, len(active))
	for _, p := range active {
		if p.CanApplyTo(orderAmount, now) {
			applicable = append(applicable, p)
		}
	}

	s.logger.Debug("applicable promotions",
		zap.String("order_amount", orderAmount.String()),
		zap.Int("count", len(applicable)))
	return applicable, nil
}

func (s *PromotionService) GetExpiringSoon(ctx context.Context) ([]domain.Promotion, error) {
	active, err := s.GetActivePromotions(ctx)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	var expiring []domain.Promotion
	for _, p := range active {
		if p.IsExpiringSoon(now) {
			expiring = append(expiring, p)
		}
	}
	return expiring, nil
}

// ApplyPromotionToOrder discounts an order with one promotion and returns
// the discount. The usage count and the usage log are written together; if
// the order cannot be saved afterwards the usage is reverted.
func (s *PromotionService) ApplyPromotionToOrder(ctx context.Context, orderID, promotionID string) (decimal.Decimal, error) {
	if orderID == "" || promotionID == "" {
		return decimal.Zero, fmt.Errorf("%w: order and promotion are required", domain.ErrValidation)
	}

	order, unlock, err := lockOrder(ctx, s.locker, s.orders, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	defer unlock()

	if order.IsPaid() {
		return decimal.Zero, fmt.Errorf("%w: order %s is already paid", domain.ErrState, order.OrderNumber)
	}
	if order.Status.IsTerminal() {
		return decimal.Zero, fmt.Errorf("%w: order %s is %s", domain.ErrState, order.OrderNumber, order.Status)
	}
	if order.PromotionID != "" {
		return decimal.Zero, fmt.Errorf("%w: order %s already has a promotion", domain.ErrValidation, order.OrderNumber)
	}

	promotion, err := s.promotions.FindPromotion(ctx, promotionID)
	if err != nil {
		return decimal.Zero, storeErr("load promotion", err)
	}
	if promotion == nil {
		return decimal.Zero, fmt.Errorf("%w: promotion %s", domain.ErrNotFound, promotionID)
	}

	now := s.opts.now()
	if !promotion.CanApplyTo(order.TotalAmount, now) {
		return decimal.Zero, fmt.Errorf("%w: promotion %q does not apply to an order of %s", domain.ErrValidation, promotion.Name, order.TotalAmount)
	}

	discount := promotion.CalculateDiscount(order.TotalAmount)
	usage := domain.PromotionUsage{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		PromotionID:    promotion.ID,
		DiscountAmount: discount,
		AppliedAt:      now,
	}

	ok, err := s.promotions.RecordUsage(ctx, usage)
	if err != nil {
		return decimal.Zero, storeErr("record promotion usage", err)
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: promotion %q has reached its usage limit", domain.ErrValidation, promotion.Name)
	}

	next := *order
	next.DiscountAmount = discount
	next.PromotionID = promotion.ID
	next.Recalculate(s.taxRate)
	next.UpdatedAt = now

	if err := s.orders.UpdateOrder(ctx, &next); err != nil {
		if rbErr := s.promotions.RevertUsage(ctx, usage); rbErr != nil {
			s.logger.Error("CRITICAL promotion usage rollback failed",
				zap.String("order_id", order.ID),
				zap.String("promotion_id", promotion.ID),
				zap.Error(rbErr))
		}
		return decimal.Zero, storeErr("update order", err)
	}

	s.logger.Info("promotion applied",
		zap.String("order_id", order.ID),
		zap.String("promotion", promotion.Name),
		zap.String("type", string(promotion.Type)),
		zap.String("discount", discount.String()),
		zap.String("final_amount", next.FinalAmount.String()))
	s.opts.notify(ctx, s.logger, domain.NewOrderEvent(domain.OrderEventPromotionApplied, &next, now))

	return discount, nil
}

// CreatePromotion stores a new promotion after checking its definition.
func (s *PromotionService) CreatePromotion(ctx context.Context, p *domain.Promotion) error {
	if err := validatePromotion(p); err != nil {
		return err
	}

	now := s.opts.now()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.promotions.SavePromotion(ctx, p); err != nil {
		return storeErr("save promotion", err)
	}

	s.logger.Info("promotion created", zap.String("promotion_id", p.ID), zap.String("name", p.Name))
	return nil
}

// DeactivatePromotion switches a promotion off without deleting it.
func (s *PromotionService) DeactivatePromotion(ctx context.Context, promotionID string) error {
	p, err := s.promotions.FindPromotion(ctx, promotionID)
	if err != nil {
		return storeErr("load promotion", err)
	}
	if p == nil {
		return fmt.Errorf("%w: promotion %s", domain.ErrNotFound, promotionID)
	}

	p.Active = false
	p.UpdatedAt = s.opts.now()
	if err := s.promotions.UpdatePromotion(ctx, p); err != nil {
		return storeErr("update promotion", err)
	}

	s.logger.Info("promotion deactivated", zap.String("promotion_id", p.ID))
	return nil
}

func validatePromotion(p *domain.Promotion) error {
	if p == nil || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: promotion name is required", domain.ErrValidation)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown promotion type %q", domain.ErrValidation, p.Type)
	}
	if p.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: discount value cannot be negative", domain.ErrValidation)
	}
	if p.Type == domain.PromotionPercentage && p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: percentage cannot exceed 100", domain.ErrValidation)
	}
	if p.MaxDiscount.Valid && p.Type != domain.PromotionPercentage {
		return fmt.Errorf("%w: max discount only applies to percentage promotions", domain.ErrValidation)
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: promotion ends before it starts", domain.ErrValidation)
	}
	return nil
}
