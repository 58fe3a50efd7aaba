package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

// AmountPolicy decides how electronic payments are compared to the order total.
type AmountPolicy string

const (
	// AmountPolicyExact requires the exact final amount.
	AmountPolicyExact AmountPolicy = "exact"
	// AmountPolicyAtLeast accepts any amount covering the final amount. This
	// mirrors the legacy checkout path and is kept for compatibility.
	AmountPolicyAtLeast AmountPolicy = "at_least"
)

type Option func(*options)

type options struct {
	notifier     port.OrderNotifier
	idempotency  port.IdempotencyStore
	amountPolicy AmountPolicy
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		amountPolicy: AmountPolicyExact,
		now:          time.Now,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithNotifier(n port.OrderNotifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithIdempotency(store port.IdempotencyStore) Option {
	return func(o *options) { o.idempotency = store }
}

func WithAmountPolicy(p AmountPolicy) Option {
	return func(o *options) { o.amountPolicy = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}

func (o options) notify(ctx context.Context, logger *zap.Logger, event domain.OrderEvent) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event); err != nil {
		logger.Warn("order event not delivered",
			zap.String("event", string(event.Type)),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}

// lockOrder acquires the per-order lock and loads the order.
func lockOrder(ctx context.Context, locker port.OrderLocker, orders port.OrderRepository, orderID string) (*domain.Order, func(), error) {
	unlock, err := locker.Lock(ctx, orderID)
	if err != nil {
		return nil, nil, storeErr("lock order", err)
	}

	order, err := orders.FindOrder(ctx, orderID)
	if err != nil {
		unlock()
		return nil, nil, storeErr("load order", err)
	}
	if order == nil {
		unlock()
		return nil, nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	return order, unlock, nil
}
