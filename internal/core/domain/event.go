package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventCreated          OrderEventType = "order.created"
	OrderEventItemsChanged     OrderEventType = "order.items_changed"
	OrderEventConfirmed        OrderEventType = "order.confirmed"
	OrderEventCompleted        OrderEventType = "order.completed"
	OrderEventCancelled        OrderEventType = "order.cancelled"
	OrderEventPromotionApplied OrderEventType = "order.promotion_applied"
	OrderEventPaid             OrderEventType = "order.paid"
)

type OrderEvent struct {
	Type        OrderEventType  `json:"type"`
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	TableID     string          `json:"table_id"`
	StaffID     string          `json:"staff_id,omitempty"`
	Status      OrderStatus     `json:"status"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewOrderEvent(t OrderEventType, o *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:        t,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		TableID:     o.TableID,
		StaffID:     o.StaffID,
		Status:      o.Status,
		FinalAmount: o.FinalAmount,
		OccurredAt:  at,
	}
}
