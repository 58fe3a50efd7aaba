package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type ChargeRequest struct {
	OrderID         string
	OrderNumber     string
	Method          domain.PaymentMethod
	Amount          decimal.Decimal
	TransactionCode string
}

type Gateway interface {
	// Charge settles an electronic payment and returns the provider transaction id
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

type ReceiptSink interface {
	// Write stores a rendered receipt and returns its identifier
	Write(ctx context.Context, receipt Receipt) (string, error)
}

type Receipt struct {
	OrderID     string
	OrderNumber string
	Text        string
}

type OrderNotifier interface {
	Notify(ctx context.Context, event domain.OrderEvent) error
}
