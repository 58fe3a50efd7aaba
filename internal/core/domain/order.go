package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type Order struct {
	ID             string
	OrderNumber    string
	TableID        string
	StaffID        string
	CustomerID     string
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	FinalAmount    decimal.Decimal
	PromotionID    string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	Notes          string
	Version        int // optimistic locking
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// CanBePaid is true for confirmed or completed orders that are still unpaid.
func (o Order) CanBePaid() bool {
	if o.IsPaid() {
		return false
	}
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusCompleted
}

func (o Order) CanBeCancelled() bool {
	if o.IsPaid() {
		return false
	}
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// IsActive reports whether the order still occupies its table.
func (o Order) IsActive() bool {
	return !o.Status.IsTerminal() && !o.IsPaid()
}

// Recalculate derives tax and final amount from the subtotal and discount.
// The discount is clamped to the subtotal so the final amount never goes
// below the tax.
func (o *Order) Recalculate(taxRate decimal.Decimal) {
	if o.DiscountAmount.GreaterThan(o.TotalAmount) {
		o.DiscountAmount = o.TotalAmount
	}
	o.TaxAmount = RoundMoney(o.TotalAmount.Mul(taxRate))
	o.FinalAmount = o.TotalAmount.Sub(o.DiscountAmount).Add(o.TaxAmount)
}

type OrderLine struct {
	OrderID   string
	ItemID    string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SumLines returns the subtotal of the given lines.
func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

type MenuItem struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
	Available bool
}

// RoundMoney rounds to whole currency units (VND has no minor unit).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
