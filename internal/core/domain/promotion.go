package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotionType string

const (
	PromotionPercentage   PromotionType = "PERCENTAGE"
	PromotionFixedAmount  PromotionType = "FIXED_AMOUNT"
	PromotionBuyOneGetOne PromotionType = "BUY_ONE_GET_ONE"
	PromotionFreeShipping PromotionType = "FREE_SHIPPING"
)

func (t PromotionType) Valid() bool {
	switch t {
	case PromotionPercentage, PromotionFixedAmount, PromotionBuyOneGetOne, PromotionFreeShipping:
		return true
	}
	return false
}

const expiringSoonWindow = 7 * 24 * time.Hour

type Promotion struct {
	ID            string
	Name          string
	Description   string
	Type          PromotionType
	DiscountValue decimal.Decimal
	MinOrderValue decimal.NullDecimal
	MaxDiscount   decimal.NullDecimal // percentage type only
	UsageLimit    int                 // 0 means unlimited
	UsageCount    int
	StartDate     time.Time
	EndDate       time.Time
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InValidPeriod treats a zero start or end date as open-ended.
func (p *Promotion) InValidPeriod(now time.Time) bool {
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && now.After(p.EndDate) {
		return false
	}
	return true
}

func (p *Promotion) IsActiveAt(now time.Time) bool {
	return p.Active && p.InValidPeriod(now)
}

func (p *Promotion) HasUsageLeft() bool {
	return p.UsageLimit <= 0 || p.UsageCount < p.UsageLimit
}

func (p *Promotion) MeetsMinimum(orderAmount decimal.Decimal) bool {
	if !p.MinOrderValue.Valid {
		return true
	}
	return orderAmount.GreaterThanOrEqual(p.MinOrderValue.Decimal)
}

// CanApplyTo reports whether the promotion is applicable to an order of the
// given subtotal at the given instant.
func (p *Promotion) CanApplyTo(orderAmount decimal.Decimal, now time.Time) bool {
	return p.IsActiveAt(now) && p.MeetsMinimum(orderAmount) && p.HasUsageLeft()
}

func (p *Promotion) ExpiresWithin(now time.Time, window time.Duration) bool {
	if p.EndDate.IsZero() {
		return false
	}
	return p.EndDate.After(now) && p.EndDate.Before(now.Add(window))
}

func (p *Promotion) IsExpiringSoon(now time.Time) bool {
	return p.ExpiresWithin(now, expiringSoonWindow)
}

// CalculateDiscount returns the monetary discount for a subtotal. The result
// is always within [0, orderAmount].
func (p *Promotion) CalculateDiscount(orderAmount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal

	switch p.Type {
	case PromotionPercentage:
		discount = RoundMoney(orderAmount.Mul(p.DiscountValue).Div(decimal.NewFromInt(100)))
		if p.MaxDiscount.Valid && discount.GreaterThan(p.MaxDiscount.Decimal) {
			discount = p.MaxDiscount.Decimal
		}
	case PromotionFixedAmount:
		discount = p.DiscountValue
	case PromotionBuyOneGetOne:
		// Flat amount off, not a free unit.
		discount = p.DiscountValue
	case PromotionFreeShipping:
		discount = decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(orderAmount) {
		return orderAmount
	}
	return discount
}

type PromotionUsage struct {
	ID             string
	OrderID        string
	PromotionID    string
	DiscountAmount decimal.Decimal
	AppliedAt      time.Time
}
