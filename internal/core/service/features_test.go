package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

var errorKinds = map[string]error{
	"validation":          domain.ErrValidation,
	"not found":           domain.ErrNotFound,
	"state":               domain.ErrState,
	"insufficient amount": domain.ErrInsufficientAmount,
	"gateway":             domain.ErrGateway,
}

type checkoutTestContext struct {
	orders     *mockOrderRepo
	promos     *mockPromotionRepo
	sink       *mockSink
	orderSvc   *OrderService
	promoSvc   *PromotionService
	paymentSvc *PaymentService

	tableID  string
	staffID  string
	orderID  string
	discount decimal.Decimal
	promoErr error
	payment  *domain.PaymentResponse
}

func (c *checkoutTestContext) reset() {
	c.orders = newMockOrderRepo()
	c.promos = newMockPromotionRepo()
	c.sink = &mockSink{}

	locker := NewLocalLocker()
	logger := zap.NewNop()
	c.orderSvc = NewOrderService(c.orders, &mockCatalog{}, locker, testTaxRate, logger, WithClock(fixedClock))
	c.promoSvc = NewPromotionService(c.promos, c.orders, locker, testTaxRate, logger, WithClock(fixedClock))
	c.paymentSvc = NewPaymentService(c.orders, &mockGateway{}, NewReceiptGenerator("CAFE", ""), c.sink, locker, logger, WithClock(fixedClock))

	c.tableID, c.staffID, c.orderID = "", "", ""
	c.discount = decimal.Zero
	c.promoErr = nil
	c.payment = nil
}

func (c *checkoutTestContext) order() (domain.Order, error) {
	if c.orderID == "" {
		return domain.Order{}, errors.New("no order was opened")
	}
	return c.orders.get(c.orderID), nil
}

// Given steps

func (c *checkoutTestContext) aTableServedBy(tableID, staffID string) error {
	c.tableID, c.staffID = tableID, staffID
	return nil
}

func (c *checkoutTestContext) anOpenOrderWith(qty int, name string, price int) error {
	order, err := c.orderSvc.CreateOrder(context.Background(), c.tableID, c.staffID, "")
	if err != nil {
		return err
	}
	c.orderID = order.ID

	item := domain.MenuItem{
		ID:        strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Name:      name,
		UnitPrice: decimal.NewFromInt(int64(price)),
		Available: true,
	}
	_, err = c.orderSvc.AddItem(context.Background(), c.orderID, item, qty)
	return err
}

func (c *checkoutTestContext) theOrderIsConfirmed() error {
	_, err := c.orderSvc.Confirm(context.Background(), c.orderID)
	return err
}

func (c *checkoutTestContext) aPercentagePromotionCappedAt(pct int, id string, max int) error {
	return c.promos.SavePromotion(context.Background(), &domain.Promotion{
		ID:            id,
		Name:          id,
		Type:          domain.PromotionPercentage,
		DiscountValue: decimal.NewFromInt(int64(pct)),
		MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(int64(max))),
		StartDate:     testNow.Add(-time.Hour),
		EndDate:       testNow.Add(7 * 24 * time.Hour),
		Active:        true,
	})
}

func (c *checkoutTestContext) aFixedPromotionWithMinimum(id string, value, min int) error {
	p := &domain.Promotion{
		ID:            id,
		Name:          id,
		Type:          domain.PromotionFixedAmount,
		DiscountValue: decimal.NewFromInt(int64(value)),
		Active:        true,
	}
	if min > 0 {
		p.MinOrderValue = decimal.NewNullDecimal(decimal.NewFromInt(int64(min)))
	}
	return c.promos.SavePromotion(context.Background(), p)
}

// When steps

func (c *checkoutTestContext) iApplyPromotion(id string) error {
	c.discount, c.promoErr = c.promoSvc.ApplyPromotionToOrder(context.Background(), c.orderID, id)
	return nil
}

func (c *checkoutTestContext) theCustomerPays(amount int, method string) error {
	return c.theCustomerPaysWithReference(amount, method, "")
}

func (c *checkoutTestContext) theCustomerPaysWithReference(amount int, method, ref string) error {
	resp, err := c.paymentSvc.ProcessPayment(context.Background(), domain.PaymentRequest{
		OrderID:         c.orderID,
		StaffID:         c.staffID,
		Method:          method,
		AmountReceived:  decimal.NewFromInt(int64(amount)),
		TransactionCode: ref,
	})
	if err != nil {
		return fmt.Errorf("unexpected store error: %w", err)
	}
	c.payment = resp
	return nil
}

// Then steps

func (c *checkoutTestContext) theDiscountIs(want int) error {
	if c.promoErr != nil {
		return fmt.Errorf("promotion failed: %v", c.promoErr)
	}
	if !c.discount.Equal(decimal.NewFromInt(int64(want))) {
		return fmt.Errorf("expected discount %d, got %s", want, c.discount)
	}
	return nil
}

func (c *checkoutTestContext) theDiscountOnTheOrderIs(want int) error {
	o, err := c.order()
	if err != nil {
		return err
	}
	if !o.DiscountAmount.Equal(decimal.NewFromInt(int64(want))) {
		return fmt.Errorf("expected order discount %d, got %s", want, o.DiscountAmount)
	}
	return nil
}

func (c *checkoutTestContext) theOrderTotalsAre(subtotal, tax, final int) error {
	o, err := c.order()
	if err != nil {
		return err
	}
	if !o.TotalAmount.Equal(decimal.NewFromInt(int64(subtotal))) ||
		!o.TaxAmount.Equal(decimal.NewFromInt(int64(tax))) ||
		!o.FinalAmount.Equal(decimal.NewFromInt(int64(final))) {
		return fmt.Errorf("expected %d/%d/%d, got subtotal %s tax %s final %s",
			subtotal, tax, final, o.TotalAmount, o.TaxAmount, o.FinalAmount)
	}
	return nil
}

func (c *checkoutTestContext) thePromotionIs(outcome string) error {
	switch outcome {
	case "accepted":
		if c.promoErr != nil {
			return fmt.Errorf("expected promotion to apply, got %v", c.promoErr)
		}
	case "rejected":
		if c.promoErr == nil {
			return errors.New("expected promotion to be rejected")
		}
		if !errors.Is(c.promoErr, domain.ErrValidation) {
			return fmt.Errorf("expected a validation error, got %v", c.promoErr)
		}
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}
	return nil
}

func (c *checkoutTestContext) thePaymentSucceedsWithChange(change int) error {
	if c.payment == nil {
		return errors.New("no payment was attempted")
	}
	if !c.payment.Success {
		return fmt.Errorf("expected success, got %q", c.payment.Message)
	}
	if !c.payment.ChangeAmount.Equal(decimal.NewFromInt(int64(change))) {
		return fmt.Errorf("expected change %d, got %s", change, c.payment.ChangeAmount)
	}
	return nil
}

func (c *checkoutTestContext) thePaymentIsRejectedAs(kind string) error {
	if c.payment == nil {
		return errors.New("no payment was attempted")
	}
	if c.payment.Success {
		return errors.New("expected the payment to be rejected")
	}
	want, ok := errorKinds[kind]
	if !ok {
		return fmt.Errorf("unknown error kind %q", kind)
	}
	if !errors.Is(c.payment.Err, want) {
		return fmt.Errorf("expected %s error, got %v", kind, c.payment.Err)
	}
	return nil
}

func (c *checkoutTestContext) theOrderIsPaid(state string) error {
	o, err := c.order()
	if err != nil {
		return err
	}
	if paid := state == "paid"; o.IsPaid() != paid {
		return fmt.Errorf("expected order to be %s, payment status is %s", state, o.PaymentStatus)
	}
	return nil
}

func (c *checkoutTestContext) aReceiptIsIssuedShowing(text string) error {
	c.sink.mu.Lock()
	defer c.sink.mu.Unlock()

	if len(c.sink.receipts) != 1 {
		return fmt.Errorf("expected one receipt, got %d", len(c.sink.receipts))
	}
	if !strings.Contains(c.sink.receipts[0].Text, text) {
		return fmt.Errorf("receipt does not show %q:\n%s", text, c.sink.receipts[0].Text)
	}
	return nil
}

func (c *checkoutTestContext) cancellingTheOrderFails() error {
	_, err := c.orderSvc.Cancel(context.Background(), c.orderID, "changed mind")
	if !errors.Is(err, domain.ErrState) {
		return fmt.Errorf("expected a state error, got %v", err)
	}
	return nil
}

func InitializeCheckoutScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a table "([^"]*)" served by "([^"]*)"$`, tc.aTableServedBy)
	ctx.Step(`^an open order with (\d+) x "([^"]*)" at (\d+)$`, tc.anOpenOrderWith)
	ctx.Step(`^the order is confirmed$`, tc.theOrderIsConfirmed)
	ctx.Step(`^a (\d+)% promotion "([^"]*)" capped at (\d+)$`, tc.aPercentagePromotionCappedAt)
	ctx.Step(`^a fixed promotion "([^"]*)" of (\d+) with minimum order (\d+)$`, tc.aFixedPromotionWithMinimum)

	// When steps
	ctx.Step(`^I apply promotion "([^"]*)"$`, tc.iApplyPromotion)
	ctx.Step(`^the customer pays (\d+) by "([^"]*)"$`, tc.theCustomerPays)
	ctx.Step(`^the customer pays (\d+) by "([^"]*)" with reference "([^"]*)"$`, tc.theCustomerPaysWithReference)

	// Then steps
	ctx.Step(`^the discount is (\d+)$`, tc.theDiscountIs)
	ctx.Step(`^the discount on the order is (\d+)$`, tc.theDiscountOnTheOrderIs)
	ctx.Step(`^the order subtotal is (\d+), tax (\d+) and final amount (\d+)$`, tc.theOrderTotalsAre)
	ctx.Step(`^the promotion is (accepted|rejected)$`, tc.thePromotionIs)
	ctx.Step(`^the payment succeeds with change (\d+)$`, tc.thePaymentSucceedsWithChange)
	ctx.Step(`^the payment is rejected as "([^"]*)"$`, tc.thePaymentIsRejectedAs)
	ctx.Step(`^the order is (paid|unpaid)$`, tc.theOrderIsPaid)
	ctx.Step(`^a receipt is issued showing "([^"]*)"$`, tc.aReceiptIsIssuedShowing)
	ctx.Step(`^cancelling the order fails$`, tc.cancellingTheOrderFails)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
