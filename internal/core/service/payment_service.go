package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

var ErrDuplicateRequest = fmt.Errorf("%w: duplicate payment request", domain.ErrState)

type PaymentService struct {
	orders   port.OrderRepository
	gateway  port.Gateway
	receipts *ReceiptGenerator
	sink     port.ReceiptSink
	locker   port.OrderLocker
	logger   *zap.Logger
	opts     options
}

func NewPaymentService(orders port.OrderRepository, gateway port.Gateway, receipts *ReceiptGenerator, sink port.ReceiptSink, locker port.OrderLocker, logger *zap.Logger, opts ...Option) *PaymentService {
	return &PaymentService{
		orders:   orders,
		gateway:  gateway,
		receipts: receipts,
		sink:     sink,
		locker:   locker,
		logger:   logger.Named("payments"),
		opts:     applyOptions(opts),
	}
}

// ProcessPayment settles an order. Business-rule failures come back as an
// unsuccessful response with a nil error; a non-nil error means a store
// failure and the call may be retried. A failed call releases its request id
// so the retry can reuse it, unless the gateway already took the money.
func (s *PaymentService) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	method, err := validateRequest(req)
	if err != nil {
		return s.fail(req, err), nil
	}

	key := ""
	if s.opts.idempotency != nil && req.RequestID != "" {
		key = "payment:" + req.RequestID
		ok, err := s.opts.idempotency.SetIdempotency(ctx, key)
		if err != nil {
			return nil, storeErr("idempotency check", err)
		}
		if !ok {
			return s.fail(req, ErrDuplicateRequest), nil
		}
	}

	resp, charged, err := s.process(ctx, req, method)
	if key != "" && !charged && (err != nil || !resp.Success) {
		s.releaseRequest(ctx, key)
	}
	return resp, err
}

// process runs the locked part of a payment. charged reports whether the
// gateway accepted a charge, whatever happened afterwards.
func (s *PaymentService) process(ctx context.Context, req domain.PaymentRequest, method domain.PaymentMethod) (*domain.PaymentResponse, bool, error) {
	order, unlock, err := lockOrder(ctx, s.locker, s.orders, req.OrderID)
	if err != nil {
		if domain.IsBusinessError(err) {
			return s.fail(req, err), false, nil
		}
		return nil, false, err
	}
	defer unlock()

	if !order.CanBePaid() {
		if order.IsPaid() {
			return s.fail(req, fmt.Errorf("%w: order %s is already paid", domain.ErrState, order.OrderNumber)), false, nil
		}
		return s.fail(req, fmt.Errorf("%w: order %s cannot be paid in status %s", domain.ErrState, order.OrderNumber, order.Status)), false, nil
	}

	if err := s.validateAmount(method, req.AmountReceived, order.FinalAmount); err != nil {
		return s.fail(req, err), false, nil
	}

	payment, err := s.settle(ctx, order, method, req)
	if err != nil {
		return s.fail(req, err), false, nil
	}
	charged := method.IsElectronic()

	next := *order
	next.PaymentMethod = method
	next.PaymentStatus = domain.PaymentStatusPaid
	next.UpdatedAt = payment.PaidAt
	if req.Notes != "" {
		next.Notes = appendNote(next.Notes, "Payment: "+req.Notes)
	}

	if err := s.orders.UpdateOrder(ctx, &next); err != nil {
		s.logger.Error("payment settled but order not saved",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Bool("charged", charged),
			zap.Error(err))
		return nil, charged, storeErr("record transaction "+payment.TransactionID, err)
	}

	resp := &domain.PaymentResponse{
		Success:       true,
		Message:       fmt.Sprintf("%s payment processed successfully", method.DisplayName()),
		TransactionID: payment.TransactionID,
		ChangeAmount:  payment.ChangeAmount,
		Order:         &next,
	}
	resp.ReceiptID = s.issueReceipt(ctx, &next, payment)

	s.logger.Info("payment processed",
		zap.String("order_id", next.ID),
		zap.String("order_number", next.OrderNumber),
		zap.String("method", string(method)),
		zap.String("amount", next.FinalAmount.String()),
		zap.String("change", payment.ChangeAmount.String()),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("staff_id", req.StaffID))

	ev := domain.NewOrderEvent(domain.OrderEventPaid, &next, payment.PaidAt)
	if req.StaffID != "" {
		ev.StaffID = req.StaffID
	}
	s.opts.notify(ctx, s.logger, ev)

	return resp, charged, nil
}

func (s *PaymentService) releaseRequest(ctx context.Context, key string) {
	if err := s.opts.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("request id not released", zap.String("key", key), zap.Error(err))
	}
}

func validateRequest(req domain.PaymentRequest) (domain.PaymentMethod, error) {
	if req.OrderID == "" {
		return "", fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	method, err := domain.ParsePaymentMethod(req.Method)
	if err != nil {
		return "", err
	}
	if !req.AmountReceived.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", domain.ErrInsufficientAmount)
	}
	return method, nil
}

func (s *PaymentService) validateAmount(method domain.PaymentMethod, received, required decimal.Decimal) error {
	if received.LessThan(required) {
		return fmt.Errorf("%w: received %s, order total is %s", domain.ErrInsufficientAmount, received, required)
	}
	if method.IsElectronic() && s.opts.amountPolicy == AmountPolicyExact && !received.Equal(required) {
		return fmt.Errorf("%w: %s payments must match the order total %s exactly", domain.ErrValidation, method.DisplayName(), required)
	}
	return nil
}

func (s *PaymentService) settle(ctx context.Context, order *domain.Order, method domain.PaymentMethod, req domain.PaymentRequest) (domain.Payment, error) {
	payment := domain.Payment{
		Method:         method,
		AmountReceived: req.AmountReceived,
		ChangeAmount:   decimal.Zero,
	}

	switch method {
	case domain.PaymentCash:
		change := req.AmountReceived.Sub(order.FinalAmount)
		if change.IsNegative() {
			return payment, fmt.Errorf("%w: insufficient cash", domain.ErrInsufficientAmount)
		}
		payment.ChangeAmount = change
		payment.TransactionID = "CASH_" + uuid.New().String()
	default:
		txID, err := s.gateway.Charge(ctx, port.ChargeRequest{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			Method:          method,
			Amount:          order.FinalAmount,
			TransactionCode: req.TransactionCode,
		})
		if err != nil {
			s.logger.Warn("gateway charge failed",
				zap.String("order_id", order.ID),
				zap.String("method", string(method)),
				zap.Error(err))
			if errors.Is(err, domain.ErrGateway) {
				return payment, err
			}
			return payment, fmt.Errorf("%w: %s: %v", domain.ErrGateway, method.DisplayName(), err)
		}
		payment.TransactionID = txID
	}

	payment.PaidAt = s.opts.now()
	return payment, nil
}

// issueReceipt renders and stores the receipt. A failure here does not undo
// the payment; the receipt can be reprinted from the order.
func (s *PaymentService) issueReceipt(ctx context.Context, order *domain.Order, payment domain.Payment) string {
	if s.receipts == nil || s.sink == nil {
		return ""
	}

	lines, err := s.orders.ListLines(ctx, order.ID)
	if err != nil {
		s.logger.Error("receipt lines not loaded", zap.String("order_id", order.ID), zap.Error(err))
		return ""
	}

	id, err := s.sink.Write(ctx, port.Receipt{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Text:        s.receipts.Render(order, lines, payment),
	})
	if err != nil {
		s.logger.Error("receipt not written", zap.String("order_id", order.ID), zap.Error(err))
		return ""
	}
	return id
}

func (s *PaymentService) fail(req domain.PaymentRequest, err error) *domain.PaymentResponse {
	s.logger.Info("payment rejected",
		zap.String("order_id", req.OrderID),
		zap.String("method", req.Method),
		zap.Error(err))
	return domain.PaymentFailure(err)
}

func (s *PaymentService) ListPaymentMethods() []domain.PaymentMethodInfo {
	return domain.PaymentMethods()
}
