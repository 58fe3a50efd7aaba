package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/port"
)

// Minimum reference lengths accepted when a customer supplies a wallet or
// bank reference code.
const (
	minWalletCodeLen = 8
	minBankCodeLen   = 10
)

// Simulated stands in for card, wallet and bank providers. It approves every
// well-formed charge after an optional delay.
type Simulated struct {
	latency time.Duration
	logger  *zap.Logger
}

func NewSimulated(logger *zap.Logger) *Simulated {
	return &Simulated{logger: logger.Named("gateway")}
}

// WithLatency makes every charge wait d, honouring ctx.
func (s *Simulated) WithLatency(d time.Duration) *Simulated {
	s.latency = d
	return s
}

func (s *Simulated) Charge(ctx context.Context, req port.ChargeRequest) (string, error) {
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: amount must be positive", domain.ErrGateway)
	}
	if !req.Method.IsElectronic() {
		return "", fmt.Errorf("%w: %s is not an electronic method", domain.ErrGateway, req.Method)
	}
	if err := checkReference(req); err != nil {
		return "", err
	}

	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrGateway, ctx.Err())
		case <-time.After(s.latency):
		}
	}

	txID := fmt.Sprintf("SIM_%s_%s", strings.ToUpper(string(req.Method)), uuid.New().String())
	s.logger.Info("charge approved",
		zap.String("order_number", req.OrderNumber),
		zap.String("method", string(req.Method)),
		zap.String("amount", req.Amount.String()),
		zap.String("transaction_id", txID))
	return txID, nil
}

func checkReference(req port.ChargeRequest) error {
	code := strings.TrimSpace(req.TransactionCode)
	if code == "" {
		return nil
	}

	switch {
	case req.Method == domain.PaymentBankTransfer && len(code) < minBankCodeLen:
		return fmt.Errorf("%w: bank reference %q is too short", domain.ErrGateway, code)
	case req.Method.RequiresOnlineVerification() && len(code) < minWalletCodeLen:
		return fmt.Errorf("%w: wallet reference %q is too short", domain.ErrGateway, code)
	}
	return nil
}
