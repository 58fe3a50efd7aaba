package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMomo         PaymentMethod = "momo"
	PaymentVNPay        PaymentMethod = "vnpay"
	PaymentZaloPay      PaymentMethod = "zalopay"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

var paymentMethods = []PaymentMethod{
	PaymentCash, PaymentCard, PaymentMomo, PaymentVNPay, PaymentZaloPay, PaymentBankTransfer,
}

var paymentMethodNames = map[PaymentMethod]string{
	PaymentCash:         "Cash",
	PaymentCard:         "Credit/Debit card",
	PaymentMomo:         "MoMo wallet",
	PaymentVNPay:        "VNPay",
	PaymentZaloPay:      "ZaloPay",
	PaymentBankTransfer: "Bank transfer",
}

// ParsePaymentMethod is case-insensitive. Unknown methods are rejected
// rather than defaulted to cash.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := paymentMethodNames[m]; !ok {
		return "", fmt.Errorf("%w: unsupported payment method %q", ErrValidation, s)
	}
	return m, nil
}

func (m PaymentMethod) IsElectronic() bool {
	return m != PaymentCash
}

func (m PaymentMethod) RequiresOnlineVerification() bool {
	return m == PaymentMomo || m == PaymentVNPay || m == PaymentZaloPay
}

func (m PaymentMethod) DisplayName() string {
	if name, ok := paymentMethodNames[m]; ok {
		return name
	}
	return string(m)
}

type PaymentMethodInfo struct {
	Method                     PaymentMethod `json:"method"`
	DisplayName                string        `json:"display_name"`
	Electronic                 bool          `json:"electronic"`
	RequiresOnlineVerification bool          `json:"requires_online_verification"`
}

func PaymentMethods() []PaymentMethodInfo {
	out := make([]PaymentMethodInfo, 0, len(paymentMethods))
	for _, m := range paymentMethods {
		out = append(out, PaymentMethodInfo{
			Method:                     m,
			DisplayName:                m.DisplayName(),
			Electronic:                 m.IsElectronic(),
			RequiresOnlineVerification: m.RequiresOnlineVerification(),
		})
	}
	return out
}

type PaymentRequest struct {
	RequestID       string
	OrderID         string
	StaffID         string
	Method          string
	AmountReceived  decimal.Decimal
	TransactionCode string
	Notes           string
}

type PaymentResponse struct {
	Success       bool
	Message       string
	TransactionID string
	ChangeAmount  decimal.Decimal
	Order         *Order
	ReceiptID     string
	Err           error
}

func PaymentFailure(err error) *PaymentResponse {
	return &PaymentResponse{
		Success: false,
		Message: err.Error(),
		Err:     err,
	}
}

// Payment is the settled payment as printed on a receipt.
type Payment struct {
	Method         PaymentMethod
	AmountReceived decimal.Decimal
	ChangeAmount   decimal.Decimal
	TransactionID  string
	PaidAt         time.Time
}
