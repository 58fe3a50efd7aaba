package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

const (
	standardReceiptWidth = 40
	compactReceiptWidth  = 32 // 58mm thermal roll

	receiptTimeLayout = "2006-01-02 15:04:05"
)

// ReceiptGenerator renders paid orders as plain text. Output depends only on
// its arguments, so rendering the same order twice gives the same bytes.
type ReceiptGenerator struct {
	shopName string
	tagline  string
}

func NewReceiptGenerator(shopName, tagline string) *ReceiptGenerator {
	return &ReceiptGenerator{shopName: shopName, tagline: tagline}
}

func (g *ReceiptGenerator) Render(order *domain.Order, lines []domain.OrderLine, payment domain.Payment) string {
	return g.render(standardReceiptWidth, order, lines, payment)
}

// RenderCompact has the same sections and totals as Render, narrowed for
// small printers.
func (g *ReceiptGenerator) RenderCompact(order *domain.Order, lines []domain.OrderLine, payment domain.Payment) string {
	return g.render(compactReceiptWidth, order, lines, payment)
}

func (g *ReceiptGenerator) render(width int, order *domain.Order, lines []domain.OrderLine, payment domain.Payment) string {
	heavy := strings.Repeat("=", width)
	light := strings.Repeat("-", width)

	var out []string

	out = append(out, heavy)
	out = append(out, center(g.shopName, width))
	if g.tagline != "" {
		out = append(out, center(g.tagline, width))
	}
	out = append(out, heavy)

	out = append(out, fmt.Sprintf("Order: %s", order.OrderNumber))
	out = append(out, fmt.Sprintf("Table: %s", order.TableID))
	out = append(out, fmt.Sprintf("Time: %s", order.CreatedAt.Format(receiptTimeLayout)))
	out = append(out, fmt.Sprintf("Staff: %s", order.StaffID))
	out = append(out, light)

	for _, l := range lines {
		out = append(out, truncate(l.Name, width))
		out = append(out, row(
			fmt.Sprintf("  %d x %s", l.Quantity, formatMoney(l.UnitPrice)),
			formatMoney(l.LineTotal()),
			width))
	}
	out = append(out, light)

	out = append(out, row("Subtotal:", formatMoney(order.TotalAmount), width))
	if order.DiscountAmount.IsPositive() {
		out = append(out, row("Discount:", "-"+formatMoney(order.DiscountAmount), width))
	}
	out = append(out, row("Tax:", formatMoney(order.TaxAmount), width))
	out = append(out, light)
	out = append(out, row("TOTAL:", formatMoney(order.FinalAmount), width))
	out = append(out, light)

	out = append(out, fmt.Sprintf("Payment: %s", payment.Method.DisplayName()))
	if payment.Method == domain.PaymentCash {
		out = append(out, row("Cash received:", formatMoney(payment.AmountReceived), width))
		out = append(out, row("Change:", formatMoney(payment.ChangeAmount), width))
	}
	if payment.TransactionID != "" {
		out = append(out, truncate("Ref: "+payment.TransactionID, width))
	}
	if !payment.PaidAt.IsZero() {
		out = append(out, fmt.Sprintf("Paid: %s", payment.PaidAt.Format(receiptTimeLayout)))
	}

	out = append(out, heavy)
	out = append(out, center("Thank you, see you again!", width))
	out = append(out, heavy)

	return strings.Join(out, "\n") + "\n"
}

// formatMoney prints whole currency units with thousands separators,
// e.g. 1234000 -> "1,234,000 đ".
func formatMoney(d decimal.Decimal) string {
	s := domain.RoundMoney(d).StringFixed(0)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String() + " đ"
	}
	return b.String() + " đ"
}

func row(label, value string, width int) string {
	gap := width - utf8.RuneCountInString(label) - utf8.RuneCountInString(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}

func center(s string, width int) string {
	s = truncate(s, width)
	pad := (width - utf8.RuneCountInString(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "~"
}
