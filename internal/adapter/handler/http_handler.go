package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
	"github.com/rl1809/cafe-pos/internal/port"
)

type HTTPHandler struct {
	orders     *service.OrderService
	promotions *service.PromotionService
	payments   *service.PaymentService
	catalog    port.ItemCatalog
	checks     map[string]func(context.Context) error
	logger     *zap.Logger
}

func NewHTTPHandler(orders *service.OrderService, promotions *service.PromotionService, payments *service.PaymentService, catalog port.ItemCatalog, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		orders:     orders,
		promotions: promotions,
		payments:   payments,
		catalog:    catalog,
		checks:     make(map[string]func(context.Context) error),
		logger:     logger.Named("http"),
	}
}

// AddHealthCheck registers a dependency probe reported by /health.
func (h *HTTPHandler) AddHealthCheck(name string, check func(context.Context) error) {
	h.checks[name] = check
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/items", h.AddItem)
	mux.HandleFunc("DELETE /api/orders/{id}/items/{itemID}", h.RemoveItem)
	mux.HandleFunc("POST /api/orders/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/orders/{id}/complete", h.Complete)
	mux.HandleFunc("POST /api/orders/{id}/promotion", h.ApplyPromotion)

	mux.HandleFunc("GET /api/promotions/applicable", h.ApplicablePromotions)

	mux.HandleFunc("POST /api/payments", h.ProcessPayment)
	mux.HandleFunc("GET /api/payment-methods", h.PaymentMethods)
	return mux
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type orderLineResponse struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type orderResponse struct {
	ID             string               `json:"id"`
	OrderNumber    string               `json:"order_number"`
	TableID        string               `json:"table_id"`
	StaffID        string               `json:"staff_id"`
	CustomerID     string               `json:"customer_id,omitempty"`
	Status         domain.OrderStatus   `json:"status"`
	PaymentStatus  domain.PaymentStatus `json:"payment_status"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method,omitempty"`
	PromotionID    string               `json:"promotion_id,omitempty"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	TaxAmount      decimal.Decimal      `json:"tax_amount"`
	FinalAmount    decimal.Decimal      `json:"final_amount"`
	Notes          string               `json:"notes,omitempty"`
	Lines          []orderLineResponse  `json:"lines,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func toOrderResponse(o *domain.Order, lines []domain.OrderLine) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		TableID:        o.TableID,
		StaffID:        o.StaffID,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		PaymentMethod:  o.PaymentMethod,
		PromotionID:    o.PromotionID,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		TaxAmount:      o.TaxAmount,
		FinalAmount:    o.FinalAmount,
		Notes:          o.Notes,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal(),
		})
	}
	return resp
}

type CreateOrderHTTPRequest struct {
	TableID    string `json:"table_id"`
	StaffID    string `json:"staff_id"`
	CustomerID string `json:"customer_id"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), req.TableID, req.StaffID, req.CustomerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(order, nil))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lines, err := h.orders.ListLines(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, lines))
}

type AddItemHTTPRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ItemID == "" || req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "item_id and a positive quantity are required"})
		return
	}

	item, err := h.catalog.FindMenuItem(r.Context(), req.ItemID)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: find menu item: %v", domain.ErrStore, err))
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "menu item not found"})
		return
	}

	order, err := h.orders.AddItem(r.Context(), r.PathValue("id"), *item, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("itemID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

func (h *HTTPHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Confirm)
}

func (h *HTTPHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Complete)
}

type CancelHTTPRequest struct {
	Reason string `json:"reason"`
}

func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) (*domain.Order, error) {
		return h.orders.Cancel(ctx, id, req.Reason)
	})
}

func (h *HTTPHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*domain.Order, error)) {
	order, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

type ApplyPromotionHTTPRequest struct {
	PromotionID string `json:"promotion_id"`
}

type ApplyPromotionHTTPResponse struct {
	Success     bool            `json:"success"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
}

func (h *HTTPHandler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	var req ApplyPromotionHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	discount, err := h.promotions.ApplyPromotionToOrder(r.Context(), id, req.PromotionID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyPromotionHTTPResponse{
		Success:     true,
		Discount:    discount,
		FinalAmount: order.FinalAmount,
	})
}

type promotionResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Type          domain.PromotionType `json:"type"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	MinOrderValue decimal.NullDecimal  `json:"min_order_value"`
	MaxDiscount   decimal.NullDecimal  `json:"max_discount"`
	EndDate       *time.Time           `json:"end_date,omitempty"`
}

func (h *HTTPHandler) ApplicablePromotions(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.IsNegative() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "amount must be a non-negative number"})
		return
	}

	promos, err := h.promotions.GetApplicablePromotions(r.Context(), amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]promotionResponse, 0, len(promos))
	for _, p := range promos {
		pr := promotionResponse{
			ID:            p.ID,
			Name:          p.Name,
			Description:   p.Description,
			Type:          p.Type,
			DiscountValue: p.DiscountValue,
			MinOrderValue: p.MinOrderValue,
			MaxDiscount:   p.MaxDiscount,
		}
		if !p.EndDate.IsZero() {
			end := p.EndDate
			pr.EndDate = &end
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, out)
}

type PaymentHTTPRequest struct {
	RequestID       string          `json:"request_id"`
	OrderID         string          `json:"order_id"`
	StaffID         string          `json:"staff_id"`
	Method          string          `json:"method"`
	AmountReceived  decimal.Decimal `json:"amount_received"`
	TransactionCode string          `json:"transaction_code"`
	Notes           string          `json:"notes"`
}

type PaymentHTTPResponse struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	TransactionID string          `json:"transaction_id,omitempty"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	ReceiptID     string          `json:"receipt_id,omitempty"`
	Order         *orderResponse  `json:"order,omitempty"`
}

func (h *HTTPHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.payments.ProcessPayment(r.Context(), domain.PaymentRequest{
		RequestID:       req.RequestID,
		OrderID:         req.OrderID,
		StaffID:         req.StaffID,
		Method:          req.Method,
		AmountReceived:  req.AmountReceived,
		TransactionCode: req.TransactionCode,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := PaymentHTTPResponse{
		Success:       resp.Success,
		Message:       resp.Message,
		TransactionID: resp.TransactionID,
		ChangeAmount:  resp.ChangeAmount,
		ReceiptID:     resp.ReceiptID,
	}
	if resp.Order != nil {
		o := toOrderResponse(resp.Order, nil)
		out.Order = &o
	}

	status := http.StatusOK
	if !resp.Success {
		status = statusFor(resp.Err)
	}
	writeJSON(w, status, out)
}

func (h *HTTPHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.payments.ListPaymentMethods())
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			result[name] = err.Error()
			result["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	writeJSON(w, status, result)
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientAmount):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		message = "temporarily unavailable, please retry"
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}

	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
