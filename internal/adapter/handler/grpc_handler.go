package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
)

const (
	posServiceName       = "cafepos.v1.POS"
	processPaymentMethod = "/" + posServiceName + "/ProcessPayment"
	applyPromotionMethod = "/" + posServiceName + "/ApplyPromotion"
)

// POSServer is the gRPC surface. Messages are google.protobuf.Struct so the
// service needs no generated code.
type POSServer interface {
	ProcessPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplyPromotion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var posServiceDesc = grpc.ServiceDesc{
	ServiceName: posServiceName,
	HandlerType: (*POSServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessPayment", Handler: unaryHandler(processPaymentMethod, POSServer.ProcessPayment)},
		{MethodName: "ApplyPromotion", Handler: unaryHandler(applyPromotionMethod, POSServer.ApplyPromotion)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cafepos/v1/pos.proto",
}

func RegisterPOSServer(s grpc.ServiceRegistrar, srv POSServer) {
	s.RegisterService(&posServiceDesc, srv)
}

// NewGRPCServer registers the POS service and the standard health service.
// The health server starts in SERVING; flip it to NOT_SERVING on shutdown.
func NewGRPCServer(h *GRPCHandler, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	RegisterPOSServer(srv, h)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(posServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, hs
}

type grpcMethod func(POSServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call grpcMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(POSServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(POSServer), ctx, req.(*structpb.Struct))
		})
	}
}

type GRPCHandler struct {
	promotions *service.PromotionService
	payments   *service.PaymentService
	orders     *service.OrderService
	logger     *zap.Logger
}

func NewGRPCHandler(orders *service.OrderService, promotions *service.PromotionService, payments *service.PaymentService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		orders:     orders,
		promotions: promotions,
		payments:   payments,
		logger:     logger.Named("grpc"),
	}
}

// ProcessPayment mirrors POST /api/payments. Business failures are reported
// in the response; only store failures become gRPC errors.
func (h *GRPCHandler) ProcessPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	amount, err := decimalField(req, "amount_received")
	if err != nil {
		return failure(err)
	}

	resp, err := h.payments.ProcessPayment(ctx, domain.PaymentRequest{
		RequestID:       stringField(req, "request_id"),
		OrderID:         stringField(req, "order_id"),
		StaffID:         stringField(req, "staff_id"),
		Method:          stringField(req, "method"),
		AmountReceived:  amount,
		TransactionCode: stringField(req, "transaction_code"),
		Notes:           stringField(req, "notes"),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	if !resp.Success {
		return failure(resp.Err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"success":        true,
		"message":        resp.Message,
		"transaction_id": resp.TransactionID,
		"change_amount":  resp.ChangeAmount.String(),
		"final_amount":   resp.Order.FinalAmount.String(),
		"receipt_id":     resp.ReceiptID,
	})
}

func (h *GRPCHandler) ApplyPromotion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID := stringField(req, "order_id")

	discount, err := h.promotions.ApplyPromotionToOrder(ctx, orderID, stringField(req, "promotion_id"))
	if err != nil {
		if domain.IsBusinessError(err) {
			return failure(err)
		}
		return nil, h.toStatus(err)
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, h.toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"success":      true,
		"message":      "promotion applied",
		"discount":     discount.String(),
		"final_amount": order.FinalAmount.String(),
	})
}

func (h *GRPCHandler) toStatus(err error) error {
	h.logger.Error("request failed", zap.Error(err))
	return status.Error(codes.Unavailable, "temporarily unavailable, please retry")
}

func failure(err error) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"success": false,
		"message": err.Error(),
		"error":   errorKind(err),
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrState):
		return "state"
	case errors.Is(err, domain.ErrInsufficientAmount):
		return "insufficient_amount"
	case errors.Is(err, domain.ErrGateway):
		return "gateway"
	default:
		return "internal"
	}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// decimalField accepts the amount as a decimal string or a JSON number.
func decimalField(s *structpb.Struct, key string) (decimal.Decimal, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return decimal.Zero, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(kind.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s is not a number", domain.ErrValidation, key)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", domain.ErrValidation, key)
	}
}
