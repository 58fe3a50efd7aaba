package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
	"github.com/rl1809/cafe-pos/internal/adapter/receipt"
	"github.com/rl1809/cafe-pos/internal/adapter/storage"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
)

type testEnv struct {
	redis    *redis.Client
	mysql    *sql.DB
	cache    *storage.RedisAdapter
	db       *storage.MySQLAdapter
	receipts *receipt.MemorySink
	orders   *service.OrderService
	promos   *service.PromotionService
	payments *service.PaymentService
	cleanup  func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/cafepos?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	env := &testEnv{
		redis:    rdb,
		mysql:    db,
		cache:    storage.NewRedisAdapter(rdb),
		db:       storage.NewMySQLAdapter(db),
		receipts: receipt.NewMemorySink(),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
	if err := env.db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	taxRate := decimal.RequireFromString("0.08")
	logger := zap.NewNop()
	env.orders = service.NewOrderService(env.db, env.db, env.cache, taxRate, logger)
	env.promos = service.NewPromotionService(env.db, env.db, env.cache, taxRate, logger)
	env.payments = service.NewPaymentService(env.db, gateway.NewSimulated(logger), service.NewReceiptGenerator("CAFE", ""),
		env.receipts, env.cache, logger, service.WithIdempotency(env.cache))
	return env
}

func (e *testEnv) confirmedOrder(t *testing.T, ctx context.Context) *domain.Order {
	t.Helper()

	item := domain.MenuItem{ID: "it-latte", Name: "Latte", UnitPrice: decimal.NewFromInt(50000), Available: true}
	if err := e.db.SaveMenuItem(ctx, item, -1); err != nil {
		t.Fatalf("seed menu: %v", err)
	}

	order, err := e.orders.CreateOrder(ctx, "it-"+uuid.New().String()[:8], "staff-it", "")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	t.Cleanup(func() {
		e.mysql.ExecContext(context.Background(), `DELETE FROM order_lines WHERE order_id = ?`, order.ID)
		e.mysql.ExecContext(context.Background(), `DELETE FROM orders WHERE id = ?`, order.ID)
	})

	if _, err := e.orders.AddItem(ctx, order.ID, item, 4); err != nil {
		t.Fatalf("add item: %v", err)
	}
	order, err = e.orders.Confirm(ctx, order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return order
}

func TestIntegration_FullCheckoutFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	order := env.confirmedOrder(t, ctx)

	now := time.Now()
	promo := &domain.Promotion{
		Name:          "Integration 10%",
		Type:          domain.PromotionPercentage,
		DiscountValue: decimal.NewFromInt(10),
		MaxDiscount:   decimal.NewNullDecimal(decimal.NewFromInt(15000)),
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		Active:        true,
	}
	if err := env.promos.CreatePromotion(ctx, promo); err != nil {
		t.Fatalf("create promotion: %v", err)
	}
	defer env.mysql.ExecContext(ctx, `DELETE FROM promotion_usages WHERE promotion_id = ?`, promo.ID)
	defer env.mysql.ExecContext(ctx, `DELETE FROM promotions WHERE id = ?`, promo.ID)

	// 200000 subtotal, 10% capped at 15000, tax 16000
	discount, err := env.promos.ApplyPromotionToOrder(ctx, order.ID, promo.ID)
	if err != nil {
		t.Fatalf("apply promotion: %v", err)
	}
	if !discount.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("expected discount 15000, got %s", discount)
	}

	order, _ = env.orders.GetOrder(ctx, order.ID)
	want := decimal.NewFromInt(201000)
	if !order.FinalAmount.Equal(want) {
		t.Fatalf("expected final %s, got %s", want, order.FinalAmount)
	}

	resp, err := env.payments.ProcessPayment(ctx, domain.PaymentRequest{
		RequestID:      uuid.New().String(),
		OrderID:        order.ID,
		Method:         "cash",
		AmountReceived: decimal.NewFromInt(250000),
	})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if !resp.Success {
		t.Fatalf("payment failed: %s", resp.Message)
	}
	if !resp.ChangeAmount.Equal(decimal.NewFromInt(49000)) {
		t.Errorf("expected change 49000, got %s", resp.ChangeAmount)
	}
	if _, ok := env.receipts.Get(resp.ReceiptID); !ok {
		t.Errorf("receipt %q not stored", resp.ReceiptID)
	}

	paid, _ := env.orders.GetOrder(ctx, order.ID)
	if !paid.IsPaid() {
		t.Error("order not marked paid in MySQL")
	}
}

func TestIntegration_ConcurrentPaymentsSucceedOnce(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	order := env.confirmedOrder(t, ctx)

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.payments.ProcessPayment(ctx, domain.PaymentRequest{
				RequestID:      uuid.New().String(),
				OrderID:        order.ID,
				Method:         "cash",
				AmountReceived: order.FinalAmount,
			})
			if err == nil && resp.Success {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 successful payment, got %d", successCount.Load())
	}
}

func TestIntegration_DuplicatePaymentRequest(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	first := env.confirmedOrder(t, ctx)
	second := env.confirmedOrder(t, ctx)
	requestID := "same-request-id-" + uuid.New().String()

	resp, err := env.payments.ProcessPayment(ctx, domain.PaymentRequest{
		RequestID: requestID, OrderID: first.ID, Method: "cash", AmountReceived: first.FinalAmount,
	})
	if err != nil || !resp.Success {
		t.Fatalf("first payment failed: %v %+v", err, resp)
	}

	resp, err = env.payments.ProcessPayment(ctx, domain.PaymentRequest{
		RequestID: requestID, OrderID: second.ID, Method: "cash", AmountReceived: second.FinalAmount,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(resp.Err, service.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", resp.Err)
	}

	unpaid, _ := env.orders.GetOrder(ctx, second.ID)
	if unpaid.IsPaid() {
		t.Error("duplicate request paid the second order")
	}
}
