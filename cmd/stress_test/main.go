package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
	"github.com/rl1809/cafe-pos/internal/adapter/receipt"
	"github.com/rl1809/cafe-pos/internal/adapter/storage"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
	"github.com/rl1809/cafe-pos/internal/port"
)

const (
	defaultRedisAddr = "localhost:6379"
	itemID           = "latte"
	totalRequests    = 50
)

var taxRate = decimal.RequireFromString("0.08")

func main() {
	ctx := context.Background()
	logger := zap.NewNop()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = defaultRedisAddr
	}

	// Prefer the distributed lock; fall back to the in-process one.
	var locker port.OrderLocker = service.NewLocalLocker()
	var opts []service.Option
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis not available (%v), using local locker", err)
	} else {
		defer rdb.Close()
		redisAdapter := storage.NewRedisAdapter(rdb)
		locker = redisAdapter
		opts = append(opts, service.WithIdempotency(redisAdapter))
		log.Printf("using redis locker at %s", redisAddr)
	}

	store := storage.NewMemoryStore()
	if err := store.SaveMenuItem(ctx, domain.MenuItem{
		ID: itemID, Name: "Latte", UnitPrice: decimal.NewFromInt(45000), Available: true,
	}, -1); err != nil {
		log.Fatalf("failed to seed menu: %v", err)
	}

	receipts := receipt.NewMemorySink()
	orderService := service.NewOrderService(store, store, locker, taxRate, logger, opts...)
	paymentService := service.NewPaymentService(store, gateway.NewSimulated(logger),
		service.NewReceiptGenerator("STRESS CAFE", ""), receipts, locker, logger, opts...)

	orderID := prepareOrder(ctx, orderService)
	order, _ := orderService.GetOrder(ctx, orderID)

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent payments for the same order
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(cashier int) {
			defer wg.Done()

			resp, err := paymentService.ProcessPayment(ctx, domain.PaymentRequest{
				RequestID:      uuid.New().String(),
				OrderID:        orderID,
				StaffID:        fmt.Sprintf("cashier-%d", cashier),
				Method:         string(domain.PaymentCash),
				AmountReceived: order.FinalAmount.Add(decimal.NewFromInt(10000)),
			})
			switch {
			case err != nil:
				errorCount.Add(1)
			case resp.Success:
				successCount.Add(1)
			default:
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Order:            %s\n", order.OrderNumber)
	fmt.Printf("Final Amount:     %s\n", order.FinalAmount)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", fail)
	fmt.Printf("Store Errors:     %d\n", errorCount.Load())
	fmt.Printf("Receipts:         %d\n", receipts.Len())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && fail == int32(totalRequests-1) {
		fmt.Printf("PASS: Exactly 1 payment succeeded, %d rejected\n", totalRequests-1)
	} else {
		fmt.Printf("FAIL: Expected 1 success/%d rejected, got %d/%d\n", totalRequests-1, success, fail)
	}

	if receipts.Len() == 1 {
		fmt.Println("PASS: Exactly 1 receipt issued")
	} else {
		fmt.Printf("FAIL: Expected 1 receipt, got %d\n", receipts.Len())
	}

	final, _ := orderService.GetOrder(ctx, orderID)
	if final.IsPaid() {
		fmt.Println("PASS: Order is paid")
	} else {
		fmt.Printf("FAIL: Expected paid order, got payment status %s\n", final.PaymentStatus)
	}
}

func prepareOrder(ctx context.Context, orders *service.OrderService) string {
	order, err := orders.CreateOrder(ctx, "stress-table-"+uuid.NewString()[:8], "staff-1", "")
	if err != nil {
		log.Fatalf("failed to create order: %v", err)
	}
	item := domain.MenuItem{ID: itemID, Name: "Latte", UnitPrice: decimal.NewFromInt(45000), Available: true}
	if _, err := orders.AddItem(ctx, order.ID, item, 3); err != nil {
		log.Fatalf("failed to add item: %v", err)
	}
	if _, err := orders.Confirm(ctx, order.ID); err != nil {
		log.Fatalf("failed to confirm order: %v", err)
	}
	return order.ID
}
