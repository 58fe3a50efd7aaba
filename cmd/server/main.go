package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/cafe-pos/internal/adapter/gateway"
	"github.com/rl1809/cafe-pos/internal/adapter/handler"
	"github.com/rl1809/cafe-pos/internal/adapter/notify"
	"github.com/rl1809/cafe-pos/internal/adapter/receipt"
	"github.com/rl1809/cafe-pos/internal/adapter/storage"
	"github.com/rl1809/cafe-pos/internal/config"
	"github.com/rl1809/cafe-pos/internal/core/domain"
	"github.com/rl1809/cafe-pos/internal/core/service"
	"github.com/rl1809/cafe-pos/internal/port"
)

const (
	eventWorkers   = 4
	eventQueueSize = 1000
)

type stores struct {
	orders     port.OrderRepository
	promotions port.PromotionRepository
	catalog    port.ItemCatalog
	ping       func(context.Context) error
	close      func()
}

func main() {
	cfg, err := config.FromProcess()
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer st.close()

	var opts []service.Option
	opts = append(opts, service.WithAmountPolicy(service.AmountPolicy(cfg.ElectronicAmountPolicy)))

	// Locking and idempotency
	var locker port.OrderLocker = service.NewLocalLocker()
	var rdb *redis.Client
	if cfg.Locker == config.LockerRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

		redisAdapter := storage.NewRedisAdapter(rdb).WithLockTTL(cfg.LockTTL)
		locker = redisAdapter
		opts = append(opts, service.WithIdempotency(redisAdapter))
	}

	// Events
	var sink port.OrderNotifier = notify.NewLogNotifier(logger)
	var broker *notify.AMQPNotifier
	if cfg.AMQPURL != "" {
		broker, err = notify.NewAMQPNotifier(cfg.AMQPURL, notify.DefaultExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect rabbitmq", zap.Error(err))
		}
		logger.Info("connected to rabbitmq", zap.String("exchange", notify.DefaultExchange))
		sink = broker
	}
	events := notify.NewQueue(sink, eventQueueSize, logger)
	events.Start(eventWorkers)
	opts = append(opts, service.WithNotifier(events))

	// Receipts
	receiptSink, pgPool, err := openReceiptSink(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open receipt sink", zap.String("sink", cfg.ReceiptSink), zap.Error(err))
	}
	logger.Info("receipt sink ready", zap.String("sink", cfg.ReceiptSink))

	// Services
	orderService := service.NewOrderService(st.orders, st.catalog, locker, cfg.TaxRate, logger, opts...)
	promotionService := service.NewPromotionService(st.promotions, st.orders, locker, cfg.TaxRate, logger, opts...)
	paymentService := service.NewPaymentService(
		st.orders,
		gateway.NewSimulated(logger),
		service.NewReceiptGenerator(cfg.ShopName, cfg.ShopTagline),
		receiptSink,
		locker,
		logger,
		opts...,
	)

	// Initialize gRPC server
	grpcServer, healthServer := handler.NewGRPCServer(
		handler.NewGRPCHandler(orderService, promotionService, paymentService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(orderService, promotionService, paymentService, st.catalog, logger)
	httpHandler.AddHealthCheck(cfg.Store, st.ping)
	if rdb != nil {
		httpHandler.AddHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if pgPool != nil {
		httpHandler.AddHealthCheck("postgres", pgPool.Ping)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	healthServer.Shutdown()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain pending events before the broker goes away
	events.Close()

	// Close connections
	if broker != nil {
		broker.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	if pgPool != nil {
		pgPool.Close()
	}
	logger.Info("connections closed")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Store == config.StoreMemory {
		mem := storage.NewMemoryStore()
		if err := seedMenu(ctx, mem); err != nil {
			return stores{}, err
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return stores{orders: mem, promotions: mem, catalog: mem, ping: mem.Ping, close: func() {}}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return stores{}, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return stores{}, err
	}
	logger.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		db.Close()
		return stores{}, err
	}

	return stores{
		orders:     mysqlAdapter,
		promotions: mysqlAdapter,
		catalog:    mysqlAdapter,
		ping:       db.PingContext,
		close:      func() { db.Close() },
	}, nil
}

func openReceiptSink(ctx context.Context, cfg config.Config) (port.ReceiptSink, *pgxpool.Pool, error) {
	switch cfg.ReceiptSink {
	case config.SinkPostgres:
		pool, err := receipt.NewPostgresPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		sink := receipt.NewPostgresSink(pool)
		if err := sink.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return sink, pool, nil
	case config.SinkMemory:
		return receipt.NewMemorySink(), nil, nil
	default:
		sink, err := receipt.NewFileSink(cfg.ReceiptDir)
		return sink, nil, err
	}
}

// seedMenu gives the in-memory store something to sell.
func seedMenu(ctx context.Context, mem *storage.MemoryStore) error {
	menu := []domain.MenuItem{
		{ID: "espresso", Name: "Espresso", UnitPrice: decimal.NewFromInt(35000), Available: true},
		{ID: "latte", Name: "Latte", UnitPrice: decimal.NewFromInt(45000), Available: true},
		{ID: "cold-brew", Name: "Cold Brew", UnitPrice: decimal.NewFromInt(50000), Available: true},
		{ID: "peach-tea", Name: "Peach Tea", UnitPrice: decimal.NewFromInt(40000), Available: true},
		{ID: "croissant", Name: "Croissant", UnitPrice: decimal.NewFromInt(30000), Available: true},
	}
	for _, item := range menu {
		if err := mem.SaveMenuItem(ctx, item, -1); err != nil {
			return err
		}
	}
	return nil
}
