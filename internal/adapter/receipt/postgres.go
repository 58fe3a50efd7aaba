package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/cafe-pos/internal/port"
)

const receiptsTable = `
CREATE TABLE IF NOT EXISTS receipts (
	id           UUID PRIMARY KEY,
	order_id     TEXT NOT NULL,
	order_number TEXT NOT NULL,
	body         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_receipts_order ON receipts (order_id);`

// PostgresSink archives receipts in a PostgreSQL table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresPool connects and pings, sized for a light write load.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, receiptsTable); err != nil {
		return fmt.Errorf("create receipts table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, r port.Receipt) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO receipts (id, order_id, order_number, body) VALUES ($1, $2, $3, $4)`,
		id, r.OrderID, r.OrderNumber, r.Text)
	if err != nil {
		return "", fmt.Errorf("insert receipt: %w", err)
	}
	return id.String(), nil
}

// Latest returns the most recent receipt of an order, or ok=false if none.
func (s *PostgresSink) Latest(ctx context.Context, orderID string) (port.Receipt, bool, error) {
	r := port.Receipt{OrderID: orderID}
	err := s.pool.QueryRow(ctx, `
		SELECT order_number, body FROM receipts
		WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID,
	).Scan(&r.OrderNumber, &r.Text)

	if errors.Is(err, pgx.ErrNoRows) {
		return port.Receipt{}, false, nil
	}
	if err != nil {
		return port.Receipt{}, false, fmt.Errorf("query receipt: %w", err)
	}
	return r, true, nil
}
