package storage

import (
	"context"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id              VARCHAR(36)   NOT NULL PRIMARY KEY,
		order_number    VARCHAR(32)   NOT NULL UNIQUE,
		table_id        VARCHAR(36)   NOT NULL,
		staff_id        VARCHAR(36)   NOT NULL,
		customer_id     VARCHAR(36)   NOT NULL DEFAULT '',
		total_amount    DECIMAL(15,2) NOT NULL DEFAULT 0,
		discount_amount DECIMAL(15,2) NOT NULL DEFAULT 0,
		tax_amount      DECIMAL(15,2) NOT NULL DEFAULT 0,
		final_amount    DECIMAL(15,2) NOT NULL DEFAULT 0,
		promotion_id    VARCHAR(36)   NOT NULL DEFAULT '',
		status          VARCHAR(16)   NOT NULL,
		payment_status  VARCHAR(16)   NOT NULL,
		payment_method  VARCHAR(16)   NOT NULL DEFAULT '',
		notes           TEXT          NOT NULL,
		version         INT           NOT NULL DEFAULT 1,
		created_at      DATETIME(3)   NOT NULL,
		updated_at      DATETIME(3)   NOT NULL,
		INDEX idx_orders_table_status (table_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		position   BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id   VARCHAR(36)   NOT NULL,
		item_id    VARCHAR(36)   NOT NULL,
		name       VARCHAR(255)  NOT NULL,
		quantity   INT           NOT NULL,
		unit_price DECIMAL(15,2) NOT NULL,
		UNIQUE KEY uq_order_item (order_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS menu_items (
		id         VARCHAR(36)   NOT NULL PRIMARY KEY,
		name       VARCHAR(255)  NOT NULL,
		unit_price DECIMAL(15,2) NOT NULL,
		available  BOOLEAN       NOT NULL DEFAULT TRUE,
		stock      INT           NULL
	)`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id              VARCHAR(36)   NOT NULL PRIMARY KEY,
		name            VARCHAR(255)  NOT NULL,
		description     TEXT          NOT NULL,
		type            VARCHAR(32)   NOT NULL,
		discount_value  DECIMAL(15,2) NOT NULL,
		min_order_value DECIMAL(15,2) NULL,
		max_discount    DECIMAL(15,2) NULL,
		usage_limit     INT           NOT NULL DEFAULT 0,
		usage_count     INT           NOT NULL DEFAULT 0,
		start_date      DATETIME(3)   NULL,
		end_date        DATETIME(3)   NULL,
		active          BOOLEAN       NOT NULL DEFAULT TRUE,
		created_at      DATETIME(3)   NOT NULL,
		updated_at      DATETIME(3)   NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS promotion_usages (
		id              VARCHAR(36)   NOT NULL PRIMARY KEY,
		order_id        VARCHAR(36)   NOT NULL,
		promotion_id    VARCHAR(36)   NOT NULL,
		discount_amount DECIMAL(15,2) NOT NULL,
		applied_at      DATETIME(3)   NOT NULL,
		INDEX idx_usages_promotion (promotion_id)
	)`,
}

// Migrate creates the tables if they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
