package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

const orderColumns = `id, order_number, table_id, staff_id, customer_id,
	total_amount, discount_amount, tax_amount, final_amount, promotion_id,
	status, payment_status, payment_method, notes, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TableID, &o.StaffID, &o.CustomerID,
		&o.TotalAmount, &o.DiscountAmount, &o.TaxAmount, &o.FinalAmount, &o.PromotionID,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.Notes, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (m *MySQLAdapter) FindOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (m *MySQLAdapter) FindActiveOrderByTable(ctx context.Context, tableID string) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE table_id = ? AND status IN (?, ?) AND payment_status <> ?
		ORDER BY created_at DESC LIMIT 1`,
		tableID, domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.PaymentStatusPaid))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active order: %w", err)
	}
	return o, nil
}

func (m *MySQLAdapter) SaveOrder(ctx context.Context, order *domain.Order) error {
	order.Version = 1
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.TableID, order.StaffID, order.CustomerID,
		order.TotalAmount, order.DiscountAmount, order.TaxAmount, order.FinalAmount, order.PromotionID,
		order.Status, order.PaymentStatus, order.PaymentMethod, order.Notes, order.Version,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (m *MySQLAdapter) UpdateOrder(ctx context.Context, order *domain.Order) error {
	if err := updateOrder(ctx, m.db, order); err != nil {
		return err
	}
	order.Version++
	return nil
}

// updateOrder leaves order.Version alone; callers bump it once the write is
// durable.
func updateOrder(ctx context.Context, db execer, order *domain.Order) error {
	result, err := db.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = ?, total_amount = ?, discount_amount = ?, tax_amount = ?, final_amount = ?,
			promotion_id = ?, status = ?, payment_status = ?, payment_method = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		order.CustomerID, order.TotalAmount, order.DiscountAmount, order.TaxAmount, order.FinalAmount,
		order.PromotionID, order.Status, order.PaymentStatus, order.PaymentMethod, order.Notes,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) ListLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, item_id, name, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Name, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// SaveLine keeps the original unit price and position of an existing line.
func (m *MySQLAdapter) SaveLine(ctx context.Context, order *domain.Order, line domain.OrderLine) error {
	return m.withOrderTx(ctx, order, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, item_id, name, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
			line.OrderID, line.ItemID, line.Name, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("upsert line: %w", err)
		}
		return nil
	})
}

func (m *MySQLAdapter) RemoveLine(ctx context.Context, order *domain.Order, itemID string) error {
	return m.withOrderTx(ctx, order, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM order_lines WHERE order_id = ? AND item_id = ?`, order.ID, itemID)
		if err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
		return nil
	})
}

// withOrderTx runs the line change and the versioned order update in one
// transaction.
func (m *MySQLAdapter) withOrderTx(ctx context.Context, order *domain.Order, change func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateOrder(ctx, tx, order); err != nil {
		return err
	}
	if err := change(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}

	order.Version++
	return nil
}
