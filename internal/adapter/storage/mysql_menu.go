package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

// IsAvailable checks the menu flag and, for items with tracked stock, the
// remaining quantity. A NULL stock means the item is not stock-tracked.
func (m *MySQLAdapter) IsAvailable(ctx context.Context, itemID string, quantity int) (bool, error) {
	var (
		available bool
		stock     sql.NullInt64
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT available, stock FROM menu_items WHERE id = ?`, itemID,
	).Scan(&available, &stock)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query menu item: %w", err)
	}

	if !available {
		return false, nil
	}
	return !stock.Valid || stock.Int64 >= int64(quantity), nil
}

func (m *MySQLAdapter) FindMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error) {
	var item domain.MenuItem
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, unit_price, available FROM menu_items WHERE id = ?`, itemID,
	).Scan(&item.ID, &item.Name, &item.UnitPrice, &item.Available)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query menu item: %w", err)
	}
	return &item, nil
}

// SaveMenuItem inserts or replaces a menu entry. stock < 0 disables stock
// tracking for the item.
func (m *MySQLAdapter) SaveMenuItem(ctx context.Context, item domain.MenuItem, stock int) error {
	var s sql.NullInt64
	if stock >= 0 {
		s = sql.NullInt64{Int64: int64(stock), Valid: true}
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, unit_price, available, stock)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), unit_price = VALUES(unit_price),
			available = VALUES(available), stock = VALUES(stock)`,
		item.ID, item.Name, item.UnitPrice, item.Available, s,
	)
	if err != nil {
		return fmt.Errorf("save menu item: %w", err)
	}
	return nil
}
