package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

const promotionColumns = `id, name, description, type, discount_value, min_order_value, max_discount,
	usage_limit, usage_count, start_date, end_date, active, created_at, updated_at`

func scanPromotion(row rowScanner) (*domain.Promotion, error) {
	var (
		p          domain.Promotion
		start, end sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Type, &p.DiscountValue, &p.MinOrderValue, &p.MaxDiscount,
		&p.UsageLimit, &p.UsageCount, &start, &end, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.StartDate = start.Time
	p.EndDate = end.Time
	return &p, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (m *MySQLAdapter) FindPromotion(ctx context.Context, promotionID string) (*domain.Promotion, error) {
	p, err := scanPromotion(m.db.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = ?`, promotionID))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query promotion: %w", err)
	}
	return p, nil
}

func (m *MySQLAdapter) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query promotions: %w", err)
	}
	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		p, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) SavePromotion(ctx context.Context, p *domain.Promotion) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Type, p.DiscountValue, p.MinOrderValue, p.MaxDiscount,
		p.UsageLimit, p.UsageCount, nullTime(p.StartDate), nullTime(p.EndDate), p.Active,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert promotion: %w", err)
	}
	return nil
}

// UpdatePromotion leaves usage_count alone; only RecordUsage and RevertUsage
// move it.
func (m *MySQLAdapter) UpdatePromotion(ctx context.Context, p *domain.Promotion) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE promotions
		SET name = ?, description = ?, type = ?, discount_value = ?, min_order_value = ?,
			max_discount = ?, usage_limit = ?, start_date = ?, end_date = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Type, p.DiscountValue, p.MinOrderValue,
		p.MaxDiscount, p.UsageLimit, nullTime(p.StartDate), nullTime(p.EndDate), p.Active, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update promotion: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RecordUsage(ctx context.Context, usage domain.PromotionUsage) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE promotions
		SET usage_count = usage_count + 1, updated_at = ?
		WHERE id = ? AND (usage_limit = 0 OR usage_count < usage_limit)`,
		usage.AppliedAt, usage.PromotionID,
	)
	if err != nil {
		return false, fmt.Errorf("increment usage: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO promotion_usages (id, order_id, promotion_id, discount_amount, applied_at)
		VALUES (?, ?, ?, ?, ?)`,
		usage.ID, usage.OrderID, usage.PromotionID, usage.DiscountAmount, usage.AppliedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit usage: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) RevertUsage(ctx context.Context, usage domain.PromotionUsage) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM promotion_usages WHERE id = ?`, usage.ID)
	if err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE promotions SET usage_count = GREATEST(usage_count - 1, 0) WHERE id = ?`,
			usage.PromotionID)
		if err != nil {
			return fmt.Errorf("decrement usage: %w", err)
		}
	}

	return tx.Commit()
}
