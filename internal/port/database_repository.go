package port

import (
	"context"

	"github.com/rl1809/cafe-pos/internal/core/domain"
)

type OrderRepository interface {
	// FindOrder returns nil, nil when the order does not exist
	FindOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// FindActiveOrderByTable returns the unpaid, non-terminal order seated at the table, if any
	FindActiveOrderByTable(ctx context.Context, tableID string) (*domain.Order, error)

	SaveOrder(ctx context.Context, order *domain.Order) error

	// UpdateOrder writes the order if its version still matches and bumps the version
	UpdateOrder(ctx context.Context, order *domain.Order) error

	ListLines(ctx context.Context, orderID string) ([]domain.OrderLine, error)

	// SaveLine inserts the line or replaces the quantity of an existing one and
	// writes the order with it atomically, under the UpdateOrder version check
	SaveLine(ctx context.Context, order *domain.Order, line domain.OrderLine) error

	// RemoveLine deletes the line and writes the order with it atomically
	RemoveLine(ctx context.Context, order *domain.Order, itemID string) error
}

type PromotionRepository interface {
	// FindPromotion returns nil, nil when the promotion does not exist
	FindPromotion(ctx context.Context, promotionID string) (*domain.Promotion, error)

	ListPromotions(ctx context.Context) ([]domain.Promotion, error)

	SavePromotion(ctx context.Context, promotion *domain.Promotion) error

	UpdatePromotion(ctx context.Context, promotion *domain.Promotion) error

	// RecordUsage increments the usage count and appends the usage log entry atomically.
	// Returns ok=false when the usage limit was reached concurrently.
	RecordUsage(ctx context.Context, usage domain.PromotionUsage) (bool, error)

	// RevertUsage undoes RecordUsage (rollback when the order write fails)
	RevertUsage(ctx context.Context, usage domain.PromotionUsage) error
}

type ItemCatalog interface {
	// IsAvailable reports whether quantity units of the item can be ordered
	IsAvailable(ctx context.Context, itemID string, quantity int) (bool, error)

	// FindMenuItem returns nil, nil when the item does not exist
	FindMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error)
}
