package port

import (
	"context"
	"time"

	"github.com/infinitelocus/canteen/internal/core/domain"
)

// TransitionFields are the optional fields written alongside a status change.
// Nil fields are left untouched.
type TransitionFields struct {
	CancelReason *string
	Notes        *string
}

// Tx is the view of the store inside one atomic transaction. Every error
// return from the transactional closure aborts the whole transaction, so a
// failed reservation leaves no partial state behind.
type Tx interface {
	// FindActiveOrderByUser returns the user's active order, or nil when none.
	FindActiveOrderByUser(ctx context.Context, userID string) (*domain.Order, error)

	// ReserveStock decrements stock only if at least qty remains, returning
	// the item with its post-decrement stock so callers can snapshot name
	// and price. Fails with domain.InsufficientStockError or
	// domain.ErrItemNotFound, leaving stock untouched.
	ReserveStock(ctx context.Context, itemID string, qty int) (*domain.MenuItem, error)

	// ReleaseStock increments stock by qty, returning the new stock.
	// Fails with domain.ErrItemNotFound if the item no longer exists.
	ReleaseStock(ctx context.Context, itemID string, qty int) (int, error)

	// CreateOrder persists a new order. A concurrent active order for the
	// same user surfaces as domain.ErrActiveOrderExists from the store's
	// uniqueness constraint, not from a separate read.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// GetOrderForUpdate loads an order and locks it for the rest of the
	// transaction. Fails with domain.ErrOrderNotFound.
	GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)

	// TransitionOrder sets a new status and the given fields.
	// Fails with domain.ErrOrderNotFound.
	TransitionOrder(ctx context.Context, orderID string, status domain.OrderStatus, fields TransitionFields) error
}

// Store is the transactional order and inventory store.
type Store interface {
	// WithinTx runs fn inside one transaction: committed when fn returns
	// nil, rolled back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	FindActiveOrderByUser(ctx context.Context, userID string) (*domain.Order, error)

	// ListOrderHistory returns the user's terminal orders, newest first.
	ListOrderHistory(ctx context.Context, userID string, page, limit int) ([]domain.Order, error)

	// FindExpiredOrders returns orders still in an active status whose
	// expiry deadline is at or before cutoff.
	FindExpiredOrders(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
}

// Catalog is the menu management surface. It owns item creation and removal;
// stock mutation during ordering goes through Tx instead.
type Catalog interface {
	CreateMenuItem(ctx context.Context, item *domain.MenuItem) error
	GetMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error)
	ListMenuItems(ctx context.Context) ([]domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, item *domain.MenuItem) error
	DeleteMenuItem(ctx context.Context, itemID string) error
}
