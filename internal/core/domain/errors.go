package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder     = errors.New("invalid order request")
	ErrOrderNotFound    = errors.New("order not found")
	ErrItemNotFound     = errors.New("menu item not found")
	ErrNotCancellable   = errors.New("order is not cancellable")
	ErrInvalidStatus    = errors.New("unknown order status")
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrActiveOrderExists is raised by the store's uniqueness constraint
	// when an insert would give a user a second active order.
	ErrActiveOrderExists = errors.New("active order exists")
)

// InsufficientStockError names the first item that could not be reserved.
type InsufficientStockError struct {
	ItemID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s", e.ItemID)
}

// ActiveOrderError carries the order that blocked a new placement, so the
// caller can redirect the user to it instead of retrying blindly.
type ActiveOrderError struct {
	Existing *Order
}

func (e *ActiveOrderError) Error() string {
	return fmt.Sprintf("user %s already has active order %s", e.Existing.UserID, e.Existing.ID)
}
