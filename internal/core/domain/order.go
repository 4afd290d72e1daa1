package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusActive     OrderStatus = "active"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// ActiveStatuses are the statuses counted against the one-active-order-per-user rule.
var ActiveStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusActive,
}

// HistoryStatuses are the statuses shown on the order history page.
var HistoryStatuses = []OrderStatus{
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusDelivered,
	OrderStatusRefunded,
}

var validStatuses = map[OrderStatus]bool{
	OrderStatusPending:    true,
	OrderStatusConfirmed:  true,
	OrderStatusProcessing: true,
	OrderStatusActive:     true,
	OrderStatusCompleted:  true,
	OrderStatusDelivered:  true,
	OrderStatusCancelled:  true,
	OrderStatusRefunded:   true,
}

var terminalStatuses = map[OrderStatus]bool{
	OrderStatusCompleted: true,
	OrderStatusCancelled: true,
	OrderStatusDelivered: true,
	OrderStatusRefunded:  true,
}

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusActive, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusActive, OrderStatusCompleted, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusActive, OrderStatusCompleted, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusActive:     {OrderStatusCompleted, OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) IsValid() bool {
	return validStatuses[s]
}

func (s OrderStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// OrderItem is a line item with name and price snapshotted at order time,
// so later catalog edits do not rewrite historical orders.
type OrderItem struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Order struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Items        []OrderItem `json:"items"`
	Status       OrderStatus `json:"status"`
	Notes        string      `json:"notes,omitempty"`
	CancelReason string      `json:"cancel_reason,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Cancellation reasons recorded when no explicit reason is supplied.
const (
	ReasonUserCancelled = "User cancelled"
	ReasonAutoExpired   = "Auto-cancelled due to expiry"
)
