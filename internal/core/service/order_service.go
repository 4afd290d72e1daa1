package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/infinitelocus/canteen/internal/core/domain"
	"github.com/infinitelocus/canteen/internal/port"
)

const (
	// DefaultOrderTTL is the deadline given to the public ordering flow.
	DefaultOrderTTL = 10 * time.Minute

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// Actor identifies who asked for a cancellation, which picks the default reason.
type Actor string

const (
	ActorUser    Actor = "user"
	ActorSweeper Actor = "sweeper"
)

// LineItem is one requested entry of a placement.
type LineItem struct {
	ItemID   string
	Quantity int
}

// PlaceOrderRequest carries everything needed to place an order.
// RequestID is an optional client-supplied idempotency key.
type PlaceOrderRequest struct {
	RequestID string
	UserID    string
	Items     []LineItem
	TTL       time.Duration
}

// OrderService coordinates stock reservation and order lifecycle. Every
// mutating operation runs inside one store transaction, so a failure at any
// step rolls back all reservations taken within that attempt.
type OrderService struct {
	store port.Store
	cache port.CacheRepository
	log   zerolog.Logger
	ttl   time.Duration
	now   func() time.Time
}

func NewOrderService(store port.Store, cache port.CacheRepository, log zerolog.Logger, ttl time.Duration) *OrderService {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	return &OrderService{
		store: store,
		cache: cache,
		log:   log.With().Str("component", "orders").Logger(),
		ttl:   ttl,
		now:   time.Now,
	}
}

// PlaceOrder reserves stock for every line item and creates a pending order
// as one atomic unit. On any failure nothing is decremented and no order
// exists.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	if req.RequestID != "" {
		ok, err := s.cache.SetIdempotency(ctx, "order:req:"+req.RequestID)
		if err != nil {
			s.log.Warn().Err(err).Str("request_id", req.RequestID).Msg("idempotency check unavailable")
		} else if !ok {
			return nil, domain.ErrDuplicateRequest
		}
	}

	// A blocked user gets the conflict with their existing order, never a
	// stock rejection, so the check runs before the gate. The in-tx check
	// and the unique index still close the race this read leaves open.
	if existing, err := s.store.FindActiveOrderByUser(ctx, req.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &domain.ActiveOrderError{Existing: existing}
	}

	// Fast-path gate on the mirrored stock. A rejection is final, a miss or
	// cache error falls through to the authoritative ledger.
	gated, gateErr := s.gateStock(ctx, req.Items)
	if gateErr != nil {
		return nil, gateErr
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	order := &domain.Order{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Status:    domain.OrderStatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		existing, err := tx.FindActiveOrderByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.ActiveOrderError{Existing: existing}
		}

		for _, it := range req.Items {
			item, err := tx.ReserveStock(ctx, it.ItemID, it.Quantity)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ItemID:   it.ItemID,
				Name:     item.Name,
				Price:    item.Price,
				Quantity: it.Quantity,
			})
		}

		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		s.releaseGate(ctx, gated)

		// Lost the insert race to a concurrent placement: load the winner so
		// the caller can be redirected to it.
		if errors.Is(err, domain.ErrActiveOrderExists) {
			if existing, ferr := s.store.FindActiveOrderByUser(ctx, req.UserID); ferr == nil && existing != nil {
				return nil, &domain.ActiveOrderError{Existing: existing}
			}
		}
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Int("items", len(order.Items)).
		Time("expires_at", order.ExpiresAt).
		Msg("order placed")

	return order, nil
}

// CancelOrder restores every reserved quantity and transitions the order to
// cancelled, atomically. Cancelling a terminal order is an error, not a no-op.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string, actor Actor) (*domain.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrInvalidOrder)
	}

	var cancelled *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", domain.ErrNotCancellable, order.ID, order.Status)
		}

		for _, it := range order.Items {
			if _, err := tx.ReleaseStock(ctx, it.ItemID, it.Quantity); err != nil {
				return err
			}
		}

		r := reason
		if r == "" {
			r = defaultCancelReason(actor)
		}
		if err := tx.TransitionOrder(ctx, order.ID, domain.OrderStatusCancelled, port.TransitionFields{CancelReason: &r}); err != nil {
			return err
		}

		order.Status = domain.OrderStatusCancelled
		order.CancelReason = r
		order.UpdatedAt = s.now()
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, it := range cancelled.Items {
		if err := s.cache.ReleaseStock(ctx, it.ItemID, it.Quantity); err != nil {
			s.log.Warn().Err(err).Str("item_id", it.ItemID).Msg("stock mirror restore failed")
		}
	}

	s.log.Info().
		Str("order_id", cancelled.ID).
		Str("actor", string(actor)).
		Str("reason", cancelled.CancelReason).
		Msg("order cancelled")

	return cancelled, nil
}

// GetActiveOrder returns the user's active order, or domain.ErrOrderNotFound.
func (s *OrderService) GetActiveOrder(ctx context.Context, userID string) (*domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidOrder)
	}
	order, err := s.store.FindActiveOrderByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrInvalidOrder)
	}
	return s.store.GetOrder(ctx, orderID)
}

// GetOrderHistory returns the user's terminal orders, newest first. Page
// starts at 1; limit defaults to 10 and is capped at 100.
func (s *OrderService) GetOrderHistory(ctx context.Context, userID string, page, limit int) ([]domain.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidOrder)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.ListOrderHistory(ctx, userID, page, limit)
}

// UpdateOrderStatus is the administrative direct write from the order
// management surface. It validates the status but does not touch inventory.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus, notes string) (*domain.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrInvalidOrder)
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.TransitionOrder(ctx, orderID, status, port.TransitionFields{Notes: &notes})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", orderID).Str("status", string(status)).Msg("order status updated")
	return s.store.GetOrder(ctx, orderID)
}

// gateStock runs the line items through the cache mirror. It returns the
// items whose mirror entries were decremented, so a later failure can undo
// them. A rejection undoes its own partial gate before returning.
func (s *OrderService) gateStock(ctx context.Context, items []LineItem) ([]LineItem, error) {
	var gated []LineItem
	for _, it := range items {
		gate, err := s.cache.ReserveStock(ctx, it.ItemID, it.Quantity)
		if err != nil {
			s.log.Warn().Err(err).Str("item_id", it.ItemID).Msg("stock mirror unavailable")
			return gated, nil
		}
		switch gate {
		case port.GateReserved:
			gated = append(gated, it)
		case port.GateRejected:
			s.releaseGate(ctx, gated)
			return nil, &domain.InsufficientStockError{ItemID: it.ItemID}
		}
	}
	return gated, nil
}

func (s *OrderService) releaseGate(ctx context.Context, gated []LineItem) {
	for _, it := range gated {
		if err := s.cache.ReleaseStock(ctx, it.ItemID, it.Quantity); err != nil {
			s.log.Warn().Err(err).Str("item_id", it.ItemID).Msg("stock mirror restore failed")
		}
	}
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidOrder)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: items are required", domain.ErrInvalidOrder)
	}
	for _, it := range req.Items {
		if it.ItemID == "" {
			return fmt.Errorf("%w: item id is required", domain.ErrInvalidOrder)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1 for item %s", domain.ErrInvalidOrder, it.ItemID)
		}
	}
	return nil
}

func defaultCancelReason(actor Actor) string {
	if actor == ActorSweeper {
		return domain.ReasonAutoExpired
	}
	return domain.ReasonUserCancelled
}
