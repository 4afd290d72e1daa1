package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/infinitelocus/canteen/internal/core/domain"
	"github.com/infinitelocus/canteen/internal/port"
)

const activeUserIndex = "uniq_orders_active_user"

// queryer is satisfied by both *sql.DB and *sql.Tx so order loading helpers
// work inside and outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLStore implements port.Store and port.Catalog on MySQL/InnoDB. Row
// locks plus the active_user unique index give each WithinTx closure the
// atomicity the coordinator relies on.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// WithinTx runs fn in one transaction, committing only when fn returns nil.
// The deferred rollback covers every other return path.
func (s *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, s.db, orderID, false)
}

func (s *MySQLStore) FindActiveOrderByUser(ctx context.Context, userID string) (*domain.Order, error) {
	return findActiveOrderByUser(ctx, s.db, userID)
}

func (s *MySQLStore) ListOrderHistory(ctx context.Context, userID string, page, limit int) ([]domain.Order, error) {
	placeholders, args := statusArgs(domain.HistoryStatuses)
	args = append([]any{userID}, args...)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, status, notes, cancel_reason, expires_at, created_at, updated_at
		FROM orders
		WHERE user_id = ? AND status IN (`+placeholders+`)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	return scanOrdersWithItems(ctx, s.db, rows)
}

func (s *MySQLStore) FindExpiredOrders(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	placeholders, args := statusArgs(domain.ActiveStatuses)
	args = append(args, cutoff)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, status, notes, cancel_reason, expires_at, created_at, updated_at
		FROM orders
		WHERE status IN (`+placeholders+`) AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query expired orders: %w", err)
	}
	defer rows.Close()

	return scanOrdersWithItems(ctx, s.db, rows)
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) FindActiveOrderByUser(ctx context.Context, userID string) (*domain.Order, error) {
	return findActiveOrderByUser(ctx, t.tx, userID)
}

func (t *mysqlTx) ReserveStock(ctx context.Context, itemID string, qty int) (*domain.MenuItem, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE menu_items
		SET stock = stock - ?, updated_at = NOW(6)
		WHERE id = ? AND stock >= ?`, qty, itemID, qty)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		var one int
		err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM menu_items WHERE id = ?`, itemID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("check item: %w", err)
		}
		return nil, &domain.InsufficientStockError{ItemID: itemID}
	}

	return getMenuItem(ctx, t.tx, itemID)
}

func (t *mysqlTx) ReleaseStock(ctx context.Context, itemID string, qty int) (int, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE menu_items
		SET stock = stock + ?, updated_at = NOW(6)
		WHERE id = ?`, qty, itemID)
	if err != nil {
		return 0, fmt.Errorf("release stock: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return 0, domain.ErrItemNotFound
	}

	var stock int
	if err := t.tx.QueryRowContext(ctx, `SELECT stock FROM menu_items WHERE id = ?`, itemID).Scan(&stock); err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}
	return stock, nil
}

func (t *mysqlTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, notes, cancel_reason, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Status,
		nullString(order.Notes), nullString(order.CancelReason),
		nullTime(order.ExpiresAt), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 && strings.Contains(me.Message, activeUserIndex) {
			return domain.ErrActiveOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, seq, item_id, name, price, quantity)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, i, it.ItemID, it.Name, it.Price, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, orderID, true)
}

func (t *mysqlTx) TransitionOrder(ctx context.Context, orderID string, status domain.OrderStatus, fields port.TransitionFields) error {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}

	set := "status = ?, updated_at = NOW(6)"
	args := []any{status}
	if fields.CancelReason != nil {
		set += ", cancel_reason = ?"
		args = append(args, *fields.CancelReason)
	}
	if fields.Notes != nil {
		set += ", notes = ?"
		args = append(args, *fields.Notes)
	}
	args = append(args, orderID)

	if _, err := t.tx.ExecContext(ctx, `UPDATE orders SET `+set+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	return nil
}

// findActiveOrderByUser returns nil when the user has no active order. Two
// matches would mean the uniqueness invariant was violated; that is reported
// as an error instead of silently picking one.
func findActiveOrderByUser(ctx context.Context, q queryer, userID string) (*domain.Order, error) {
	placeholders, args := statusArgs(domain.ActiveStatuses)
	args = append([]any{userID}, args...)

	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, status, notes, cancel_reason, expires_at, created_at, updated_at
		FROM orders
		WHERE user_id = ? AND status IN (`+placeholders+`)
		LIMIT 2`, args...)
	if err != nil {
		return nil, fmt.Errorf("query active order: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	switch len(orders) {
	case 0:
		return nil, nil
	case 1:
		order := &orders[0]
		items, err := loadOrderItems(ctx, q, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		return order, nil
	default:
		return nil, fmt.Errorf("data integrity: user %s has multiple active orders", userID)
	}
}

func getOrder(ctx context.Context, q queryer, orderID string, forUpdate bool) (*domain.Order, error) {
	query := `
		SELECT id, user_id, status, notes, cancel_reason, expires_at, created_at, updated_at
		FROM orders WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var order domain.Order
	err := scanOrder(q.QueryRowContext(ctx, query, orderID), &order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := loadOrderItems(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func loadOrderItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id, name, price, quantity
		FROM order_items WHERE order_id = ?
		ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ItemID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner, order *domain.Order) error {
	var notes, cancelReason sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&order.ID, &order.UserID, &order.Status, &notes, &cancelReason, &expiresAt, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}
	order.Notes = notes.String
	order.CancelReason = cancelReason.String
	order.ExpiresAt = expiresAt.Time
	return nil
}

func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrdersWithItems(ctx context.Context, q queryer, rows *sql.Rows) ([]domain.Order, error) {
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := loadOrderItems(ctx, q, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func statusArgs(statuses []domain.OrderStatus) (string, []any) {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ","), args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
