package storage

import (
	"context"
	"fmt"
)

// The active_user generated column is the user id while the order is in an
// active status and NULL otherwise, so the unique index admits any number of
// terminal orders but at most one active order per user. Enforcing the
// invariant inside the insert closes the read-then-write race.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS menu_items (
		id          VARCHAR(36) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		description TEXT NULL,
		category    VARCHAR(100) NOT NULL DEFAULT 'General',
		price       DECIMAL(10,2) NOT NULL DEFAULT 0,
		stock       INT NOT NULL DEFAULT 0,
		image_url   VARCHAR(512) NULL,
		available   TINYINT(1) NOT NULL DEFAULT 1,
		created_at  DATETIME(6) NOT NULL,
		updated_at  DATETIME(6) NOT NULL,
		PRIMARY KEY (id),
		KEY idx_menu_items_category (category),
		CONSTRAINT chk_menu_items_stock CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            VARCHAR(36) NOT NULL,
		user_id       VARCHAR(64) NOT NULL,
		status        VARCHAR(16) NOT NULL,
		notes         TEXT NULL,
		cancel_reason VARCHAR(255) NULL,
		expires_at    DATETIME(6) NULL,
		created_at    DATETIME(6) NOT NULL,
		updated_at    DATETIME(6) NOT NULL,
		active_user   VARCHAR(64) GENERATED ALWAYS AS (
			CASE WHEN status IN ('pending','confirmed','processing','active') THEN user_id ELSE NULL END
		) STORED,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_orders_active_user (active_user),
		KEY idx_orders_user_status (user_id, status),
		KEY idx_orders_status_expires (status, expires_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id VARCHAR(36) NOT NULL,
		seq      INT NOT NULL,
		item_id  VARCHAR(36) NOT NULL,
		name     VARCHAR(255) NOT NULL,
		price    DECIMAL(10,2) NOT NULL,
		quantity INT NOT NULL,
		PRIMARY KEY (order_id, seq),
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (id)
	)`,
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
