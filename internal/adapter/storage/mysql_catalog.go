package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/infinitelocus/canteen/internal/core/domain"
)

func (s *MySQLStore) CreateMenuItem(ctx context.Context, item *domain.MenuItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, description, category, price, stock, image_url, available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Description, item.Category,
		item.Price, item.Stock, item.ImageURL, item.Available,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetMenuItem(ctx context.Context, itemID string) (*domain.MenuItem, error) {
	return getMenuItem(ctx, s.db, itemID)
}

func (s *MySQLStore) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, category, price, stock, image_url, available, created_at, updated_at
		FROM menu_items
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var item domain.MenuItem
		if err := scanMenuItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *MySQLStore) UpdateMenuItem(ctx context.Context, item *domain.MenuItem) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM menu_items WHERE id = ?`, item.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("check item: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE menu_items
		SET name = ?, description = ?, category = ?, price = ?, stock = ?, image_url = ?, available = ?, updated_at = NOW(6)
		WHERE id = ?`,
		item.Name, item.Description, item.Category,
		item.Price, item.Stock, item.ImageURL, item.Available,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	return nil
}

func (s *MySQLStore) DeleteMenuItem(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func getMenuItem(ctx context.Context, q queryer, itemID string) (*domain.MenuItem, error) {
	var item domain.MenuItem
	err := scanMenuItem(q.QueryRowContext(ctx, `
		SELECT id, name, description, category, price, stock, image_url, available, created_at, updated_at
		FROM menu_items WHERE id = ?`, itemID), &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query menu item: %w", err)
	}
	return &item, nil
}

func scanMenuItem(row rowScanner, item *domain.MenuItem) error {
	var description, imageURL sql.NullString
	if err := row.Scan(&item.ID, &item.Name, &description, &item.Category, &item.Price, &item.Stock, &imageURL, &item.Available, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return err
	}
	item.Description = description.String
	item.ImageURL = imageURL.String
	return nil
}
