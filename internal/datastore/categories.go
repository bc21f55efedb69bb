package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/models"
)

const categoryColumns = `id, user_id, name, color, enabled, position, created_at`

// CreateCategory inserts a new category. An existing id yields apperr.ErrAlreadyExists.
func (db *DB) CreateCategory(ctx context.Context, c models.Category) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.Color, boolToInt(c.Enabled), c.Position, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("datastore: insert category: %w", err)
	}
	return nil
}

// UpsertCategory inserts or replaces a category by id.
func (db *DB) UpsertCategory(ctx context.Context, c models.Category) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name     = excluded.name,
			color    = excluded.color,
			enabled  = excluded.enabled,
			position = excluded.position
		WHERE categories.user_id = excluded.user_id
	`, c.ID, c.UserID, c.Name, c.Color, boolToInt(c.Enabled), c.Position, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("datastore: upsert category: %w", err)
	}
	return nil
}

// GetCategory returns a single category of a user.
func (db *DB) GetCategory(ctx context.Context, userID, id string) (*models.Category, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND id = ?
	`, userID, id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("datastore: get category: %w", err)
	}
	return c, nil
}

// ListCategories returns a user's categories ordered by position, then insertion.
func (db *DB) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE user_id = ?
		ORDER BY position, rowid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list categories: %w", err)
	}
	defer rows.Close()

	out := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateCategory replaces the mutable fields of a category.
func (db *DB) UpdateCategory(ctx context.Context, c models.Category) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE categories SET name = ?, color = ?, enabled = ?, position = ?
		WHERE user_id = ? AND id = ?
	`, c.Name, c.Color, boolToInt(c.Enabled), c.Position, c.UserID, c.ID)
	if err != nil {
		return fmt.Errorf("datastore: update category: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category together with its goals and entries.
func (db *DB) DeleteCategory(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM categories WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("datastore: delete category: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (*models.Category, error) {
	var c models.Category
	var enabled int
	if err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &enabled, &c.Position, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Enabled = enabled != 0
	return &c, nil
}
