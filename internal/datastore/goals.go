package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/models"
)

const goalColumns = `id, user_id, category_id, metric_id, target, period, created_at`

// CreateGoal inserts a new goal. The category must exist (apperr.ErrInvalid otherwise).
func (db *DB) CreateGoal(ctx context.Context, g models.Goal) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.UserID, g.CategoryID, g.MetricID, g.Target.String(), g.Period, g.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperr.ErrAlreadyExists
		case isForeignKeyViolation(err):
			return fmt.Errorf("unknown category %q: %w", g.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: insert goal: %w", err)
	}
	return nil
}

// UpsertGoal inserts or replaces a goal by id.
func (db *DB) UpsertGoal(ctx context.Context, g models.Goal) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			metric_id   = excluded.metric_id,
			target      = excluded.target,
			period      = excluded.period
		WHERE goals.user_id = excluded.user_id
	`, g.ID, g.UserID, g.CategoryID, g.MetricID, g.Target.String(), g.Period, g.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("unknown category %q: %w", g.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: upsert goal: %w", err)
	}
	return nil
}

// GetGoal returns a single goal of a user.
func (db *DB) GetGoal(ctx context.Context, userID, id string) (*models.Goal, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?
	`, userID, id)
	g, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("datastore: get goal: %w", err)
	}
	return g, nil
}

// ListGoals returns a user's goals in insertion order.
func (db *DB) ListGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY rowid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("datastore: list goals: %w", err)
	}
	defer rows.Close()

	out := []models.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// UpdateGoal replaces the mutable fields of a goal.
func (db *DB) UpdateGoal(ctx context.Context, g models.Goal) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE goals SET category_id = ?, metric_id = ?, target = ?, period = ?
		WHERE user_id = ? AND id = ?
	`, g.CategoryID, g.MetricID, g.Target.String(), g.Period, g.UserID, g.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("unknown category %q: %w", g.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: update goal: %w", err)
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

// DeleteGoal removes a goal.
func (db *DB) DeleteGoal(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("datastore: delete goal: %w", err)
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

func scanGoal(s scanner) (*models.Goal, error) {
	var g models.Goal
	if err := s.Scan(&g.ID, &g.UserID, &g.CategoryID, &g.MetricID, &g.Target, &g.Period, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}
