package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/models"
)

const entryColumns = `id, user_id, category_id, metric_id, value, date, note, created_at`

// EntryFilter narrows ListEntries. Empty bounds are open; both are inclusive days.
type EntryFilter struct {
	From       string // YYYY-MM-DD
	To         string // YYYY-MM-DD
	CategoryID string
}

// CreateEntry inserts a new entry. The category must exist (apperr.ErrInvalid otherwise).
func (db *DB) CreateEntry(ctx context.Context, e models.Entry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, category_id, metric_id, value, date, day, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.CategoryID, e.MetricID, e.Value.String(), formatDate(e.Date), e.DateKey(), e.Note, e.CreatedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperr.ErrAlreadyExists
		case isForeignKeyViolation(err):
			return fmt.Errorf("unknown category %q: %w", e.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: insert entry: %w", err)
	}
	return nil
}

// UpsertEntry inserts or replaces an entry by id.
func (db *DB) UpsertEntry(ctx context.Context, e models.Entry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO entries (id, user_id, category_id, metric_id, value, date, day, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			metric_id   = excluded.metric_id,
			value       = excluded.value,
			date        = excluded.date,
			day         = excluded.day,
			note        = excluded.note
		WHERE entries.user_id = excluded.user_id
	`, e.ID, e.UserID, e.CategoryID, e.MetricID, e.Value.String(), formatDate(e.Date), e.DateKey(), e.Note, e.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("unknown category %q: %w", e.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: upsert entry: %w", err)
	}
	return nil
}

// GetEntry returns a single entry of a user.
func (db *DB) GetEntry(ctx context.Context, userID, id string) (*models.Entry, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM entries WHERE user_id = ? AND id = ?
	`, userID, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("datastore: get entry: %w", err)
	}
	return e, nil
}

// ListEntries returns a user's entries in insertion order.
func (db *DB) ListEntries(ctx context.Context, userID string, f EntryFilter) ([]models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE user_id = ?`
	args := []any{userID}
	if f.From != "" {
		query += ` AND day >= ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		query += ` AND day <= ?`
		args = append(args, f.To)
	}
	if f.CategoryID != "" {
		query += ` AND category_id = ?`
		args = append(args, f.CategoryID)
	}
	query += ` ORDER BY rowid`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: list entries: %w", err)
	}
	defer rows.Close()

	out := []models.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// UpdateEntry replaces the mutable fields of an entry.
func (db *DB) UpdateEntry(ctx context.Context, e models.Entry) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE entries SET category_id = ?, metric_id = ?, value = ?, date = ?, day = ?, note = ?
		WHERE user_id = ? AND id = ?
	`, e.CategoryID, e.MetricID, e.Value.String(), formatDate(e.Date), e.DateKey(), e.Note, e.UserID, e.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("unknown category %q: %w", e.CategoryID, apperr.ErrInvalid)
		}
		return fmt.Errorf("datastore: update entry: %w", err)
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

// DeleteEntry removes an entry.
func (db *DB) DeleteEntry(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("datastore: delete entry: %w", err)
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

// Entry dates are kept as RFC 3339 text so the original UTC offset, and with it
// the calendar day, survives a round trip.
func formatDate(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func scanEntry(s scanner) (*models.Entry, error) {
	var e models.Entry
	var date string
	if err := s.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.MetricID, &e.Value, &date, &e.Note, &e.CreatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return nil, fmt.Errorf("datastore: entry %s: parse date: %w", e.ID, err)
	}
	e.Date = t
	return &e, nil
}
