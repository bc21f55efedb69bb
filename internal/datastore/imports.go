package datastore

import (
	"context"
	"fmt"
)

// ImportedChecksum reports whether a batch with this content checksum was already imported.
func (db *DB) ImportedChecksum(ctx context.Context, checksum string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM imports WHERE checksum = ?`, checksum).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("datastore: lookup import: %w", err)
	}
	return n > 0, nil
}

// RecordImport remembers an imported batch. Recording the same checksum twice is a no-op.
func (db *DB) RecordImport(ctx context.Context, path, checksum string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO imports (checksum, path) VALUES (?, ?)
	`, checksum, path)
	if err != nil {
		return fmt.Errorf("datastore: record import: %w", err)
	}
	return nil
}
