// Package testutil provides shared test helpers for databases, inboxes and seed data.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *datastore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vigor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := datastore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage.Provider.
func TestInbox(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Day returns midnight UTC of the given calendar day.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Seed writes one category with a daily goal and the given entry values on day.
// It returns the category id.
func Seed(t *testing.T, db *datastore.DB, userID, name string, day time.Time, target string, values ...string) string {
	t.Helper()
	ctx := context.Background()
	cat := models.Category{ID: models.NewID(), UserID: userID, Name: name, Enabled: true, CreatedAt: time.Now()}
	if err := db.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("seed category: %v", err)
	}
	if target != "" {
		goal := models.Goal{
			ID: models.NewID(), UserID: userID, CategoryID: cat.ID,
			Target: decimal.RequireFromString(target), Period: models.PeriodDaily, CreatedAt: time.Now(),
		}
		if err := db.CreateGoal(ctx, goal); err != nil {
			t.Fatalf("seed goal: %v", err)
		}
	}
	for _, v := range values {
		e := models.Entry{
			ID: models.NewID(), UserID: userID, CategoryID: cat.ID,
			Value: decimal.RequireFromString(v), Date: day, CreatedAt: time.Now(),
		}
		if err := db.CreateEntry(ctx, e); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
	return cat.ID
}
