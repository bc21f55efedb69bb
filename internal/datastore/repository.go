package datastore

import (
	"context"

	"github.com/starford/vigor/internal/models"
)

// Repository defines the persistence operations used by the wellness service.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Repository interface {
	CreateCategory(ctx context.Context, c models.Category) error
	UpsertCategory(ctx context.Context, c models.Category) error
	GetCategory(ctx context.Context, userID, id string) (*models.Category, error)
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	UpdateCategory(ctx context.Context, c models.Category) error
	DeleteCategory(ctx context.Context, userID, id string) error

	CreateGoal(ctx context.Context, g models.Goal) error
	UpsertGoal(ctx context.Context, g models.Goal) error
	GetGoal(ctx context.Context, userID, id string) (*models.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]models.Goal, error)
	UpdateGoal(ctx context.Context, g models.Goal) error
	DeleteGoal(ctx context.Context, userID, id string) error

	CreateEntry(ctx context.Context, e models.Entry) error
	UpsertEntry(ctx context.Context, e models.Entry) error
	GetEntry(ctx context.Context, userID, id string) (*models.Entry, error)
	ListEntries(ctx context.Context, userID string, f EntryFilter) ([]models.Entry, error)
	UpdateEntry(ctx context.Context, e models.Entry) error
	DeleteEntry(ctx context.Context, userID, id string) error

	ImportedChecksum(ctx context.Context, checksum string) (bool, error)
	RecordImport(ctx context.Context, path, checksum string) error

	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
