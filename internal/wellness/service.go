// Package wellness implements the backend service for categories, goals and entries.
package wellness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/dashboard"
	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/indexes"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/normstore"
)

// Notifier receives every successful mutation.
type Notifier interface {
	Notify(c models.Change)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(models.Change)

// Notify calls f(c).
func (f NotifyFunc) Notify(c models.Change) { f(c) }

type nopNotifier struct{}

func (nopNotifier) Notify(models.Change) {}

// Service validates requests and coordinates the repository and change notifications.
type Service struct {
	repo   datastore.Repository
	notify Notifier
	log    *slog.Logger
	now    func() time.Time
}

// NewService creates a wellness service. A nil notifier discards changes.
func NewService(repo datastore.Repository, notifier Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notify: notifier, log: logger, now: time.Now}
}

// --- Categories ---

// ListCategories returns the user's categories by position.
func (s *Service) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	return s.repo.ListCategories(ctx, userID)
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, userID, id string) (*models.Category, error) {
	return s.repo.GetCategory(ctx, userID, id)
}

// CreateCategory assigns an id if missing and stores the category.
func (s *Service) CreateCategory(ctx context.Context, userID string, c models.Category) (*models.Category, error) {
	if c.ID == "" {
		c.ID = models.NewID()
	}
	c.UserID = userID
	c.CreatedAt = s.now().UTC()
	if err := invalid(c.Validate()); err != nil {
		return nil, err
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	s.publish(models.ResourceCategories, models.ChangeCreated, userID, c.ID)
	return &c, nil
}

// UpdateCategory replaces the editable fields of an existing category.
func (s *Service) UpdateCategory(ctx context.Context, userID, id string, c models.Category) (*models.Category, error) {
	existing, err := s.repo.GetCategory(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.UserID = userID
	c.CreatedAt = existing.CreatedAt
	if err := invalid(c.Validate()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	s.publish(models.ResourceCategories, models.ChangeUpdated, userID, id)
	return &c, nil
}

// DeleteCategory removes a category with its goals and entries.
func (s *Service) DeleteCategory(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	s.publish(models.ResourceCategories, models.ChangeDeleted, userID, id)
	// Cascaded rows have no individual ids to report.
	s.publish(models.ResourceGoals, models.ChangeDeleted, userID, "")
	s.publish(models.ResourceEntries, models.ChangeDeleted, userID, "")
	return nil
}

// --- Goals ---

// ListGoals returns the user's goals.
func (s *Service) ListGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	return s.repo.ListGoals(ctx, userID)
}

// GetGoal returns one goal.
func (s *Service) GetGoal(ctx context.Context, userID, id string) (*models.Goal, error) {
	return s.repo.GetGoal(ctx, userID, id)
}

// CreateGoal stores a goal for one of the user's categories.
func (s *Service) CreateGoal(ctx context.Context, userID string, g models.Goal) (*models.Goal, error) {
	if g.ID == "" {
		g.ID = models.NewID()
	}
	g.UserID = userID
	g.CreatedAt = s.now().UTC()
	if err := invalid(g.Validate()); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, userID, g.CategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateGoal(ctx, g); err != nil {
		return nil, err
	}
	s.publish(models.ResourceGoals, models.ChangeCreated, userID, g.ID)
	return &g, nil
}

// UpdateGoal replaces the editable fields of an existing goal.
func (s *Service) UpdateGoal(ctx context.Context, userID, id string, g models.Goal) (*models.Goal, error) {
	existing, err := s.repo.GetGoal(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	g.ID = id
	g.UserID = userID
	g.CreatedAt = existing.CreatedAt
	if err := invalid(g.Validate()); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, userID, g.CategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateGoal(ctx, g); err != nil {
		return nil, err
	}
	s.publish(models.ResourceGoals, models.ChangeUpdated, userID, id)
	return &g, nil
}

// DeleteGoal removes a goal.
func (s *Service) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteGoal(ctx, userID, id); err != nil {
		return err
	}
	s.publish(models.ResourceGoals, models.ChangeDeleted, userID, id)
	return nil
}

// --- Entries ---

// ListEntries returns the user's entries matching f.
func (s *Service) ListEntries(ctx context.Context, userID string, f datastore.EntryFilter) ([]models.Entry, error) {
	return s.repo.ListEntries(ctx, userID, f)
}

// GetEntry returns one entry.
func (s *Service) GetEntry(ctx context.Context, userID, id string) (*models.Entry, error) {
	return s.repo.GetEntry(ctx, userID, id)
}

// CreateEntry records an entry. A zero date means now.
func (s *Service) CreateEntry(ctx context.Context, userID string, e models.Entry) (*models.Entry, error) {
	if e.ID == "" {
		e.ID = models.NewID()
	}
	e.UserID = userID
	e.CreatedAt = s.now().UTC()
	if e.Date.IsZero() {
		e.Date = s.now()
	}
	if err := invalid(e.Validate()); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, userID, e.CategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	s.publish(models.ResourceEntries, models.ChangeCreated, userID, e.ID)
	return &e, nil
}

// UpdateEntry replaces the editable fields of an existing entry.
func (s *Service) UpdateEntry(ctx context.Context, userID, id string, e models.Entry) (*models.Entry, error) {
	existing, err := s.repo.GetEntry(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	e.ID = id
	e.UserID = userID
	e.CreatedAt = existing.CreatedAt
	if e.Date.IsZero() {
		e.Date = existing.Date
	}
	if err := invalid(e.Validate()); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, userID, e.CategoryID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateEntry(ctx, e); err != nil {
		return nil, err
	}
	s.publish(models.ResourceEntries, models.ChangeUpdated, userID, id)
	return &e, nil
}

// DeleteEntry removes an entry.
func (s *Service) DeleteEntry(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteEntry(ctx, userID, id); err != nil {
		return err
	}
	s.publish(models.ResourceEntries, models.ChangeDeleted, userID, id)
	return nil
}

// --- Dashboard ---

// Dashboard summarizes the user's progress on day.
func (s *Service) Dashboard(ctx context.Context, userID string, day time.Time) (*dashboard.Summary, error) {
	cats, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	goals, err := s.repo.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, userID, datastore.EntryFilter{})
	if err != nil {
		return nil, err
	}

	catStore, err := normstore.FromSlice(cats)
	if err != nil {
		return nil, fmt.Errorf("wellness: categories: %w", err)
	}
	goalStore, err := normstore.FromSlice(goals)
	if err != nil {
		return nil, fmt.Errorf("wellness: goals: %w", err)
	}
	entryStore, err := normstore.FromSlice(entries)
	if err != nil {
		return nil, fmt.Errorf("wellness: entries: %w", err)
	}

	idx := indexes.Build(catStore, goalStore, entryStore)
	sum := dashboard.Summarize(day, catStore, goalStore, entryStore, idx)
	return &sum, nil
}

// --- Import ---

// Batch is a set of records imported together for one user.
type Batch struct {
	UserID     string
	Categories []models.Category
	Goals      []models.Goal
	Entries    []models.Entry
}

// ImportResult counts the records written by Import.
type ImportResult struct {
	Categories int `json:"categories"`
	Goals      int `json:"goals"`
	Entries    int `json:"entries"`
}

// Import upserts a batch. Categories are written first so goals and entries can
// reference them by id. Validation stops the import at the first invalid record;
// records written before it are kept.
func (s *Service) Import(ctx context.Context, b Batch) (ImportResult, error) {
	var res ImportResult
	if b.UserID == "" {
		return res, fmt.Errorf("%w: batch has no user", apperr.ErrInvalid)
	}
	now := s.now().UTC()

	for _, c := range b.Categories {
		if c.ID == "" {
			c.ID = models.NewID()
		}
		c.UserID = b.UserID
		c.CreatedAt = now
		if err := invalid(c.Validate()); err != nil {
			return res, fmt.Errorf("category %q: %w", c.Name, err)
		}
		if err := s.repo.UpsertCategory(ctx, c); err != nil {
			return res, err
		}
		res.Categories++
	}
	for _, g := range b.Goals {
		if g.ID == "" {
			g.ID = models.NewID()
		}
		g.UserID = b.UserID
		g.CreatedAt = now
		if err := invalid(g.Validate()); err != nil {
			return res, fmt.Errorf("goal %q: %w", g.ID, err)
		}
		if err := s.repo.UpsertGoal(ctx, g); err != nil {
			return res, err
		}
		res.Goals++
	}
	for _, e := range b.Entries {
		if e.ID == "" {
			e.ID = models.NewID()
		}
		e.UserID = b.UserID
		e.CreatedAt = now
		if err := invalid(e.Validate()); err != nil {
			return res, fmt.Errorf("entry %q: %w", e.ID, err)
		}
		if err := s.repo.UpsertEntry(ctx, e); err != nil {
			return res, err
		}
		res.Entries++
	}

	if res.Categories > 0 {
		s.publish(models.ResourceCategories, models.ChangeImported, b.UserID, "")
	}
	if res.Goals > 0 {
		s.publish(models.ResourceGoals, models.ChangeImported, b.UserID, "")
	}
	if res.Entries > 0 {
		s.publish(models.ResourceEntries, models.ChangeImported, b.UserID, "")
	}
	return res, nil
}

func (s *Service) requireCategory(ctx context.Context, userID, categoryID string) error {
	if _, err := s.repo.GetCategory(ctx, userID, categoryID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("unknown category %q: %w", categoryID, apperr.ErrInvalid)
		}
		return err
	}
	return nil
}

func (s *Service) publish(resource, kind, userID, id string) {
	c := models.Change{Resource: resource, Kind: kind, UserID: userID, ID: id}
	s.log.Debug("change", slog.String("resource", resource), slog.String("kind", kind),
		slog.String("user", userID), slog.String("id", id))
	s.notify.Notify(c)
}

// invalid marks validation failures with apperr.ErrInvalid.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
}
