package wellness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/testutil"
)

type recorder struct {
	mu      sync.Mutex
	changes []models.Change
}

func (r *recorder) Notify(c models.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Tag()
	}
	return out
}

func setup(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewService(testutil.TestDB(t), rec, nil), rec
}

func TestCategoryLifecycle(t *testing.T) {
	svc, rec := setup(t)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, "u1", models.Category{Name: "Faith", Enabled: true})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if c.ID == "" || c.UserID != "u1" || c.CreatedAt.IsZero() {
		t.Errorf("defaults not applied: %+v", c)
	}

	upd, err := svc.UpdateCategory(ctx, "u1", c.ID, models.Category{Name: "Prayer", Enabled: false})
	if err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	if !upd.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", c.CreatedAt, upd.CreatedAt)
	}

	if err := svc.DeleteCategory(ctx, "u1", c.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}

	want := []string{"categories:u1", "categories:u1", "categories:u1", "goals:u1", "entries:u1"}
	got := rec.tags()
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidationErrors(t *testing.T) {
	svc, rec := setup(t)
	ctx := context.Background()

	if _, err := svc.CreateCategory(ctx, "u1", models.Category{}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("empty name: got %v, want ErrInvalid", err)
	}
	_, err := svc.CreateGoal(ctx, "u1", models.Goal{
		CategoryID: "missing", MetricID: "m", Target: decimal.NewFromInt(1), Period: models.PeriodDaily,
	})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown category: got %v, want ErrInvalid", err)
	}
	_, err = svc.CreateEntry(ctx, "u1", models.Entry{CategoryID: "missing", Value: decimal.NewFromInt(1)})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown category: got %v, want ErrInvalid", err)
	}
	if len(rec.tags()) != 0 {
		t.Errorf("failed mutations must not notify, got %v", rec.tags())
	}
}

func TestCategoriesAreScopedByUser(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, "alice", models.Category{Name: "Work", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.CreateEntry(ctx, "bob", models.Entry{CategoryID: c.ID, Value: decimal.NewFromInt(1)})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("cross-user entry: got %v, want ErrInvalid", err)
	}
	if _, err := svc.GetCategory(ctx, "bob", c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cross-user get: got %v, want ErrNotFound", err)
	}
}

func TestCreateEntryDefaultsDate(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	c, _ := svc.CreateCategory(ctx, "u1", models.Category{Name: "Fitness", Enabled: true})
	e, err := svc.CreateEntry(ctx, "u1", models.Entry{CategoryID: c.ID, Value: decimal.NewFromInt(3)})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if !e.Date.Equal(fixed) {
		t.Errorf("date = %v, want %v", e.Date, fixed)
	}

	list, err := svc.ListEntries(ctx, "u1", datastore.EntryFilter{From: "2024-06-01", To: "2024-06-01"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d entries, want 1", len(list))
	}
}

func TestDashboard(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	day := testutil.Day(2024, time.March, 10)

	db := svc.repo.(*datastore.DB)
	testutil.Seed(t, db, "u1", "Faith", day, "30", "20", "15")
	testutil.Seed(t, db, "u1", "Work", day.AddDate(0, 0, -1), "", "8")

	sum, err := svc.Dashboard(ctx, "u1", day)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(sum.Categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(sum.Categories))
	}
	faith := sum.Categories[0]
	if !faith.Total.Equal(decimal.NewFromInt(35)) {
		t.Errorf("faith total = %s, want 35", faith.Total)
	}
	if len(faith.Goals) != 1 || !faith.Goals[0].Met {
		t.Errorf("faith goal not met: %+v", faith.Goals)
	}
	if work := sum.Categories[1]; len(work.Entries) != 0 {
		t.Errorf("work entries on day = %d, want 0", len(work.Entries))
	}
	if len(sum.Recent) != 3 {
		t.Errorf("recent = %d, want 3", len(sum.Recent))
	}
}

func TestImport(t *testing.T) {
	svc, rec := setup(t)
	ctx := context.Background()

	b := Batch{
		UserID:     "u1",
		Categories: []models.Category{{ID: "faith", Name: "Faith", Enabled: true}},
		Goals: []models.Goal{{
			ID: "faith-daily", CategoryID: "faith", MetricID: "minutes",
			Target: decimal.NewFromInt(30), Period: models.PeriodDaily,
		}},
		Entries: []models.Entry{
			{ID: "e1", CategoryID: "faith", MetricID: "minutes", Value: decimal.NewFromInt(10), Date: testutil.Day(2024, 1, 1)},
			{ID: "e2", CategoryID: "faith", MetricID: "minutes", Value: decimal.NewFromInt(25), Date: testutil.Day(2024, 1, 2)},
		},
	}
	res, err := svc.Import(ctx, b)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Categories != 1 || res.Goals != 1 || res.Entries != 2 {
		t.Errorf("result = %+v", res)
	}

	// Importing again updates in place.
	b.Entries[0].Value = decimal.NewFromInt(12)
	if _, err := svc.Import(ctx, b); err != nil {
		t.Fatalf("re-Import: %v", err)
	}
	e, err := svc.GetEntry(ctx, "u1", "e1")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Value.Equal(decimal.NewFromInt(12)) {
		t.Errorf("value = %s, want 12", e.Value)
	}
	entries, _ := svc.ListEntries(ctx, "u1", datastore.EntryFilter{})
	if len(entries) != 2 {
		t.Errorf("got %d entries after re-import, want 2", len(entries))
	}
	if len(rec.tags()) != 6 {
		t.Errorf("got %d notifications, want 6", len(rec.tags()))
	}

	if _, err := svc.Import(ctx, Batch{}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("no user: got %v, want ErrInvalid", err)
	}
}
