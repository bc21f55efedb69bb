package datastore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "vigor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newCategory(userID, name string, pos int) models.Category {
	return models.Category{
		ID: models.NewID(), UserID: userID, Name: name, Enabled: true,
		Position: pos, CreatedAt: time.Now().UTC(),
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"categories", "goals", "entries", "imports"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestCategoryCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "faith", 1)
	if err := db.CreateCategory(ctx, c); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if err := db.CreateCategory(ctx, c); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate create: got %v, want ErrAlreadyExists", err)
	}

	got, err := db.GetCategory(ctx, "u1", c.ID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if got.Name != "faith" || !got.Enabled || got.Position != 1 {
		t.Errorf("unexpected category: %+v", got)
	}

	// Other users cannot see it.
	if _, err := db.GetCategory(ctx, "u2", c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cross-user get: got %v, want ErrNotFound", err)
	}

	c.Name = "Faith"
	c.Enabled = false
	if err := db.UpdateCategory(ctx, c); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	got, _ = db.GetCategory(ctx, "u1", c.ID)
	if got.Name != "Faith" || got.Enabled {
		t.Errorf("update not applied: %+v", got)
	}

	if err := db.DeleteCategory(ctx, "u1", c.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := db.DeleteCategory(ctx, "u1", c.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if err := db.UpdateCategory(ctx, c); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update deleted: got %v, want ErrNotFound", err)
	}
}

func TestListCategoriesOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_ = db.CreateCategory(ctx, newCategory("u1", "work", 2))
	_ = db.CreateCategory(ctx, newCategory("u1", "faith", 1))
	_ = db.CreateCategory(ctx, newCategory("u1", "rest", 2))
	_ = db.CreateCategory(ctx, newCategory("u2", "other", 0))

	list, err := db.ListCategories(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	var names []string
	for _, c := range list {
		names = append(names, c.Name)
	}
	want := []string{"faith", "work", "rest"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	empty, err := db.ListCategories(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestUpsertCategory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "sleep", 0)
	if err := db.UpsertCategory(ctx, c); err != nil {
		t.Fatalf("UpsertCategory insert: %v", err)
	}
	c.Color = "#123456"
	if err := db.UpsertCategory(ctx, c); err != nil {
		t.Fatalf("UpsertCategory update: %v", err)
	}
	got, err := db.GetCategory(ctx, "u1", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Color != "#123456" {
		t.Errorf("color = %q", got.Color)
	}

	// Upserting the same id under another user leaves the row alone.
	other := c
	other.UserID = "u2"
	other.Name = "hijack"
	if err := db.UpsertCategory(ctx, other); err != nil {
		t.Fatalf("UpsertCategory other user: %v", err)
	}
	got, _ = db.GetCategory(ctx, "u1", c.ID)
	if got.Name != "sleep" {
		t.Errorf("name = %q, want sleep", got.Name)
	}
}

func TestGoalCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "faith", 0)
	_ = db.CreateCategory(ctx, c)

	g := models.Goal{
		ID: models.NewID(), UserID: "u1", CategoryID: c.ID, MetricID: "minutes",
		Target: decimal.RequireFromString("30.5"), Period: models.PeriodDaily, CreatedAt: time.Now().UTC(),
	}
	if err := db.CreateGoal(ctx, g); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}
	got, err := db.GetGoal(ctx, "u1", g.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if !got.Target.Equal(decimal.RequireFromString("30.5")) {
		t.Errorf("target = %s", got.Target)
	}

	g.Target = decimal.NewFromInt(45)
	g.Period = models.PeriodWeekly
	if err := db.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}
	list, err := db.ListGoals(ctx, "u1")
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(list) != 1 || list[0].Period != models.PeriodWeekly || !list[0].Target.Equal(decimal.NewFromInt(45)) {
		t.Errorf("unexpected goals: %+v", list)
	}

	if err := db.DeleteGoal(ctx, "u1", g.ID); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	if _, err := db.GetGoal(ctx, "u1", g.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get deleted: got %v, want ErrNotFound", err)
	}
}

func TestGoalUnknownCategory(t *testing.T) {
	db := testDB(t)
	g := models.Goal{
		ID: models.NewID(), UserID: "u1", CategoryID: "missing", MetricID: "m",
		Target: decimal.NewFromInt(1), Period: models.PeriodDaily, CreatedAt: time.Now(),
	}
	if err := db.CreateGoal(context.Background(), g); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestEntryDatePreservesOffset(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "work", 0)
	_ = db.CreateCategory(ctx, c)

	// 23:30 at -05:00 is already the next day in UTC.
	loc := time.FixedZone("EST", -5*3600)
	date := time.Date(2024, 3, 10, 23, 30, 0, 0, loc)
	e := models.Entry{
		ID: models.NewID(), UserID: "u1", CategoryID: c.ID,
		Value: decimal.NewFromInt(2), Date: date, Note: "late shift", CreatedAt: time.Now(),
	}
	if err := db.CreateEntry(ctx, e); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	got, err := db.GetEntry(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !got.Date.Equal(date) {
		t.Errorf("date = %v, want %v", got.Date, date)
	}
	if got.DateKey() != "2024-03-10" {
		t.Errorf("day = %q, want 2024-03-10", got.DateKey())
	}
	if got.Note != "late shift" {
		t.Errorf("note = %q", got.Note)
	}
}

func TestListEntriesFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	faith := newCategory("u1", "faith", 0)
	work := newCategory("u1", "work", 1)
	_ = db.CreateCategory(ctx, faith)
	_ = db.CreateCategory(ctx, work)

	add := func(catID string, day int) {
		t.Helper()
		e := models.Entry{
			ID: models.NewID(), UserID: "u1", CategoryID: catID,
			Value: decimal.NewFromInt(1), Date: time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC), CreatedAt: time.Now(),
		}
		if err := db.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
	}
	add(faith.ID, 1)
	add(work.ID, 2)
	add(faith.ID, 3)
	add(faith.ID, 5)

	tests := []struct {
		name   string
		filter EntryFilter
		want   int
	}{
		{"all", EntryFilter{}, 4},
		{"single day", EntryFilter{From: "2024-01-03", To: "2024-01-03"}, 1},
		{"range", EntryFilter{From: "2024-01-02", To: "2024-01-05"}, 3},
		{"open end", EntryFilter{From: "2024-01-03"}, 2},
		{"category", EntryFilter{CategoryID: faith.ID}, 3},
		{"category and range", EntryFilter{CategoryID: faith.ID, To: "2024-01-02"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListEntries(ctx, "u1", tt.filter)
			if err != nil {
				t.Fatalf("ListEntries: %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("got %d entries, want %d", len(list), tt.want)
			}
		})
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "fitness", 0)
	_ = db.CreateCategory(ctx, c)
	_ = db.CreateGoal(ctx, models.Goal{
		ID: models.NewID(), UserID: "u1", CategoryID: c.ID, MetricID: "km",
		Target: decimal.NewFromInt(5), Period: models.PeriodDaily, CreatedAt: time.Now(),
	})
	_ = db.CreateEntry(ctx, models.Entry{
		ID: models.NewID(), UserID: "u1", CategoryID: c.ID,
		Value: decimal.NewFromInt(3), Date: time.Now(), CreatedAt: time.Now(),
	})

	if err := db.DeleteCategory(ctx, "u1", c.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	goals, _ := db.ListGoals(ctx, "u1")
	entries, _ := db.ListEntries(ctx, "u1", EntryFilter{})
	if len(goals) != 0 || len(entries) != 0 {
		t.Errorf("cascade failed: %d goals, %d entries", len(goals), len(entries))
	}
}

func TestEntryUpdateAndUpsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := newCategory("u1", "work", 0)
	_ = db.CreateCategory(ctx, c)
	e := models.Entry{
		ID: models.NewID(), UserID: "u1", CategoryID: c.ID,
		Value: decimal.NewFromInt(1), Date: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), CreatedAt: time.Now(),
	}
	if err := db.UpsertEntry(ctx, e); err != nil {
		t.Fatalf("UpsertEntry insert: %v", err)
	}
	e.Value = decimal.RequireFromString("2.25")
	if err := db.UpsertEntry(ctx, e); err != nil {
		t.Fatalf("UpsertEntry update: %v", err)
	}
	e.Date = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	if err := db.UpdateEntry(ctx, e); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}

	list, _ := db.ListEntries(ctx, "u1", EntryFilter{From: "2024-05-02", To: "2024-05-02"})
	if len(list) != 1 || !list[0].Value.Equal(decimal.RequireFromString("2.25")) {
		t.Fatalf("unexpected entries: %+v", list)
	}

	e.CategoryID = "missing"
	if err := db.UpdateEntry(ctx, e); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("update to unknown category: got %v, want ErrInvalid", err)
	}
	if err := db.DeleteEntry(ctx, "u1", e.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := db.DeleteEntry(ctx, "u1", e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestImports(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seen, err := db.ImportedChecksum(ctx, "abc")
	if err != nil {
		t.Fatalf("ImportedChecksum: %v", err)
	}
	if seen {
		t.Fatal("checksum reported before import")
	}
	if err := db.RecordImport(ctx, "inbox/a.yaml", "abc"); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if err := db.RecordImport(ctx, "inbox/a-copy.yaml", "abc"); err != nil {
		t.Fatalf("RecordImport duplicate: %v", err)
	}
	seen, _ = db.ImportedChecksum(ctx, "abc")
	if !seen {
		t.Error("checksum not recorded")
	}
}
