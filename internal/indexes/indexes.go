// Package indexes computes read-only lookup tables over the normalized category,
// goal and entry stores.
//
// Indexes are a pure function of their inputs and carry no state of their own.
// They are rebuilt wholesale whenever any input store changes; there is no
// incremental maintenance.
package indexes

import (
	"sort"
	"strings"
	"time"

	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/normstore"
)

// Indexes holds the derived lookup tables.
type Indexes struct {
	// CategoryByName maps a lower-cased category name to its id. On a name
	// collision the category later in store order wins.
	CategoryByName map[string]string `json:"category_by_name"`
	// EnabledCategoryIDs is the set of enabled categories.
	EnabledCategoryIDs map[string]struct{} `json:"-"`
	// GoalsByCategoryID lists goal ids per category, in store order.
	GoalsByCategoryID map[string][]string `json:"goals_by_category_id"`
	// GoalByCategoryAndMetric maps category id -> metric id -> goal id.
	GoalByCategoryAndMetric map[string]map[string]string `json:"goal_by_category_and_metric"`
	// EntriesByCategoryID lists entry ids per category, in store order.
	EntriesByCategoryID map[string][]string `json:"entries_by_category_id"`
	// EntriesByDate lists entry ids per calendar day (models.DateLayout).
	EntriesByDate map[string][]string `json:"entries_by_date"`
	// RecentEntryIDs holds every entry id sorted by date, newest first.
	RecentEntryIDs []string `json:"recent_entry_ids"`
}

// Build computes all indexes in a single pass over each store.
func Build(
	categories normstore.Store[models.Category],
	goals normstore.Store[models.Goal],
	entries normstore.Store[models.Entry],
) *Indexes {
	idx := &Indexes{
		CategoryByName:          make(map[string]string, categories.Len()),
		EnabledCategoryIDs:      make(map[string]struct{}, categories.Len()),
		GoalsByCategoryID:       make(map[string][]string),
		GoalByCategoryAndMetric: make(map[string]map[string]string),
		EntriesByCategoryID:     make(map[string][]string),
		EntriesByDate:           make(map[string][]string),
		RecentEntryIDs:          make([]string, 0, entries.Len()),
	}

	categories.Each(func(c models.Category) bool {
		idx.CategoryByName[strings.ToLower(c.Name)] = c.ID
		if c.Enabled {
			idx.EnabledCategoryIDs[c.ID] = struct{}{}
		}
		return true
	})

	goals.Each(func(g models.Goal) bool {
		idx.GoalsByCategoryID[g.CategoryID] = append(idx.GoalsByCategoryID[g.CategoryID], g.ID)
		byMetric, ok := idx.GoalByCategoryAndMetric[g.CategoryID]
		if !ok {
			byMetric = make(map[string]string)
			idx.GoalByCategoryAndMetric[g.CategoryID] = byMetric
		}
		byMetric[g.MetricID] = g.ID
		return true
	})

	type dated struct {
		id   string
		date time.Time
	}
	recent := make([]dated, 0, entries.Len())
	entries.Each(func(e models.Entry) bool {
		idx.EntriesByCategoryID[e.CategoryID] = append(idx.EntriesByCategoryID[e.CategoryID], e.ID)
		day := e.DateKey()
		idx.EntriesByDate[day] = append(idx.EntriesByDate[day], e.ID)
		recent = append(recent, dated{id: e.ID, date: e.Date})
		return true
	})

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].date.After(recent[j].date)
	})
	for _, r := range recent {
		idx.RecentEntryIDs = append(idx.RecentEntryIDs, r.id)
	}

	return idx
}

// CategoryIDByName looks up a category by case-insensitive name.
func (idx *Indexes) CategoryIDByName(name string) (string, bool) {
	id, ok := idx.CategoryByName[strings.ToLower(name)]
	return id, ok
}

// IsEnabled reports whether the category is enabled.
func (idx *Indexes) IsEnabled(categoryID string) bool {
	_, ok := idx.EnabledCategoryIDs[categoryID]
	return ok
}

// GoalFor returns the goal id for a category and metric.
func (idx *Indexes) GoalFor(categoryID, metricID string) (string, bool) {
	id, ok := idx.GoalByCategoryAndMetric[categoryID][metricID]
	return id, ok
}

// EntriesOn returns the entry ids recorded on the calendar day of t.
func (idx *Indexes) EntriesOn(t time.Time) []string {
	return idx.EntriesByDate[t.Format(models.DateLayout)]
}

// Recent returns at most n entry ids, newest first.
func (idx *Indexes) Recent(n int) []string {
	if n <= 0 || n >= len(idx.RecentEntryIDs) {
		return idx.RecentEntryIDs
	}
	return idx.RecentEntryIDs[:n]
}
