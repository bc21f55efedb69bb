// Package dashboard computes a day's progress summary from the normalized stores
// and their derived indexes.
package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/indexes"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/normstore"
)

// RecentLimit is the number of entries listed in Summary.Recent.
const RecentLimit = 5

var hundred = decimal.NewFromInt(100)

// Summary is the dashboard for one calendar day.
type Summary struct {
	Date       string            `json:"date"`
	Categories []CategorySummary `json:"categories"`
	Recent     []models.Entry    `json:"recent"`
}

// CategorySummary is the progress of one enabled category.
type CategorySummary struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Color      string          `json:"color,omitempty"`
	Entries    []models.Entry  `json:"entries"`
	Total      decimal.Decimal `json:"total"`
	Goals      []GoalProgress  `json:"goals"`
}

// GoalProgress is a goal measured over its period window ending at the summary day.
type GoalProgress struct {
	GoalID   string          `json:"goal_id"`
	MetricID string          `json:"metric_id"`
	Period   string          `json:"period"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Target   decimal.Decimal `json:"target"`
	Progress decimal.Decimal `json:"progress"`
	// Percent is progress/target*100 rounded to one decimal place. It is not capped.
	Percent decimal.Decimal `json:"percent"`
	Met     bool            `json:"met"`
}

// Window returns the inclusive day range a goal period covers when measured at day.
// Daily is the day itself, weekly the seven days ending at day, monthly the
// calendar month up to day.
func Window(period string, day time.Time) (from, to string) {
	to = day.Format(models.DateLayout)
	switch period {
	case models.PeriodWeekly:
		from = day.AddDate(0, 0, -6).Format(models.DateLayout)
	case models.PeriodMonthly:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).Format(models.DateLayout)
	default:
		from = to
	}
	return from, to
}

// Summarize builds the summary for day. Categories appear in store order and
// disabled categories are skipped. An entry counts toward a goal when it has no
// metric or the goal's metric.
func Summarize(
	day time.Time,
	categories normstore.Store[models.Category],
	goals normstore.Store[models.Goal],
	entries normstore.Store[models.Entry],
	idx *indexes.Indexes,
) Summary {
	dayKey := day.Format(models.DateLayout)
	sum := Summary{
		Date:       dayKey,
		Categories: []CategorySummary{},
		Recent:     []models.Entry{},
	}

	categories.Each(func(c models.Category) bool {
		if !idx.IsEnabled(c.ID) {
			return true
		}
		cs := CategorySummary{
			CategoryID: c.ID,
			Name:       c.Name,
			Color:      c.Color,
			Entries:    []models.Entry{},
			Total:      decimal.Zero,
			Goals:      []GoalProgress{},
		}

		catEntries := lookup(entries, idx.EntriesByCategoryID[c.ID])
		for _, e := range catEntries {
			if e.DateKey() == dayKey {
				cs.Entries = append(cs.Entries, e)
				cs.Total = cs.Total.Add(e.Value)
			}
		}

		for _, g := range lookup(goals, idx.GoalsByCategoryID[c.ID]) {
			cs.Goals = append(cs.Goals, progress(g, day, catEntries))
		}

		sum.Categories = append(sum.Categories, cs)
		return true
	})

	sum.Recent = append(sum.Recent, lookup(entries, idx.Recent(RecentLimit))...)
	return sum
}

func progress(g models.Goal, day time.Time, entries []models.Entry) GoalProgress {
	from, to := Window(g.Period, day)
	gp := GoalProgress{
		GoalID:   g.ID,
		MetricID: g.MetricID,
		Period:   g.Period,
		From:     from,
		To:       to,
		Target:   g.Target,
		Progress: decimal.Zero,
		Percent:  decimal.Zero,
	}
	for _, e := range entries {
		if e.MetricID != "" && e.MetricID != g.MetricID {
			continue
		}
		if k := e.DateKey(); k >= from && k <= to {
			gp.Progress = gp.Progress.Add(e.Value)
		}
	}
	if g.Target.IsPositive() {
		gp.Percent = gp.Progress.Mul(hundred).Div(g.Target).Round(1)
		gp.Met = gp.Progress.GreaterThanOrEqual(g.Target)
	}
	return gp
}

func lookup[T normstore.Entity](s normstore.Store[T], ids []string) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.Get(id); ok {
			out = append(out, v)
		}
	}
	return out
}
