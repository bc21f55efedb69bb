package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vigor/internal/client"
	"github.com/starford/vigor/internal/dashboard"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/query"
	"github.com/starford/vigor/internal/querycache"
)

// EntryInput is an entry typed on the command line.
type EntryInput struct {
	Category string // name or id
	Value    string
	Metric   string
	Date     string // YYYY-MM-DD or RFC 3339, empty for now
	Note     string
}

// PrintDashboard fetches the data of the configured user from a running
// server and prints the summary for day.
func PrintDashboard(ctx context.Context, day time.Time, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	q := newQueryClient(app.config, app.logger, nil)
	sum, err := q.Dashboard(ctx, day)
	if err != nil {
		return err
	}
	return renderDashboard(app.out, sum)
}

// WatchDashboard prints the summary for day and prints it again whenever the
// server reports a change, until ctx is cancelled.
func WatchDashboard(ctx context.Context, day time.Time, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	changed := make(chan struct{}, 1)
	q := newQueryClient(app.config, app.logger, func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	render := func() error {
		sum, err := q.Dashboard(ctx, day)
		if err != nil {
			return err
		}
		return renderDashboard(app.out, sum)
	}
	if err := render(); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Watch(gCtx)
	})
	g.Go(func() error {
		q.Cache().RunJanitor(gCtx, app.config.Cache.JanitorInterval)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-changed:
				if err := render(); err != nil {
					app.logger.Warn("dashboard refresh failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// LogEntry records an entry through a running server and prints its id.
func LogEntry(ctx context.Context, in EntryInput, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	value, err := decimal.NewFromString(in.Value)
	if err != nil {
		return fmt.Errorf("value %q: not a number", in.Value)
	}
	e := models.Entry{MetricID: in.Metric, Value: value, Note: in.Note}
	if in.Date != "" {
		if e.Date, err = models.ParseDate(in.Date); err != nil {
			return err
		}
	}

	q := newQueryClient(app.config, app.logger, nil)
	snap, err := q.Snapshot(ctx)
	if err != nil {
		return err
	}
	e.CategoryID = in.Category
	if id, ok := snap.Indexes.CategoryIDByName(in.Category); ok {
		e.CategoryID = id
	}
	created, err := q.LogEntry(ctx, e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "logged %s %s on %s (%s)\n",
		created.Value.String(), created.MetricID, created.DateKey(), created.ID)
	return err
}

func newQueryClient(cfg *Config, logger *slog.Logger, onChange func(string)) *query.Client {
	api := client.New(cfg.Client.BaseURL,
		client.WithToken(cfg.Client.Token),
		client.WithUser(cfg.Client.User),
		client.WithTimeout(cfg.Client.Timeout),
		client.WithLogger(logger),
	)
	cache := querycache.New(
		querycache.WithMaxEntries(cfg.Cache.MaxEntries),
		querycache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		querycache.WithLogger(logger),
	)
	opts := []query.Option{
		query.WithCache(cache),
		query.WithRetryPolicy(cfg.Retry.Policy(logger)),
		query.WithCoalescing(cfg.Cache.Coalesce),
		query.WithLogger(logger),
	}
	if onChange != nil {
		opts = append(opts, query.WithOnChange(onChange))
	}
	return query.New(api, opts...)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	metStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e")).Padding(0, 1)
)

// renderDashboard prints one row per goal, or per category when it has none.
// Category names take the category color.
func renderDashboard(w io.Writer, sum dashboard.Summary) error {
	type row struct {
		cells []string
		color string
		met   bool
	}
	var rows []row
	for _, c := range sum.Categories {
		if len(c.Goals) == 0 {
			rows = append(rows, row{cells: []string{c.Name, c.Total.String(), "-", "-"}, color: c.Color})
			continue
		}
		for i, g := range c.Goals {
			name, total := c.Name, c.Total.String()
			if i > 0 {
				name, total = "", ""
			}
			rows = append(rows, row{
				cells: []string{
					name, total,
					strings.TrimSpace(fmt.Sprintf("%s %s %s", g.Target.String(), g.MetricID, g.Period)),
					fmt.Sprintf("%s (%s%%)", g.Progress.String(), g.Percent.StringFixed(1)),
				},
				color: c.Color,
				met:   g.Met,
			})
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("CATEGORY", "TODAY", "GOAL", "PROGRESS").
		StyleFunc(func(r, col int) lipgloss.Style {
			switch {
			case r == table.HeaderRow:
				return headerStyle
			case r < 0 || r >= len(rows):
				return cellStyle
			case col == 0 && rows[r].color != "":
				return cellStyle.Foreground(lipgloss.Color(rows[r].color))
			case col == 3 && rows[r].met:
				return metStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		t.Row(r.cells...)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Dashboard "+sum.Date) + "\n")
	b.WriteString(t.String() + "\n")
	if len(sum.Recent) > 0 {
		b.WriteString(titleStyle.Render("Recent") + "\n")
		for _, e := range sum.Recent {
			line := strings.TrimSpace(fmt.Sprintf("%s  %s %s", e.DateKey(), e.Value.String(), e.MetricID))
			if e.Note != "" {
				line += "  " + e.Note
			}
			b.WriteString("  " + line + "\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
