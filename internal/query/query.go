// Package query is the client-side data layer. Each read goes through the tagged
// cache first; misses are fetched with retry, normalized into stores and cached
// under a per-user tag. Mutations invalidate the tags they affect, and Watch
// applies the server's change events to the cache.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/vigor/internal/client"
	"github.com/starford/vigor/internal/dashboard"
	"github.com/starford/vigor/internal/indexes"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/normstore"
	"github.com/starford/vigor/internal/querycache"
	"github.com/starford/vigor/internal/retry"
)

// Client reads and writes wellness data through the cache.
type Client struct {
	api      *client.Client
	cache    *querycache.Cache
	policy   retry.Policy
	ttl      time.Duration
	coalesce bool
	group    singleflight.Group
	onChange func(eventType string)
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets the cache. By default each Client owns a fresh querycache.New().
func WithCache(c *querycache.Cache) Option {
	return func(q *Client) { q.cache = c }
}

// WithRetryPolicy sets the retry policy for remote calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(q *Client) { q.policy = p }
}

// WithTTL sets the TTL of cached stores. Zero uses the cache default.
func WithTTL(d time.Duration) Option {
	return func(q *Client) { q.ttl = d }
}

// WithCoalescing makes concurrent misses for the same key share one fetch.
func WithCoalescing(on bool) Option {
	return func(q *Client) { q.coalesce = on }
}

// WithOnChange registers fn to run after Watch has applied a change event.
func WithOnChange(fn func(eventType string)) Option {
	return func(q *Client) { q.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Client) { q.log = l }
}

// New creates a query client over api.
func New(api *client.Client, opts ...Option) *Client {
	q := &Client{
		api:    api,
		policy: retry.DefaultPolicy(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.cache == nil {
		q.cache = querycache.New(querycache.WithLogger(q.log))
	}
	return q
}

// Cache exposes the underlying cache for diagnostics.
func (q *Client) Cache() *querycache.Cache { return q.cache }

// Key returns the cache key and tag of a resource for the acting user.
func (q *Client) Key(resource string) string {
	return models.Tag(resource, q.api.User())
}

// Categories returns the user's categories.
func (q *Client) Categories(ctx context.Context) (normstore.Store[models.Category], error) {
	return fetch(ctx, q, models.ResourceCategories, q.api.ListCategories)
}

// Goals returns the user's goals.
func (q *Client) Goals(ctx context.Context) (normstore.Store[models.Goal], error) {
	return fetch(ctx, q, models.ResourceGoals, q.api.ListGoals)
}

// Entries returns all of the user's entries.
func (q *Client) Entries(ctx context.Context) (normstore.Store[models.Entry], error) {
	return fetch(ctx, q, models.ResourceEntries, func(ctx context.Context) ([]models.Entry, error) {
		return q.api.ListEntries(ctx, client.EntryQuery{})
	})
}

// Snapshot is a consistent view of the three stores with their derived indexes.
type Snapshot struct {
	Categories normstore.Store[models.Category]
	Goals      normstore.Store[models.Goal]
	Entries    normstore.Store[models.Entry]
	Indexes    *indexes.Indexes
}

// Snapshot loads all stores and rebuilds the indexes.
func (q *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	cats, err := q.Categories(ctx)
	if err != nil {
		return nil, err
	}
	goals, err := q.Goals(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := q.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Categories: cats,
		Goals:      goals,
		Entries:    entries,
		Indexes:    indexes.Build(cats, goals, entries),
	}, nil
}

// Dashboard computes the summary for day from the cached snapshot.
func (q *Client) Dashboard(ctx context.Context, day time.Time) (dashboard.Summary, error) {
	snap, err := q.Snapshot(ctx)
	if err != nil {
		return dashboard.Summary{}, err
	}
	return dashboard.Summarize(day, snap.Categories, snap.Goals, snap.Entries, snap.Indexes), nil
}

// LogEntry records an entry. The id is assigned before the first attempt so a
// retried request cannot create a duplicate.
func (q *Client) LogEntry(ctx context.Context, e models.Entry) (*models.Entry, error) {
	if e.ID == "" {
		e.ID = models.NewID()
	}
	return create(ctx, q, func(ctx context.Context) (*models.Entry, error) {
		return q.api.CreateEntry(ctx, e)
	}, func(ctx context.Context) (*models.Entry, error) {
		return q.api.GetEntry(ctx, e.ID)
	}, models.ResourceEntries)
}

// LogEntryByName records an entry against the category with the given name
// (case-insensitive).
func (q *Client) LogEntryByName(ctx context.Context, category string, e models.Entry) (*models.Entry, error) {
	snap, err := q.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	id, ok := snap.Indexes.CategoryIDByName(category)
	if !ok {
		return nil, fmt.Errorf("query: no category named %q", category)
	}
	e.CategoryID = id
	return q.LogEntry(ctx, e)
}

// DeleteEntry removes an entry.
func (q *Client) DeleteEntry(ctx context.Context, id string) error {
	return remove(ctx, q, func(ctx context.Context) error {
		return q.api.DeleteEntry(ctx, id)
	}, models.ResourceEntries)
}

// CreateCategory creates a category.
func (q *Client) CreateCategory(ctx context.Context, c models.Category) (*models.Category, error) {
	if c.ID == "" {
		c.ID = models.NewID()
	}
	return create(ctx, q, func(ctx context.Context) (*models.Category, error) {
		return q.api.CreateCategory(ctx, c)
	}, func(ctx context.Context) (*models.Category, error) {
		return q.api.GetCategory(ctx, c.ID)
	}, models.ResourceCategories)
}

// DeleteCategory removes a category; its goals and entries go with it.
func (q *Client) DeleteCategory(ctx context.Context, id string) error {
	return remove(ctx, q, func(ctx context.Context) error {
		return q.api.DeleteCategory(ctx, id)
	}, models.ResourceCategories, models.ResourceGoals, models.ResourceEntries)
}

// CreateGoal creates a goal.
func (q *Client) CreateGoal(ctx context.Context, g models.Goal) (*models.Goal, error) {
	if g.ID == "" {
		g.ID = models.NewID()
	}
	return create(ctx, q, func(ctx context.Context) (*models.Goal, error) {
		return q.api.CreateGoal(ctx, g)
	}, func(ctx context.Context) (*models.Goal, error) {
		return q.api.GetGoal(ctx, g.ID)
	}, models.ResourceGoals)
}

// create posts a record with retry. A 409 on a retried attempt means an
// earlier attempt committed before its response was lost, so the stored
// record is fetched by id and returned instead. If that record does not
// exist the 409 stands.
func create[T any](
	ctx context.Context,
	q *Client,
	post func(context.Context) (T, error),
	get func(context.Context) (T, error),
	resources ...string,
) (T, error) {
	attempts := 0
	out, err := retry.Do(ctx, q.policy, func(ctx context.Context) (T, error) {
		attempts++
		v, err := post(ctx)
		if attempts == 1 || !client.IsStatus(err, http.StatusConflict) {
			return v, err
		}
		stored, gerr := get(ctx)
		if client.IsStatus(gerr, http.StatusNotFound) {
			return v, err
		}
		if gerr == nil {
			q.log.Debug("query: retried create already committed", slog.Int("attempts", attempts))
		}
		return stored, gerr
	})
	q.afterMutation(err, attempts, resources)
	return out, err
}

// remove deletes a record with retry. A 404 on a retried attempt means an
// earlier attempt already deleted it.
func remove(ctx context.Context, q *Client, del func(context.Context) error, resources ...string) error {
	attempts := 0
	_, err := retry.Do(ctx, q.policy, func(ctx context.Context) (struct{}, error) {
		attempts++
		err := del(ctx)
		if attempts > 1 && client.IsStatus(err, http.StatusNotFound) {
			q.log.Debug("query: retried delete already committed", slog.Int("attempts", attempts))
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	q.afterMutation(err, attempts, resources)
	return err
}

// afterMutation drops the affected tags after a successful mutation, and after
// a failed one that was retried, since an earlier attempt may have committed.
func (q *Client) afterMutation(err error, attempts int, resources []string) {
	if err == nil || attempts > 1 {
		q.invalidate(resources...)
	}
}

// Watch streams the server's change events and invalidates the tags they carry.
// It returns when ctx is done or the stream fails.
func (q *Client) Watch(ctx context.Context) error {
	return q.api.Events(ctx, func(ev client.Event) error {
		var ch client.ChangeEvent
		if err := json.Unmarshal(ev.Data, &ch); err != nil || len(ch.Tags) == 0 {
			return nil
		}
		for _, tag := range ch.Tags {
			n := q.cache.InvalidateByTag(tag)
			q.log.Debug("query: invalidated by event",
				slog.String("event", ev.Type), slog.String("tag", tag), slog.Int("entries", n))
		}
		if q.onChange != nil {
			q.onChange(ev.Type)
		}
		return nil
	})
}

func (q *Client) invalidate(resources ...string) {
	for _, r := range resources {
		q.cache.InvalidateByTag(q.Key(r))
	}
}

// fetch returns the cached store for resource or loads it. With coalescing,
// concurrent misses share one load that runs detached from any single caller,
// and each caller stops waiting when its own ctx is done. A load that races
// with an invalidation of its tag is returned but not cached.
func fetch[T normstore.Entity](
	ctx context.Context,
	q *Client,
	resource string,
	load func(context.Context) ([]T, error),
) (normstore.Store[T], error) {
	var zero normstore.Store[T]
	key := q.Key(resource)
	if s, ok := querycache.GetAs[normstore.Store[T]](q.cache, key); ok {
		return s, nil
	}

	get := func(ctx context.Context) (any, error) {
		gen := q.cache.Generation(key)
		items, err := retry.Do(ctx, q.policy, load)
		if err != nil {
			return nil, err
		}
		s, err := normstore.FromSlice(items)
		if err != nil {
			return nil, fmt.Errorf("query: %s: %w", resource, err)
		}
		q.cache.SetIfGeneration(gen, key, s, q.ttl, key)
		return s, nil
	}

	if !q.coalesce {
		v, err := get(ctx)
		if err != nil {
			return zero, err
		}
		return v.(normstore.Store[T]), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := q.group.DoChan(key, func() (any, error) { return get(shared) })
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(normstore.Store[T]), nil
	}
}
