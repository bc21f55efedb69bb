package query

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vigor/internal/api"
	"github.com/starford/vigor/internal/client"
	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/retry"
	"github.com/starford/vigor/internal/sse"
	"github.com/starford/vigor/internal/testutil"
	"github.com/starford/vigor/internal/wellness"
)

type env struct {
	srv    *httptest.Server
	svc    *wellness.Service
	broker *sse.Broker
	hits   sync.Map // path -> *atomic.Int64
	gate   chan struct{}
}

func (e *env) count(path string) int64 {
	v, ok := e.hits.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// newEnv starts an API server. A non-nil gate holds every non-streaming GET until it is closed.
func newEnv(t *testing.T, gate ...chan struct{}) *env {
	t.Helper()
	e := &env{broker: sse.NewBroker(time.Hour)}
	if len(gate) > 0 {
		e.gate = gate[0]
	}
	e.svc = wellness.NewService(testutil.TestDB(t), e.broker, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Method == http.MethodGet {
				v, _ := e.hits.LoadOrStore(req.URL.Path, new(atomic.Int64))
				v.(*atomic.Int64).Add(1)
				if e.gate != nil && !strings.HasSuffix(req.URL.Path, "/events") {
					<-e.gate
				}
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Mount("/api", api.NewRouter(e.svc, api.RouterConfig{Events: e.broker}))
	e.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		e.broker.Close()
		e.srv.Close()
	})
	return e
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestReadsAreCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.svc.CreateCategory(ctx, "local", models.Category{Name: "Faith", Enabled: true})
	require.NoError(t, err)

	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()))

	first, err := q.Categories(ctx)
	require.NoError(t, err)
	second, err := q.Categories(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, first.IDs(), second.IDs())
	assert.EqualValues(t, 1, e.count("/api/categories"))

	stats := q.Cache().Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, []string{"categories:local"}, q.Cache().Tags())
}

func TestMutationInvalidatesTag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()))

	cat, err := q.CreateCategory(ctx, models.Category{Name: "Work", Enabled: true})
	require.NoError(t, err)

	_, err = q.Categories(ctx)
	require.NoError(t, err)
	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, entries.Len())

	logged, err := q.LogEntry(ctx, models.Entry{CategoryID: cat.ID, Value: decimal.NewFromInt(2)})
	require.NoError(t, err)

	// Categories stay cached, entries are refetched.
	_, ok := q.Cache().Get(q.Key(models.ResourceCategories))
	assert.True(t, ok)
	entries, err = q.Entries(ctx)
	require.NoError(t, err)
	assert.True(t, entries.Has(logged.ID))
	assert.EqualValues(t, 2, e.count("/api/entries"))

	require.NoError(t, q.DeleteCategory(ctx, cat.ID))
	assert.Empty(t, q.Cache().Tags())
}

func TestSnapshotAndDashboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()))

	cat, err := q.CreateCategory(ctx, models.Category{Name: "Faith", Enabled: true})
	require.NoError(t, err)
	_, err = q.CreateGoal(ctx, models.Goal{
		CategoryID: cat.ID, MetricID: "minutes", Target: decimal.NewFromInt(30), Period: models.PeriodDaily,
	})
	require.NoError(t, err)

	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err = q.LogEntryByName(ctx, "FAITH", models.Entry{MetricID: "minutes", Value: decimal.NewFromInt(40), Date: day})
	require.NoError(t, err)

	_, err = q.LogEntryByName(ctx, "nope", models.Entry{Value: decimal.NewFromInt(1)})
	assert.Error(t, err)

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Indexes.EntriesOn(day), 1)
	gid, ok := snap.Indexes.GoalFor(cat.ID, "minutes")
	assert.True(t, ok)
	assert.NotEmpty(t, gid)

	sum, err := q.Dashboard(ctx, day)
	require.NoError(t, err)
	require.Len(t, sum.Categories, 1)
	require.Len(t, sum.Categories[0].Goals, 1)
	assert.True(t, sum.Categories[0].Goals[0].Met)
}

// flakyTransport fails the first n round trips with a refused connection.
type flakyTransport struct {
	n     atomic.Int64
	calls atomic.Int64
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	if f.n.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRetriesNetworkErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ft := &flakyTransport{}
	ft.n.Store(2)
	api := client.New(e.srv.URL+"/api", client.WithHTTPClient(&http.Client{Transport: ft}))
	q := New(api, WithRetryPolicy(fastPolicy()))

	goals, err := q.Goals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, goals.Len())
	assert.EqualValues(t, 3, ft.calls.Load())
}

func TestDoesNotRetryStatusErrors(t *testing.T) {
	e := newEnv(t)
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()))

	_, err := q.LogEntry(context.Background(), models.Entry{CategoryID: "missing", Value: decimal.NewFromInt(1)})
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestCoalescedFetch(t *testing.T) {
	gate := make(chan struct{})
	e := newEnv(t, gate)
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()), WithCoalescing(true))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Categories(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return e.count("/api/categories") == 1 }, time.Second, 5*time.Millisecond)
	// Let the other callers join the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, e.count("/api/categories"))
}

func TestWatchInvalidatesOnServerChange(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()),
		WithOnChange(func(eventType string) { changed <- eventType }))
	cats, err := q.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, cats.Len())

	done := make(chan error, 1)
	go func() { done <- q.Watch(ctx) }()
	require.Eventually(t, func() bool { return e.broker.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// A change made by someone else on the server.
	_, err = e.svc.CreateCategory(context.Background(), "local", models.Category{Name: "Rest", Enabled: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := q.Cache().Get(q.Key(models.ResourceCategories))
		return !ok
	}, time.Second, 5*time.Millisecond)

	cats, err = q.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cats.Len())

	select {
	case typ := <-changed:
		assert.Equal(t, "categories.created", typ)
	case <-time.After(time.Second):
		t.Fatal("change hook not called")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// lossyTransport delivers matching requests to the server and then drops the
// response, as if the connection reset after the server committed.
type lossyTransport struct {
	lose  func(req *http.Request, n int64) bool
	mu    sync.Mutex
	calls map[string]int64
}

func newLossyTransport(lose func(req *http.Request, n int64) bool) *lossyTransport {
	return &lossyTransport{lose: lose, calls: map[string]int64{}}
}

func (l *lossyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	k := req.Method + " " + req.URL.Path
	l.mu.Lock()
	l.calls[k]++
	n := l.calls[k]
	l.mu.Unlock()

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil || !l.lose(req, n) {
		return resp, err
	}
	resp.Body.Close()
	return nil, &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
}

func (l *lossyTransport) count(method, path string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method+" "+path]
}

func TestRetriedCreateAfterLostResponse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cat, err := e.svc.CreateCategory(ctx, "local", models.Category{Name: "Fitness", Enabled: true})
	require.NoError(t, err)

	lt := newLossyTransport(func(req *http.Request, n int64) bool {
		return req.Method == http.MethodPost && n == 1
	})
	q := New(client.New(e.srv.URL+"/api", client.WithHTTPClient(&http.Client{Transport: lt})),
		WithRetryPolicy(fastPolicy()))

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, entries.Len())

	logged, err := q.LogEntry(ctx, models.Entry{CategoryID: cat.ID, Value: decimal.NewFromInt(30)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, lt.count(http.MethodPost, "/api/entries"))
	assert.True(t, logged.Value.Equal(decimal.NewFromInt(30)))

	stored, err := e.svc.ListEntries(ctx, "local", datastore.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, logged.ID, stored[0].ID)

	_, ok := q.Cache().Get(q.Key(models.ResourceEntries))
	assert.False(t, ok, "entries tag still cached after retried create")

	created, err := q.CreateCategory(ctx, models.Category{Name: "Rest", Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "Rest", created.Name)
	assert.EqualValues(t, 2, lt.count(http.MethodPost, "/api/categories"))
}

func TestRetriedDeleteAfterLostResponse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cat, err := e.svc.CreateCategory(ctx, "local", models.Category{Name: "Fitness", Enabled: true})
	require.NoError(t, err)
	entry, err := e.svc.CreateEntry(ctx, "local", models.Entry{CategoryID: cat.ID, Value: decimal.NewFromInt(1)})
	require.NoError(t, err)

	lt := newLossyTransport(func(req *http.Request, n int64) bool {
		return req.Method == http.MethodDelete && n == 1
	})
	q := New(client.New(e.srv.URL+"/api", client.WithHTTPClient(&http.Client{Transport: lt})),
		WithRetryPolicy(fastPolicy()))

	require.NoError(t, q.DeleteEntry(ctx, entry.ID))
	assert.EqualValues(t, 2, lt.count(http.MethodDelete, "/api/entries/"+entry.ID))

	// A first-attempt 404 is still an error.
	err = q.DeleteEntry(ctx, "missing")
	assert.True(t, client.IsStatus(err, http.StatusNotFound), "got %v", err)
}

func TestFailedRetriedMutationInvalidates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cat, err := e.svc.CreateCategory(ctx, "local", models.Category{Name: "Fitness", Enabled: true})
	require.NoError(t, err)

	// Every create response is lost, so the budget runs out on network errors.
	lt := newLossyTransport(func(req *http.Request, _ int64) bool {
		return req.Method == http.MethodPost
	})
	q := New(client.New(e.srv.URL+"/api", client.WithHTTPClient(&http.Client{Transport: lt})),
		WithRetryPolicy(retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond}))

	_, err = q.Entries(ctx)
	require.NoError(t, err)

	_, err = q.LogEntry(ctx, models.Entry{CategoryID: cat.ID, Value: decimal.NewFromInt(5)})
	require.Error(t, err)
	assert.True(t, retry.IsNetworkError(err))

	_, ok := q.Cache().Get(q.Key(models.ResourceEntries))
	assert.False(t, ok, "entries tag still cached after a retried create that may have committed")
}

func TestCoalescedFetchSurvivesFirstCallerCancel(t *testing.T) {
	gate := make(chan struct{})
	e := newEnv(t, gate)
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()), WithCoalescing(true))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := q.Categories(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return e.count("/api/categories") == 1 }, time.Second, 5*time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := q.Categories(context.Background())
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	assert.NoError(t, <-secondErr)
	assert.EqualValues(t, 1, e.count("/api/categories"))
}

func TestFetchRacingInvalidationIsNotCached(t *testing.T) {
	gate := make(chan struct{})
	e := newEnv(t, gate)
	q := New(client.New(e.srv.URL+"/api"), WithRetryPolicy(fastPolicy()))

	done := make(chan error, 1)
	go func() {
		_, err := q.Categories(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return e.count("/api/categories") == 1 }, time.Second, 5*time.Millisecond)

	// A change event arrives while the list is still loading.
	q.Cache().InvalidateByTag(q.Key(models.ResourceCategories))

	close(gate)
	require.NoError(t, <-done)

	_, ok := q.Cache().Get(q.Key(models.ResourceCategories))
	assert.False(t, ok, "load that raced an invalidation was cached")

	_, err := q.Categories(context.Background())
	require.NoError(t, err)
	_, ok = q.Cache().Get(q.Key(models.ResourceCategories))
	assert.True(t, ok)
}
