package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/api"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/retry"
	"github.com/starford/vigor/internal/sse"
	"github.com/starford/vigor/internal/testutil"
	"github.com/starford/vigor/internal/wellness"
)

func testServer(t *testing.T, token string) (*httptest.Server, *sse.Broker) {
	t.Helper()
	broker := sse.NewBroker(time.Hour)
	svc := wellness.NewService(testutil.TestDB(t), broker, nil)
	r := chi.NewRouter()
	r.Mount("/api", api.NewRouter(svc, api.RouterConfig{AuthEnabled: token != "", Token: token, Events: broker}))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		broker.Close()
		srv.Close()
	})
	return srv, broker
}

func TestRoundTrip(t *testing.T) {
	srv, _ := testServer(t, "tok")
	c := New(srv.URL+"/api", WithToken("tok"), WithUser("alice"))
	ctx := context.Background()

	cat, err := c.CreateCategory(ctx, models.Category{Name: "Faith", Enabled: true})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if cat.UserID != "alice" {
		t.Errorf("user = %q, want alice", cat.UserID)
	}

	if _, err := c.CreateGoal(ctx, models.Goal{
		CategoryID: cat.ID, MetricID: "minutes", Target: decimal.NewFromInt(30), Period: models.PeriodDaily,
	}); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	day := time.Date(2024, 3, 10, 7, 30, 0, 0, time.FixedZone("", 2*3600))
	e, err := c.CreateEntry(ctx, models.Entry{CategoryID: cat.ID, MetricID: "minutes", Value: decimal.NewFromInt(30), Date: day})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if e.DateKey() != "2024-03-10" {
		t.Errorf("day = %q", e.DateKey())
	}

	entries, err := c.ListEntries(ctx, EntryQuery{Date: "2024-03-10"})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	sum, err := c.Dashboard(ctx, day)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(sum.Categories) != 1 || len(sum.Categories[0].Goals) != 1 || !sum.Categories[0].Goals[0].Met {
		t.Errorf("unexpected dashboard: %+v", sum)
	}

	got, err := c.GetEntry(ctx, e.ID)
	if err != nil || got.ID != e.ID {
		t.Fatalf("GetEntry = %+v, %v", got, err)
	}
	if gc, err := c.GetCategory(ctx, cat.ID); err != nil || gc.Name != "Faith" {
		t.Fatalf("GetCategory = %+v, %v", gc, err)
	}

	if err := c.DeleteEntry(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := c.GetEntry(ctx, e.ID); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("GetEntry after delete = %v, want 404", err)
	}
	cats, err := c.ListCategories(ctx)
	if err != nil || len(cats) != 1 {
		t.Fatalf("ListCategories = %v, %v", cats, err)
	}
}

func TestStatusError(t *testing.T) {
	srv, _ := testServer(t, "tok")
	ctx := context.Background()

	_, err := New(srv.URL+"/api").ListCategories(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got %v, want 401 StatusError", err)
	}
	if se.Message != "unauthorized" {
		t.Errorf("message = %q", se.Message)
	}
	if retry.IsNetworkError(err) {
		t.Error("status errors must not be classified as network errors")
	}

	err = New(srv.URL+"/api", WithToken("tok")).DeleteGoal(ctx, "missing")
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("got %v, want 404 StatusError", err)
	}
}

func TestTimeoutAppliesToCopy(t *testing.T) {
	hc := &http.Client{Timeout: time.Minute}
	c := New("http://example.invalid/api", WithHTTPClient(hc), WithTimeout(2*time.Second))
	if hc.Timeout != time.Minute {
		t.Errorf("caller's client modified: timeout = %v", hc.Timeout)
	}
	if c.httpClient == hc || c.httpClient.Timeout != 2*time.Second {
		t.Errorf("request timeout = %v, want 2s on a copy", c.httpClient.Timeout)
	}

	c = New("http://example.invalid/api", WithTimeout(time.Second), WithHTTPClient(nil))
	if c.httpClient.Timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", c.httpClient.Timeout)
	}

	if New("http://example.invalid/api", WithHTTPClient(hc)).httpClient.Timeout != time.Minute {
		t.Error("caller's timeout not kept without WithTimeout")
	}
	if New("http://example.invalid/api").httpClient.Timeout != DefaultTimeout {
		t.Error("default timeout not applied")
	}
}

func TestTransportErrorIsNetworkError(t *testing.T) {
	// Grab a free port and close it so the connection is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New("http://" + addr + "/api").ListGoals(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.IsNetworkError(err) {
		t.Errorf("connection refused not classified as network error: %v", err)
	}
}

func TestEvents(t *testing.T) {
	srv, broker := testServer(t, "")
	c := New(srv.URL+"/api", WithUser("bob"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Event, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Events(ctx, func(ev Event) error {
			got <- ev
			return nil
		})
	}()

	// Wait for the subscription to register.
	deadline := time.Now().Add(time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	broker.Notify(models.Change{Resource: models.ResourceEntries, Kind: models.ChangeCreated, UserID: "bob", ID: "e1"})

	select {
	case ev := <-got:
		if ev.Type != "entries.created" {
			t.Errorf("type = %q", ev.Type)
		}
		var ch ChangeEvent
		if err := json.Unmarshal(ev.Data, &ch); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(ch.Tags) != 1 || ch.Tags[0] != "entries:bob" {
			t.Errorf("tags = %v", ch.Tags)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Events returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Events did not return after cancel")
	}
}

func TestEventsStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: a\ndata: {}\n\nevent: b\ndata: {}\n\n"))
	}))
	defer srv.Close()

	var types []string
	err := New(srv.URL).Events(context.Background(), func(ev Event) error {
		types = append(types, ev.Type)
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("got %v, want stop", err)
	}
	if len(types) != 1 || types[0] != "a" {
		t.Errorf("types = %v", types)
	}
}
