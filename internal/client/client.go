// Package client is an HTTP client for the Vigor API. It performs exactly one
// request per call; retries and caching live in package query.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/vigor/internal/dashboard"
	"github.com/starford/vigor/internal/models"
)

// DefaultTimeout bounds non-streaming requests when neither WithTimeout nor
// WithHTTPClient is given.
const DefaultTimeout = 30 * time.Second

// UserHeader names the request header that selects the acting user.
const UserHeader = "X-Vigor-User"

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client is the HTTP wrapper around the Vigor REST API.
type Client struct {
	baseURL    string
	token      string
	user       string
	httpClient *http.Client
	timeout    time.Duration
	streamer   *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the Bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUser sets the acting user.
func WithUser(user string) Option {
	return func(c *Client) { c.user = user }
}

// WithHTTPClient replaces the underlying HTTP client. hc itself is never
// modified; WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the whole-request timeout of non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the API at baseURL (e.g. "http://localhost:8080/api").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	// Event streams are long-lived and must not inherit the request timeout.
	c.streamer = &http.Client{Transport: c.httpClient.Transport}
	return c
}

// User returns the acting user.
func (c *Client) User() string {
	if c.user == "" {
		return "local"
	}
	return c.user
}

// --- Categories ---

// ListCategories returns the user's categories by position.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var resp struct {
		Categories []models.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// CreateCategory creates a category. The server assigns an id when cat.ID is empty.
func (c *Client) CreateCategory(ctx context.Context, cat models.Category) (*models.Category, error) {
	var out models.Category
	if err := c.do(ctx, http.MethodPost, "/categories", cat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCategory returns one category.
func (c *Client) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var out models.Category
	if err := c.do(ctx, http.MethodGet, "/categories/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCategory replaces a category.
func (c *Client) UpdateCategory(ctx context.Context, cat models.Category) (*models.Category, error) {
	var out models.Category
	if err := c.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(cat.ID), cat, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCategory removes a category with its goals and entries.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil)
}

// --- Goals ---

// ListGoals returns the user's goals.
func (c *Client) ListGoals(ctx context.Context) ([]models.Goal, error) {
	var resp struct {
		Goals []models.Goal `json:"goals"`
	}
	if err := c.do(ctx, http.MethodGet, "/goals", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Goals, nil
}

// CreateGoal creates a goal.
func (c *Client) CreateGoal(ctx context.Context, g models.Goal) (*models.Goal, error) {
	var out models.Goal
	if err := c.do(ctx, http.MethodPost, "/goals", g, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGoal returns one goal.
func (c *Client) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	var out models.Goal
	if err := c.do(ctx, http.MethodGet, "/goals/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGoal removes a goal.
func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/goals/"+url.PathEscape(id), nil, nil)
}

// --- Entries ---

// EntryQuery filters ListEntries. Day values use models.DateLayout; Date selects a single day.
type EntryQuery struct {
	Date       string
	From       string
	To         string
	CategoryID string
}

func (q EntryQuery) encode() string {
	v := url.Values{}
	for k, s := range map[string]string{"date": q.Date, "from": q.From, "to": q.To, "category_id": q.CategoryID} {
		if s != "" {
			v.Set(k, s)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// ListEntries returns the user's entries matching q.
func (c *Client) ListEntries(ctx context.Context, q EntryQuery) ([]models.Entry, error) {
	var resp struct {
		Entries []models.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/entries"+q.encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// CreateEntry logs an entry. A zero date means now on the server.
func (c *Client) CreateEntry(ctx context.Context, e models.Entry) (*models.Entry, error) {
	var out models.Entry
	if err := c.do(ctx, http.MethodPost, "/entries", entryBody(e), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEntry returns one entry.
func (c *Client) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	var out models.Entry
	if err := c.do(ctx, http.MethodGet, "/entries/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEntry removes an entry.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(id), nil, nil)
}

func entryBody(e models.Entry) map[string]any {
	body := map[string]any{
		"category_id": e.CategoryID,
		"value":       e.Value,
	}
	if e.ID != "" {
		body["id"] = e.ID
	}
	if e.MetricID != "" {
		body["metric_id"] = e.MetricID
	}
	if !e.Date.IsZero() {
		body["date"] = e.Date.Format(time.RFC3339)
	}
	if e.Note != "" {
		body["note"] = e.Note
	}
	return body
}

// --- Dashboard ---

// Dashboard returns the progress summary for day.
func (c *Client) Dashboard(ctx context.Context, day time.Time) (*dashboard.Summary, error) {
	var out dashboard.Summary
	path := "/dashboard?date=" + url.QueryEscape(day.Format(models.DateLayout))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set(UserHeader, c.user)
	}
	return req, nil
}

// do performs one request. Transport failures are returned wrapped but otherwise
// unchanged so callers can classify them.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	c.log.Debug("api request", slog.String("method", method), slog.String("path", path))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
