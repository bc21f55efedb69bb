// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Vigor tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/starford/vigor/internal/apperr"
	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/importer"
	"github.com/starford/vigor/internal/models"
	"github.com/starford/vigor/internal/storage"
	"github.com/starford/vigor/internal/wellness"
)

// EntryFormatURI names the entry format contract resource.
const EntryFormatURI = "vigor://entry-format"

// Syncer imports pending inbox batches.
type Syncer interface {
	Sync(ctx context.Context) (importer.Report, error)
}

// Server wraps the MCP server with Vigor tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *wellness.Service
	inbox storage.Provider
	sync  Syncer
	user  string
	now   func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithUser sets the user tools act for when a call does not name one.
func WithUser(user string) Option {
	return func(s *Server) { s.user = user }
}

// WithInbox enables the import_batch tool. When sync is non-nil the batch
// is imported right away instead of waiting for the inbox watcher.
func WithInbox(inbox storage.Provider, sync Syncer) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.sync = sync
	}
}

// New creates a new MCP server with all Vigor tools registered.
func New(svc *wellness.Service, opts ...Option) *Server {
	s := &Server{svc: svc, user: "local", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"Vigor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	userArg := mcp.WithString("user", mcp.Description("User id (defaults to the configured user)"))

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List the user's tracking categories (e.g. faith, fitness) in display order."),
		userArg,
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("log_entry",
		mcp.WithDescription("Record an activity entry. Read the contract first via the "+
			"get_entry_format tool or the vigor://entry-format resource."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category id or name")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("Non-negative amount, e.g. minutes or pages")),
		mcp.WithString("metric", mcp.Description("Metric the value counts toward, e.g. minutes")),
		mcp.WithString("date", mcp.Description("YYYY-MM-DD or RFC 3339 timestamp (defaults to now)")),
		mcp.WithString("note", mcp.Description("Optional free-text note")),
		userArg,
	), s.logEntry)

	s.mcp.AddTool(mcp.NewTool("get_dashboard",
		mcp.WithDescription("Summarize a day: entries and totals per category plus goal progress."),
		mcp.WithString("date", mcp.Description("Day to summarize, YYYY-MM-DD (defaults to today)")),
		userArg,
	), s.getDashboard)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List entries, optionally filtered by day range and category."),
		mcp.WithString("date", mcp.Description("Single day, YYYY-MM-DD (overrides from/to)")),
		mcp.WithString("from", mcp.Description("First day, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Last day, YYYY-MM-DD")),
		mcp.WithString("category", mcp.Description("Category id or name")),
		userArg,
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("get_entry_format",
		mcp.WithDescription("Returns the Vigor entry and import batch format contract. "+
			"Call this before logging entries or importing batches."),
	), s.getEntryFormat)

	if s.inbox != nil {
		s.mcp.AddTool(mcp.NewTool("import_batch",
			mcp.WithDescription("Import a YAML batch of categories, goals and entries. "+
				"Content MUST follow the batch format in the entry format contract."),
			mcp.WithString("content", mcp.Required(), mcp.Description("YAML batch document")),
			mcp.WithString("filename", mcp.Description("Optional file name for the inbox (.yaml)")),
		), s.importBatch)
	}

	s.mcp.AddResource(
		mcp.NewResource(EntryFormatURI, "Entry Format Contract",
			mcp.WithResourceDescription("How entries are logged and how import batches are structured."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) userOf(req mcp.CallToolRequest) string {
	if u := strings.TrimSpace(req.GetString("user", "")); u != "" {
		return u
	}
	return s.user
}

func (s *Server) listCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.svc.ListCategories(ctx, s.userOf(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cats)
}

func (s *Server) logEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := s.userOf(req)
	ref, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := numberArg(req, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	categoryID, err := s.resolveCategory(ctx, user, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e := models.Entry{
		CategoryID: categoryID,
		MetricID:   req.GetString("metric", ""),
		Value:      value,
		Note:       req.GetString("note", ""),
	}
	if d := req.GetString("date", ""); d != "" {
		if e.Date, err = models.ParseDate(d); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	created, err := s.svc.CreateEntry(ctx, user, e)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(created)
}

func (s *Server) getDashboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day := s.now()
	if d := req.GetString("date", ""); d != "" {
		parsed, err := time.Parse(models.DateLayout, d)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date %q: want YYYY-MM-DD", d)), nil
		}
		day = parsed
	}
	sum, err := s.svc.Dashboard(ctx, s.userOf(req), day)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sum)
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user := s.userOf(req)
	f := datastore.EntryFilter{
		From: req.GetString("from", ""),
		To:   req.GetString("to", ""),
	}
	if d := req.GetString("date", ""); d != "" {
		f.From, f.To = d, d
	}
	for _, day := range []string{f.From, f.To} {
		if day == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, day); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date %q: want YYYY-MM-DD", day)), nil
		}
	}
	if ref := req.GetString("category", ""); ref != "" {
		id, err := s.resolveCategory(ctx, user, ref)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.CategoryID = id
	}

	entries, err := s.svc.ListEntries(ctx, user, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries)
}

func (s *Server) getEntryFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readEntryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      EntryFormatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}

// resolveCategory accepts a category id or a case-insensitive name.
func (s *Server) resolveCategory(ctx context.Context, user, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if _, err := s.svc.GetCategory(ctx, user, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	cats, err := s.svc.ListCategories(ctx, user)
	if err != nil {
		return "", err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Name, ref) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", ref)
}

// numberArg reads a numeric argument sent either as a JSON number or a string.
func numberArg(req mcp.CallToolRequest, key string) (decimal.Decimal, error) {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("required argument %q not found", key)
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, fmt.Errorf("argument %q: %q is not a number", key, v)
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("argument %q must be a number", key)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
