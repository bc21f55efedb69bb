package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/vigor/internal/mcpserver"
	"github.com/starford/vigor/internal/wellness"
)

// RunMCP serves the MCP tools over stdio against the local database.
// Logs go to stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stderr, opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	db, store, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := wellness.NewService(db, nil, app.logger)
	imp := newImporter(cfg, svc, db, store, app.logger)

	srv := mcpserver.New(svc,
		mcpserver.WithUser(cfg.Inbox.DefaultUser),
		mcpserver.WithInbox(store, imp),
	)
	app.logger.Info("MCP server starting", slog.String("sqlite_path", cfg.SQLite.Path))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
