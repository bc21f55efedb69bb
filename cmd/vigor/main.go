package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vigor/internal"
	"github.com/starford/vigor/internal/models"
	pkgconfig "github.com/starford/vigor/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if user := cmd.String("user"); user != "" {
		cfg.Client.User = user
		cfg.Inbox.DefaultUser = user
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithOutput(os.Stdout),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func dashboard(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	day := time.Now()
	if d := cmd.String("date"); d != "" {
		if day, err = time.Parse(models.DateLayout, d); err != nil {
			return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	if cmd.Bool("watch") {
		return internal.WatchDashboard(ctx, day, opts...)
	}
	return internal.PrintDashboard(ctx, day, opts...)
}

func logEntry(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: vigor log <category> <value>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.LogEntry(ctx, internal.EntryInput{
		Category: cmd.Args().Get(0),
		Value:    cmd.Args().Get(1),
		Metric:   cmd.String("metric"),
		Date:     cmd.String("date"),
		Note:     cmd.String("note"),
	}, opts...)
}

func dateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "date",
		Usage: "Day as YYYY-MM-DD (defaults to today)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "vigor",
		Usage:  "Personal wellness tracker with goals, a live dashboard, and a YAML import inbox",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Acting user (overrides client.user and inbox.default_user)",
				Sources: cli.EnvVars("VIGOR_USER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, SSE stream and inbox importer",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio against the local database",
				Action: mcp,
			},
			{
				Name:   "dashboard",
				Usage:  "Print the dashboard from a running server",
				Action: dashboard,
				Flags: []cli.Flag{
					dateFlag(),
					&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep refreshing on server changes"},
				},
			},
			{
				Name:      "log",
				Usage:     "Record an entry through a running server",
				ArgsUsage: "<category> <value>",
				Action:    logEntry,
				Flags: []cli.Flag{
					dateFlag(),
					&cli.StringFlag{Name: "metric", Aliases: []string{"m"}, Usage: "Metric, e.g. minutes"},
					&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Free-text note"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
