package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notegraph/internal"
	"github.com/starford/notegraph/internal/importer"
	"github.com/starford/notegraph/internal/models"
	pkgconfig "github.com/starford/notegraph/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	return cfg, nil
}

// openCore loads the config and opens the index for one-shot commands.
// Logs go to stderr so stdout carries only the command output.
func openCore(cmd *cli.Command) (*internal.Core, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(cfg.App.LogLevel, os.Stderr)
	core, err := internal.OpenCore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return core, logger, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithLogger(internal.NewLogger(cfg.App.LogLevel, os.Stderr)),
		internal.WithVersion(version),
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func importNotes(ctx context.Context, cmd *cli.Command) error {
	core, _, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	var results []models.ImportResult
	if paths := cmd.Args().Slice(); len(paths) > 0 {
		entries := make([]importer.Entry, 0, len(paths))
		for _, p := range paths {
			entries = append(entries, importer.Entry{Path: p})
		}
		results = core.Service.Import(ctx, entries)
	} else {
		results, err = core.Service.ScanVault(ctx, cmd.Bool("prune"))
		if err != nil {
			return err
		}
	}
	return printJSON(map[string]any{
		"results": results,
		"summary": importer.Summarize(results),
	})
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	core, logger, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	if cmd.Bool("scan") {
		results, err := core.Service.ScanVault(ctx, true)
		if err != nil {
			return err
		}
		logger.Info("vault scanned", slog.Any("summary", importer.Summarize(results)))
	}
	res, err := core.Service.Reindex(ctx, cmd.Bool("full"))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func listRuns(ctx context.Context, cmd *cli.Command) error {
	core, _, err := openCore(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	runs, err := core.Service.Runs(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	last, err := core.Service.LastSuccessfulRun(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"runs": runs, "last_success": last})
}

func main() {
	cmd := &cli.Command{
		Name:    "notegraph",
		Usage:   "Wiki-link graph index over a Markdown vault",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (and the vault watcher when enabled)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "import",
				Usage:     "Import vault files; without arguments the whole vault is scanned",
				ArgsUsage: "[path.md ...]",
				Action:    importNotes,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "prune", Usage: "Delete notes whose file is gone (scan only)"},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Recompute links for changed notes",
				Action: reindex,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Treat every note as changed"},
					&cli.BoolFlag{Name: "scan", Usage: "Import the vault before reindexing"},
				},
			},
			{
				Name:   "runs",
				Usage:  "Show the index run ledger",
				Action: listRuns,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Number of runs"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
