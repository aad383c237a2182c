// Package cmd provides the CLI commands for gallerystore.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fclairamb/gallerystore/internal/api"
	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/assets"
	"github.com/fclairamb/gallerystore/internal/catalog"
	"github.com/fclairamb/gallerystore/internal/config"
	"github.com/fclairamb/gallerystore/internal/gallery"
	"github.com/fclairamb/gallerystore/internal/history"
	"github.com/fclairamb/gallerystore/internal/metrics"
	"github.com/fclairamb/gallerystore/internal/version"
)

const (
	// Time duration constants for relative time formatting.
	hoursPerDay  = 24
	daysPerWeek  = 7
	daysPerMonth = 30

	defaultHistoryLimit = 20
)

// appConfig is the configuration loaded from GLS_ variables by the root command.
var appConfig = config.Default()

// verboseFlag is the shared verbose flag for all commands.
var verboseFlag = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Enable verbose logging",
}

// setupLogging configures the global logger based on the verbose flag and GLS_LOG_FORMAT.
func setupLogging(cmd *cli.Command) {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if appConfig.LogFormat == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))

	if level == slog.LevelDebug {
		slog.Debug("Verbose logging enabled")
	}

	slog.Debug("storage layout",
		"data_dir", resolveDataDir(cmd),
		"uploads_dir", resolveUploadsDir(cmd),
		"history", appConfig.History)
}

// beforeCommand is the Before hook shared by every subcommand.
func beforeCommand(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	setupLogging(cmd)
	return ctx, nil
}

// NewApp creates the CLI application.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "gallerystore",
		Usage:   "Serve and maintain an art gallery catalog and its uploaded assets",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Directory holding the catalog (data.json)",
			},
			&cli.StringFlag{
				Name:    "uploads-dir",
				Aliases: []string{"u"},
				Usage:   "Root directory of the gallery uploads",
			},
			verboseFlag,
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			// Load environment variables with GLS_ prefix
			cfg, err := config.Load()
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			appConfig = cfg

			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			statsCommand(),
			catalogCommand(),
			deleteFileCommand(),
			deleteGalleryCommand(),
			removeGalleryCommand(),
			reconcileCommand(),
			historyCommand(),
			remoteCommand(),
		},
	}
}

// serveCommand creates the serve subcommand for the HTTP server.
//
//nolint:funlen // CLI command with many flags
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port to listen on (GLS_PORT)",
			},
			&cli.FloatFlag{
				Name:  "rate-limit",
				Usage: "Mutating requests per second and client, 0 disables (GLS_RATE_LIMIT)",
			},
			&cli.IntFlag{
				Name:  "rate-burst",
				Usage: "Rate limiter burst (GLS_RATE_BURST)",
			},
			&cli.DurationFlag{
				Name:  "reconcile-interval",
				Usage: "Reconcile upload directories periodically, 0 disables (GLS_RECONCILE_INTERVAL)",
			},
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Delete orphaned upload directories during reconciliation (GLS_RECONCILE_PRUNE)",
			},
			&cli.DurationFlag{
				Name:  "min-age",
				Usage: "Leave unknown upload directories younger than this alone (GLS_RECONCILE_MIN_AGE)",
			},
			verboseFlag,
		},
		Before: beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := appConfig
			if cmd.IsSet("port") {
				cfg.Port = cmd.Int("port")
			}
			if cmd.IsSet("rate-limit") {
				cfg.RateLimit = cmd.Float("rate-limit")
			}
			if cmd.IsSet("rate-burst") {
				cfg.RateBurst = cmd.Int("rate-burst")
			}
			if cmd.IsSet("reconcile-interval") {
				cfg.ReconcileInterval = cmd.Duration("reconcile-interval")
			}
			if cmd.IsSet("prune") {
				cfg.ReconcilePrune = cmd.Bool("prune")
			}
			if cmd.IsSet("min-age") {
				cfg.ReconcileMinAge = cmd.Duration("min-age")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			appConfig = cfg

			deps, err := setupServices(cmd)
			if err != nil {
				return err
			}

			m := metrics.New(deps.manager, slog.Default())

			// The worker runs when periodic passes are wanted, and always
			// picks up directories left behind by a partial gallery removal.
			worker := gallery.NewWorker(deps.service, slog.Default(),
				gallery.WithInterval(cfg.ReconcileInterval),
				gallery.WithPrune(cfg.ReconcilePrune),
				gallery.WithReportHook(m.ObserveReconcile))
			deps.service.SetNotifier(worker)

			var hist api.HistoryReader
			if deps.recorder != nil {
				hist = deps.recorder
			}

			handler := api.NewHandler(deps.store, deps.manager, deps.service, hist, cfg.MaxUploadSize, slog.Default())
			server := api.NewServer(api.ServerConfig{
				Port:      cfg.Port,
				RateLimit: cfg.RateLimit,
				RateBurst: cfg.RateBurst,
			}, handler, m, slog.Default(), worker)

			slog.Info("starting gallery server",
				"port", cfg.Port,
				"data_dir", deps.store.Dir(),
				"uploads_dir", deps.manager.Root(),
				"history", deps.recorder != nil,
				"version", version.Version)

			return server.Start(ctx)
		},
	}
}

// statsCommand creates the stats subcommand.
func statsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show storage statistics of the uploads directory",
		Flags:  []cli.Flag{verboseFlag},
		Before: beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			manager := assets.NewManager(resolveUploadsDir(cmd), assets.WithLogger(slog.Default()))

			stats, err := manager.Stats(ctx)
			if err != nil {
				return fmt.Errorf("storage stats: %w", err)
			}

			displayStats(manager.Root(), stats)
			return nil
		},
	}
}

// catalogCommand creates the catalog subcommand.
//
//nolint:funlen // groups the catalog subcommands
func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect or replace the catalog",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the catalog as JSON",
				Flags:  []cli.Flag{verboseFlag},
				Before: beforeCommand,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store := catalog.NewStore(resolveDataDir(cmd), catalog.WithLogger(slog.Default()))
					result := store.Load(ctx)
					if result.Degraded() {
						slog.WarnContext(ctx, "catalog unreadable, showing the empty default", "error", result.Err)
					}
					return displayJSON(result.Document)
				},
			},
			{
				Name:   "summary",
				Usage:  "Show catalog counts",
				Flags:  []cli.Flag{verboseFlag},
				Before: beforeCommand,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store := catalog.NewStore(resolveDataDir(cmd), catalog.WithLogger(slog.Default()))
					displayCatalogSummary(store.Path(), store.Load(ctx))
					return nil
				},
			},
			{
				Name:      "import",
				Usage:     "Replace the catalog with a JSON document (use - for stdin)",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{verboseFlag},
				Before:    beforeCommand,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("%w: <file>", apperrors.ErrArgumentRequired)
					}

					data, err := readInput(cmd.Args().Get(0))
					if err != nil {
						return err
					}

					doc, err := catalog.ParseDocument(data)
					if err != nil {
						return err
					}

					deps, err := setupServices(cmd)
					if err != nil {
						return err
					}
					if err := deps.store.Save(ctx, doc); err != nil {
						return fmt.Errorf("save catalog: %w", err)
					}

					displayCatalogSummary(deps.store.Path(), catalog.LoadResult{Document: doc, Source: catalog.SourceFile})
					return nil
				},
			},
			{
				Name:      "restore",
				Usage:     "Replace the catalog with a previous revision (requires GLS_HISTORY)",
				ArgsUsage: "<revision>",
				Flags:     []cli.Flag{verboseFlag},
				Before:    beforeCommand,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("%w: <revision>", apperrors.ErrArgumentRequired)
					}

					deps, err := setupServices(cmd)
					if err != nil {
						return err
					}
					if deps.recorder == nil {
						return apperrors.ErrHistoryDisabled
					}

					revision := cmd.Args().Get(0)
					data, err := deps.recorder.Revision(ctx, deps.store.Path(), revision)
					if err != nil {
						return fmt.Errorf("read revision: %w", err)
					}

					doc, err := catalog.ParseDocument(data)
					if err != nil {
						return fmt.Errorf("revision %s: %w", revision, err)
					}
					if err := deps.store.Save(ctx, doc); err != nil {
						return fmt.Errorf("save catalog: %w", err)
					}

					slog.InfoContext(ctx, "catalog restored", "revision", revision)
					return nil
				},
			},
		},
	}
}

// deleteFileCommand creates the delete-file subcommand.
func deleteFileCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-file",
		Usage:     "Delete one uploaded file",
		ArgsUsage: "<gallery_id> <gallery_name> <file_name>",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 3 {
				return fmt.Errorf("%w: <gallery_id> <gallery_name> <file_name>", apperrors.ErrArgumentRequired)
			}

			manager := assets.NewManager(resolveUploadsDir(cmd), assets.WithLogger(slog.Default()))
			if err := manager.DeleteFile(ctx, cmd.Args().Get(0), cmd.Args().Get(1), cmd.Args().Get(2)); err != nil {
				return fmt.Errorf("delete file: %w", err)
			}

			slog.InfoContext(ctx, "file deleted")
			return nil
		},
	}
}

// deleteGalleryCommand creates the delete-gallery subcommand.
func deleteGalleryCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-gallery",
		Usage:     "Delete the upload directory of a gallery (the catalog is left untouched)",
		ArgsUsage: "<gallery_id> <gallery_name>",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return fmt.Errorf("%w: <gallery_id> <gallery_name>", apperrors.ErrArgumentRequired)
			}

			manager := assets.NewManager(resolveUploadsDir(cmd), assets.WithLogger(slog.Default()))
			if err := manager.DeleteGalleryDir(ctx, cmd.Args().Get(0), cmd.Args().Get(1)); err != nil {
				return fmt.Errorf("delete gallery: %w", err)
			}

			slog.InfoContext(ctx, "gallery directory deleted")
			return nil
		},
	}
}

// removeGalleryCommand creates the remove-gallery subcommand.
func removeGalleryCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove-gallery",
		Usage:     "Remove a gallery from the catalog together with its artworks and uploads",
		ArgsUsage: "<gallery_id>",
		Flags:     []cli.Flag{verboseFlag},
		Before:    beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 1 {
				return fmt.Errorf("%w: <gallery_id>", apperrors.ErrArgumentRequired)
			}

			deps, err := setupServices(cmd)
			if err != nil {
				return err
			}

			result, err := deps.service.RemoveGallery(ctx, cmd.Args().Get(0))
			if err != nil {
				return fmt.Errorf("remove gallery: %w", err)
			}

			displayRemoveResult(result)
			return nil
		},
	}
}

// reconcileCommand creates the reconcile subcommand.
func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Find upload directories that no catalog gallery refers to",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Delete the orphaned directories",
			},
			&cli.DurationFlag{
				Name:  "min-age",
				Usage: "Leave unknown upload directories younger than this alone (GLS_RECONCILE_MIN_AGE)",
			},
			verboseFlag,
		},
		Before: beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.IsSet("min-age") {
				appConfig.ReconcileMinAge = cmd.Duration("min-age")
				if err := appConfig.Validate(); err != nil {
					return err
				}
			}

			deps, err := setupServices(cmd)
			if err != nil {
				return err
			}

			report, err := deps.service.Reconcile(ctx, cmd.Bool("prune"))
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			displayReconcileReport(report)
			return nil
		},
	}
}

// historyCommand creates the history subcommand.
func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List catalog revisions (requires GLS_HISTORY)",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of revisions to show (0 = all)",
				Value:   defaultHistoryLimit,
			},
			verboseFlag,
		},
		Before: beforeCommand,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !appConfig.History {
				return apperrors.ErrHistoryDisabled
			}

			dataDir := resolveDataDir(cmd)
			recorder, err := history.Open(dataDir, history.WithLogger(slog.Default()), history.WithRemoteConfig(appConfig.Remote()))
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}

			entries, err := recorder.Log(ctx, catalog.NewStore(dataDir).Path(), cmd.Int("limit"))
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}

			displayHistory(entries)
			return nil
		},
	}
}

// remoteCommand creates the remote subcommand.
func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Manage the catalog history remote",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show current remote configuration from environment variables",
				Flags:  []cli.Flag{verboseFlag},
				Before: beforeCommand,
				Action: func(_ context.Context, _ *cli.Command) error {
					displayRemoteConfig(appConfig.Remote(), appConfig.History)
					return nil
				},
			},
			{
				Name:   "test",
				Usage:  "Test connection to remote repository",
				Flags:  []cli.Flag{verboseFlag},
				Before: beforeCommand,
				Action: func(ctx context.Context, _ *cli.Command) error {
					cfg := appConfig.Remote()
					if !cfg.IsEnabled() {
						return fmt.Errorf("%w: set GLS_GIT_URL", apperrors.ErrRemoteNotConfigured)
					}

					return displayConnectionTest(ctx, cfg)
				},
			},
			{
				Name:   "push",
				Usage:  "Push catalog revisions to the remote",
				Flags:  []cli.Flag{verboseFlag},
				Before: beforeCommand,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := appConfig.Remote()
					if !cfg.IsEnabled() {
						return fmt.Errorf("%w: set GLS_GIT_URL", apperrors.ErrRemoteNotConfigured)
					}

					recorder, err := history.Open(resolveDataDir(cmd), history.WithLogger(slog.Default()), history.WithRemoteConfig(cfg))
					if err != nil {
						return fmt.Errorf("open history: %w", err)
					}
					return recorder.Push(ctx)
				},
			},
		},
	}
}

// services bundles the components shared by the commands.
type services struct {
	store    *catalog.Store
	manager  *assets.Manager
	service  *gallery.Service
	recorder *history.Recorder
}

// setupServices builds the store, manager and gallery service, with
// history when GLS_HISTORY is set.
func setupServices(cmd *cli.Command) (*services, error) {
	dataDir := resolveDataDir(cmd)
	logger := slog.Default()

	storeOpts := []catalog.Option{catalog.WithLogger(logger)}

	var recorder *history.Recorder
	if appConfig.History {
		var err error
		recorder, err = history.Open(dataDir, history.WithLogger(logger), history.WithRemoteConfig(appConfig.Remote()))
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		storeOpts = append(storeOpts, catalog.WithRecorder(recorder))
	}

	store := catalog.NewStore(dataDir, storeOpts...)
	manager := assets.NewManager(resolveUploadsDir(cmd), assets.WithLogger(logger))

	return &services{
		store:    store,
		manager:  manager,
		service:  gallery.NewService(store, manager, gallery.WithLogger(logger), gallery.WithMinAge(appConfig.ReconcileMinAge)),
		recorder: recorder,
	}, nil
}

// resolveDataDir returns the catalog directory from --data-dir or GLS_DATA_DIR.
func resolveDataDir(cmd *cli.Command) string {
	if dir := cmd.String("data-dir"); dir != "" {
		return dir
	}
	return appConfig.DataDir
}

// resolveUploadsDir returns the uploads root from --uploads-dir or GLS_UPLOADS_DIR.
func resolveUploadsDir(cmd *cli.Command) string {
	if dir := cmd.String("uploads-dir"); dir != "" {
		return dir
	}
	return appConfig.UploadsDir
}

// readInput reads a file, or stdin when name is "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(name) //nolint:gosec // path supplied by the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
