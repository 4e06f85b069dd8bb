package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/emunx/nxmeta/internal/api"
	"github.com/emunx/nxmeta/internal/config"
	"github.com/emunx/nxmeta/internal/logging"
	"github.com/emunx/nxmeta/internal/scanner"
)

var serveScanOnStart bool

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		Long:  `Start the HTTP API over the catalog. The config file is watched and language or key changes apply to the next scan.`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&serveScanOnStart, "scan", false, "scan the library once on startup")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load config through the manager so it can be reloaded
	configManager, err := config.NewManager(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config from %q: %w", configFile, err)
	}
	cfg := configManager.GetConfig()

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logCloser = closer

	// 2. Initialize database connection
	db, err := initializeDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	repo := setupRepository(db)

	// 3. Scanner follows config changes
	s := scanner.New(afero.NewOsFs(), cfg, repo)
	scanner.RegisterConfigHandlers(ctx, configManager, s)

	// 4. HTTP API
	server := api.NewServer(ctx, repo, s)
	app := server.App()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		configManager.Watch(gctx)
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		slog.InfoContext(gctx, "API listening", "addr", cfg.API.Addr())
		return app.Listen(cfg.API.Addr())
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.InfoContext(shutdownCtx, "Shutting down API")
		return app.ShutdownWithContext(shutdownCtx)
	})

	if serveScanOnStart {
		g.Go(func() error {
			if _, _, err := server.RunScan(); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(gctx, "Startup scan failed", "err", err)
			}
			return nil
		})
	}

	server.SetReady(true)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
