package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spellhq/spellgate/internal/api"
	"github.com/spellhq/spellgate/internal/config"
	"github.com/spellhq/spellgate/internal/core"
	"github.com/spellhq/spellgate/internal/db"
	"github.com/spellhq/spellgate/internal/logging"
	"github.com/spellhq/spellgate/internal/metrics"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "create-developer-key" {
		createDeveloperKey(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	srv := api.NewServer(logger, pool, cfg)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func createDeveloperKey(args []string) {
	fs := flag.NewFlagSet("create-developer-key", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner user ID for the key (required)")
	name := fs.String("name", "", "Name for the developer key (required)")
	fs.Parse(args)

	if *owner == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "error: --owner and --name are required")
		fmt.Fprintln(os.Stderr, "usage: spellgate-api create-developer-key --owner <user-id> --name <name>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := core.NewDeveloperKeyService(pool)
	key, secret, err := svc.Create(ctx, *owner, *name, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create developer key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Developer key created successfully.\n\n")
	fmt.Printf("  Name:    %s\n", key.Name)
	fmt.Printf("  Key ID:  %s\n", key.KeyID)
	fmt.Printf("  Secret:  %s\n\n", secret)
	fmt.Printf("Save this secret - it will not be shown again.\n")
}
