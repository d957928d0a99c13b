package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/wowgo/internal/config"
	"github.com/udisondev/wowgo/internal/data"
	"github.com/udisondev/wowgo/internal/db"
	"github.com/udisondev/wowgo/internal/game/instancesave"
	"github.com/udisondev/wowgo/internal/game/mapinstance"
)

const WorldConfigPath = "config/worldserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := WorldConfigPath
	if p := os.Getenv("WOWGO_WORLD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadWorldServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading world config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("wowgo world server starting", "log_level", cfg.LogLevel)

	if err := data.LoadMaps(); err != nil {
		return fmt.Errorf("loading map data: %w", err)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	repo := db.NewInstanceRepository(database.Pool())
	store := &instanceStoreAdapter{repo: repo}

	grid := mapinstance.NewManager()
	registry := instancesave.NewSaveRegistry(
		store,
		nil, // broadcaster wired by the session layer
		grid,
		cfg.InstanceResetHour,
	)
	grid.BindSaves(registry)

	// Startup order: purge stale rows, compact the id space, then load
	// the reset baselines and queue the reset cycle.
	if err := registry.CleanupInstances(ctx); err != nil {
		return fmt.Errorf("cleaning up instances: %w", err)
	}
	if cfg.PackInstanceIDs {
		if err := registry.PackInstances(ctx); err != nil {
			return fmt.Errorf("packing instance ids: %w", err)
		}
	}
	if err := registry.Scheduler().LoadResetTimes(ctx, time.Now()); err != nil {
		return fmt.Errorf("loading reset times: %w", err)
	}
	registry.CleanupExpiredInstancesAtTime(ctx, time.Now())

	// New live copies take ids above everything still persisted.
	usedIDs, err := store.UsedInstanceIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading used instance ids: %w", err)
	}
	if len(usedIDs) > 0 {
		grid.SeedNextID(usedIDs[len(usedIDs)-1])
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting instance save tick loop", "interval", cfg.TickInterval)
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				slog.Info("instance save tick loop stopping")
				return nil
			case now := <-ticker.C:
				registry.Update(gctx, now)
			}
		}
	})

	return g.Wait()
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
