package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/freight/internal/config"
	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/logging"
	"github.com/JonMunkholm/freight/internal/store"
	"github.com/JonMunkholm/freight/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration", "config", cfg.String())

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"default_file", cfg.Rates.DefaultFile,
		"postgres_cache", cfg.Database.UsePostgres(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		slog.Error("failed to open rate cache", "error", err)
		os.Exit(1)
	}
	defer closeCache()

	service := core.NewService(cache, core.Config{
		DefaultFile:   cfg.Rates.DefaultFile,
		CacheKey:      cfg.Rates.CacheKey,
		CacheMaxAge:   cfg.Rates.CacheMaxAge,
		PruneInterval: cfg.Rates.PruneInterval,
		PreviewRows:   cfg.Rates.PreviewRows,
		MaxFileSize:   cfg.Upload.MaxFileSize,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	})

	initCtx, cancelInit := context.WithTimeout(ctx, cfg.Upload.Timeout)
	if err := service.Init(initCtx); err != nil {
		cancelInit()
		slog.Error("failed to initialize rate data", "error", err)
		os.Exit(1)
	}
	cancelInit()

	st := service.Status()
	slog.Info("rate data ready",
		"loaded", st.Loaded,
		"source", st.Source,
		"rules", st.Rules,
		"shape", st.Shape,
	)

	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartCachePruner(jobCtx)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active uploads to complete (with timeout)
		if uploads := service.UploadStatus(); uploads.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", uploads.Active)
			if err := service.WaitForUploads(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openCache returns the Postgres-backed cache when a database URL is set,
// otherwise an in-memory cache. The returned func releases its resources.
func openCache(ctx context.Context, cfg *config.Config) (store.Cache, func(), error) {
	maxBytes := int64(cfg.Rates.CacheMaxBytes)

	if !cfg.Database.UsePostgres() {
		slog.Warn("DATABASE_URL not set, uploaded data will not survive a restart")
		return store.NewMemoryCache(maxBytes), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	cache := store.NewPostgresCache(pool, maxBytes)
	if err := cache.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return cache, pool.Close, nil
}
