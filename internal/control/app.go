// Package control wires the application together and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/worker"
	"github.com/vietddude/harvester/internal/infra/apify"
	redisclient "github.com/vietddude/harvester/internal/infra/redis"
	"github.com/vietddude/harvester/internal/infra/storage/postgres"
	"github.com/vietddude/harvester/internal/scraping/batch"
	"github.com/vietddude/harvester/internal/scraping/pool"
	"github.com/vietddude/harvester/internal/scraping/service"
	"github.com/vietddude/harvester/internal/server"
)

// App is the assembled harvester: storage, cache, pool, orchestrator and
// the HTTP server.
type App struct {
	cfg         *config.AppConfig
	db          *postgres.DB
	redisClient *redisclient.Client
	httpServer  *server.Server
	pruner      *worker.Pruner
	log         *slog.Logger
}

// NewApp initializes all dependencies. Migrations run here so the process
// fails fast on schema drift.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	// Redis is optional; without it profile dedup falls back to Postgres
	// lookups only.
	var redisClient *redisclient.Client
	var cache *redisclient.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, profile cache disabled", "error", err)
		} else {
			cache = redisClient
			slog.Info("Profile cache enabled")
		}
	}

	credRepo := postgres.NewCredentialRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	logRepo := postgres.NewScrapeLogRepo(db)
	userRepo := postgres.NewUserRepo(db)

	apifyClient := apify.NewClient(cfg.Apify, log)
	prober := pool.NewHealthProber(apifyClient, credRepo, log)
	manager := pool.NewManager(credRepo, prober, cfg.Pool, log)
	orch := batch.NewOrchestrator(manager, credRepo, cfg.Batch, log)

	var profileCache service.ProfileCache
	if cache != nil {
		profileCache = cache
	}
	svc := service.New(orch, apifyClient, profileRepo, logRepo, profileCache, cfg.Apify, cfg.Batch, log)

	httpServer := server.NewServer(svc, userRepo, db, cfg.Server, log)
	pruner := worker.NewPruner(cfg.Database.LogRetention.Std(), logRepo, log)

	return &App{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		httpServer:  httpServer,
		pruner:      pruner,
		log:         log,
	}, nil
}

// Start starts the HTTP server and background workers.
func (a *App) Start(ctx context.Context) error {
	go func() {
		a.log.Info("HTTP server listening", "port", a.cfg.Server.Port)
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	go a.pruner.Start(ctx)

	return nil
}

// Stop shuts the app down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping harvester...")

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	err := a.httpServer.Stop(ctx)

	if cerr := a.db.Close(); cerr != nil {
		a.log.Warn("Failed to close database", "error", cerr)
	}

	return err
}
