package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/SscSPs/mma_recurring/internal/adapters/notify"
	portsrepo "github.com/SscSPs/mma_recurring/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/core/services"
	"github.com/SscSPs/mma_recurring/internal/events"
	"github.com/SscSPs/mma_recurring/internal/handlers"
	"github.com/SscSPs/mma_recurring/internal/middleware"
	"github.com/SscSPs/mma_recurring/internal/platform/config"
	"github.com/SscSPs/mma_recurring/internal/repositories/database/memory"
	"github.com/SscSPs/mma_recurring/internal/repositories/database/pgsql"
	"github.com/SscSPs/mma_recurring/internal/repositories/database/sqlite"
	"github.com/SscSPs/mma_recurring/internal/scheduler"
	"github.com/SscSPs/mma_recurring/pkg/database"
)

const (
	sqliteBusyTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// @title MMA Recurring Scheduler API
// @version 1.0
// @description Recurring transaction schedules for the money management app.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @security BearerAuth
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if cerr := repos.Close(); cerr != nil {
			logger.Error("Error closing store", slog.String("error", cerr.Error()))
		}
	}()

	bus := events.NewBus()
	go events.LogEvents(ctx, bus, logger)

	container := services.NewServiceContainer(repos, services.ContainerDeps{
		Runner: services.RunnerConfig{
			Location:        cfg.Scheduler.Location,
			MaxCatchUp:      cfg.Scheduler.MaxCatchUp,
			ManualGraceDays: cfg.Scheduler.ManualGraceDays,
		},
		Notifier: buildNotifier(cfg, logger),
		Events:   bus,
	})

	var driver *scheduler.Driver
	if cfg.Scheduler.Enabled {
		driver, err = scheduler.New(scheduler.Config{
			Spec:        cfg.Scheduler.Cron,
			Location:    cfg.Scheduler.Location,
			TickTimeout: cfg.Scheduler.TickTimeout,
			RunOnStart:  true,
		}, container.Runner, logger)
		if err != nil {
			logger.Error("Failed to create scheduler", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := driver.Start(ctx); err != nil {
			logger.Error("Failed to start scheduler", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("Scheduler disabled; schedules post only through POST /api/v1/scheduler/tick")
	}

	r, err := newRouter(cfg, container, logger)
	if err != nil {
		logger.Error("Failed to set up router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", slog.String("error", err.Error()))
	}
	if driver != nil {
		if err := driver.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler did not stop in time", slog.String("error", err.Error()))
		}
	}
	if dropped := bus.Dropped(); dropped > 0 {
		logger.Warn("Events dropped by slow subscribers", slog.Uint64("dropped", dropped))
	}
}

// openRepositories connects the configured store and applies its migrations.
func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (portsrepo.RepositoryProvider, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, sqliteBusyTimeout)
		if err != nil {
			return portsrepo.RepositoryProvider{}, err
		}
		logger.Info("SQLite store opened", slog.String("path", cfg.SQLitePath))
		return sqlite.NewRepositoryProvider(store), nil

	case config.StoreMemory:
		logger.Warn("Using the in-memory store; schedules are lost on restart")
		return memory.NewRepositoryProvider(memory.NewStore()), nil

	default:
		dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
		if err != nil {
			return portsrepo.RepositoryProvider{}, err
		}
		logger.Info("Database connection pool established.")

		// --- Run Database Migrations ---
		logger.Info("Running database migrations...")
		applied, err := database.RunPostgresMigrations(cfg.DatabaseURL, cfg.MigrationsURL, logger)
		if err != nil {
			dbPool.Close()
			return portsrepo.RepositoryProvider{}, err
		}
		if applied {
			logger.Info("Database migrations applied successfully.")
		} else {
			logger.Info("No new migrations to apply.")
		}
		return pgsql.NewRepositoryProvider(dbPool), nil
	}
}

// buildNotifier always logs and also posts to Telegram when a bot is configured.
func buildNotifier(cfg *config.Config, logger *slog.Logger) portssvc.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.TelegramToken == "" {
		return notifiers
	}
	tg, err := notify.NewTelegramNotifier(notify.TelegramConfig{
		Token:       cfg.Notify.TelegramToken,
		ChatID:      cfg.Notify.TelegramChatID,
		RatePerSec:  cfg.Notify.RatePerSec,
		DedupWindow: cfg.Notify.DedupWindow,
	})
	if err != nil {
		// Notifications are best effort; the scheduler still runs without them.
		logger.Error("Telegram notifier disabled", slog.String("error", err.Error()))
		return notifiers
	}
	return append(notifiers, tg)
}

func newRouter(cfg *config.Config, container *portssvc.ServiceContainer, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware (logging, recovery)
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "x-api-key"},
			ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if err := r.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	limiter, err := middleware.NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	r.Use(middleware.RateLimit(limiter))

	if err := handlers.RegisterRoutes(r, cfg, container); err != nil {
		return nil, err
	}
	return r, nil
}
