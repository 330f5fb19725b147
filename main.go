// Package main provides the entry point of the counter application
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirphl/counter-app/app/handlers"
	"github.com/amirphl/counter-app/app/router"
	"github.com/amirphl/counter-app/app/services"
	businessflow "github.com/amirphl/counter-app/business_flow"
	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/logger"
	"github.com/amirphl/counter-app/repository"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *zap.Logger
	db        *gorm.DB
	redis     *redis.Client
	stopFuncs []func()
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "counter-app",
		Short:         "Named persistent counters with a web page and a JSON API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.Int("port", 8080, "HTTP port (SERVER_PORT)")
	flags.String("db-driver", "postgres", "database driver: postgres or sqlite (DB_DRIVER)")
	flags.String("db-dsn", "", "sqlite file path or postgres DSN (DB_DSN)")
	mustBindFlag(v, "SERVER_PORT", flags.Lookup("port"))
	mustBindFlag(v, "DB_DRIVER", flags.Lookup("db-driver"))
	mustBindFlag(v, "DB_DSN", flags.Lookup("db-dsn"))

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), v)
			},
		},
		newMigrateCommand(v),
		newCounterCommand(v),
	)

	return rootCmd
}

// loadRuntime loads the configuration and builds the logger every command starts from
func loadRuntime(v *viper.Viper) (*config.ProductionConfig, *zap.Logger, error) {
	cfg, err := config.LoadProductionConfig(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log.With(
		zap.String("service", "counter-app"),
		zap.String("env", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
	), nil
}

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, log, err := loadRuntime(v)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting counter application",
		zap.String("commit", cfg.Deployment.CommitHash),
		zap.String("build_time", cfg.Deployment.BuildTime),
	)

	app, err := initializeApplication(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return err
	}
	defer app.close()

	app.router.SetupRoutes()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.router.Start(cfg.Server.Address())
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info("Shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			log.Error("Server stopped unexpectedly", zap.Error(err))
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	for _, fn := range app.stopFuncs {
		fn()
	}

	if err := app.router.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped")
	return nil
}

// initializeApplication wires storage, cache, flows, handlers and the router
func initializeApplication(ctx context.Context, cfg *config.ProductionConfig, log *zap.Logger) (*Application, error) {
	db, err := initializeDatabase(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	app := &Application{config: cfg, logger: log, db: db}

	counterCache, err := app.initializeCounterCache(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	flow := businessflow.NewCounterFlow(repository.NewCounterRepository(db), counterCache, cfg.Counter, log)

	views, err := handlers.NewPageViews()
	if err != nil {
		app.close()
		return nil, err
	}

	app.router = router.NewFiberRouter(router.Handlers{
		Counter:      handlers.NewCounterHandler(flow, cfg.Counter, log),
		AdminCounter: handlers.NewAdminCounterHandler(flow, log),
		Page:         handlers.NewPageHandler(flow, log),
		Views:        views,
		Health:       handlers.NewHealthHandler(db, counterCache, cfg.Deployment.Version, log),
	}, cfg, log)

	return app, nil
}

// initializeCounterCache connects to redis when caching is enabled. A nil cache disables caching.
func (a *Application) initializeCounterCache(ctx context.Context) (services.CounterCache, error) {
	rc, err := initializeCache(a.config.Cache, a.logger)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		a.logger.Info("Counter cache disabled")
		return nil, nil
	}

	a.redis = rc
	a.stopFuncs = append(a.stopFuncs, startCacheHealthMonitor(ctx, rc, a.config.Cache.HealthCheckInterval, a.logger))
	return services.NewRedisCounterCache(rc, a.config.Cache), nil
}

func (a *Application) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}
