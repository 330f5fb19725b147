package main

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/counter-app/config"
	"github.com/amirphl/counter-app/models"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// initializeDatabase opens the configured database, applies pool settings and migrates the schema
func initializeDatabase(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.PostgresDSN())
	}

	logLevel := gormlogger.Error
	if cfg.SlowQueryLog {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// sqlite allows a single writer
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	log.Info("Database connection established",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity. It returns nil when caching is disabled.
func initializeCache(cfg config.CacheConfig, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	if cfg.RedisDB != 0 {
		opt.DB = cfg.RedisDB
	}
	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connection established", zap.String("addr", opt.Addr), zap.Int("db", opt.DB))
	return rc, nil
}

// startCacheHealthMonitor periodically pings redis so outages show up in the logs.
// The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, log *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		healthy := true
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				err := client.Ping(ctx).Err()
				c()
				switch {
				case err != nil && healthy:
					log.Warn("Redis healthcheck failed, counters are served from the database", zap.Error(err))
				case err == nil && !healthy:
					log.Info("Redis healthcheck recovered")
				}
				healthy = err == nil
			}
		}
	}()
	return cancel
}
