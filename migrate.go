package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amirphl/counter-app/config"
	"github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newMigrateCommand(v *viper.Viper) *cobra.Command {
	var createDatabase bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the counters table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if createDatabase {
				if err := ensurePostgresDatabase(cmd.Context(), cfg.Database, log); err != nil {
					return err
				}
			}

			// initializeDatabase migrates on open
			db, err := initializeDatabase(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}

			log.Info("Migration completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&createDatabase, "create-database", false, "create the postgres database first if it does not exist")
	return cmd
}

// ensurePostgresDatabase connects to the maintenance database and creates DB_NAME when missing
func ensurePostgresDatabase(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) error {
	if cfg.Driver != "postgres" {
		return fmt.Errorf("--create-database requires DB_DRIVER=postgres")
	}
	if cfg.DSN != "" {
		return fmt.Errorf("--create-database cannot be combined with DB_DSN")
	}

	admin := cfg
	admin.Name = "postgres"
	conn, err := sql.Open("postgres", admin.PostgresDSN())
	if err != nil {
		return fmt.Errorf("failed to open maintenance database: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var exists bool
	if err := conn.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Name).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check database %s: %w", cfg.Name, err)
	}
	if exists {
		log.Info("Database already exists", zap.String("database", cfg.Name))
		return nil
	}

	if _, err := conn.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Name)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Name, err)
	}
	log.Info("Database created", zap.String("database", cfg.Name))
	return nil
}
