package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fire/command/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	migrate "github.com/rubenv/sql-migrate"
)

// Connect sets up the database pool and optionally runs migrations.
func Connect(ctx context.Context, cfg config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database URL is empty")
	}

	if cfg.Database.RunMigrations {
		if _, err := Migrate(ctx, cfg.Database, migrate.Up, 0, log); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies (or rolls back) the SQL migrations in cfg.MigrationsDir.
// max limits how many are applied; zero means all.
func Migrate(ctx context.Context, cfg config.DatabaseConfig, dir migrate.MigrationDirection, max int, log zerolog.Logger) (int, error) {
	dbConn, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return 0, fmt.Errorf("opening sql connection: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("ping database: %w", err)
	}

	source := &migrate.FileMigrationSource{Dir: cfg.MigrationsDir}
	n, err := migrate.ExecMaxContext(ctx, dbConn, "postgres", source, dir, max)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Info().Int("applied", n).Str("dir", cfg.MigrationsDir).Msg("migrations executed")
	}
	return n, nil
}
