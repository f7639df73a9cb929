package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ecoleafdrive/internal/config"
)

const (
	sqliteBusyTimeoutMS = 5000
	connectAttempts     = 5
	connectDelay        = 5 * time.Second
)

func init() {
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Open подключается к базе, указанной в конфигурации
func Open(ctx context.Context, cfg config.DatabaseConfig, logger slog.Logger) (*sqlx.DB, error) {
	logger = logger.Named("db")

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := connectWithRetry(ctx, cfg, logger, connectAttempts, connectDelay)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite открывает файл базы SQLite
func OpenSQLite(path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}

	db, err := sqlx.Open(config.DriverSQLite, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", sqliteBusyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}

	// Один писатель, транзакции выстраиваются в очередь на соединении
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, logger slog.Logger, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	pgDSN := strings.Replace(cfg.GetDSN(), "dbname="+cfg.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.ConnectContext(ctx, config.DriverPostgres, pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли рабочая база
	var exists bool
	err = pgDB.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	// Если базы нет, создаем её
	if !exists {
		logger.Info(ctx, "database does not exist, creating", slog.F("name", cfg.Name))
		if _, err := pgDB.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	// Теперь пытаемся подключиться к рабочей базе
	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.ConnectContext(ctx, config.DriverPostgres, cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		logger.Warn(ctx, "failed to connect to database",
			slog.F("attempt", i+1),
			slog.F("max_attempts", maxAttempts),
			slog.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
