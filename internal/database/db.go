// Package database provides connection setup, migrations and the sqlx-backed
// message and profile stores.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/personabot/internal/config"
	"github.com/edgard/personabot/internal/errs"
	"github.com/edgard/personabot/migrations"

	_ "github.com/jackc/pgx/v5/stdlib" //revive:disable:blank-imports
	_ "modernc.org/sqlite"             //revive:disable:blank-imports
)

// Supported values of database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqlDriverName maps a config driver to the registered database/sql driver.
func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Connect opens the pool, retrying the initial ping with a fixed delay up to
// cfg.ConnectAttempts times, then applies migrations. Exhausting the attempts
// returns a StorageError; callers treat it as fatal.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	log := logger.With("component", "database", "driver", cfg.Driver)

	driverName, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, errs.NewStorageError("connect", err)
	}

	attempts := max(cfg.ConnectAttempts, 1)

	var db *sqlx.DB
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err = open(ctx, driverName, cfg)
		if err == nil {
			log.InfoContext(ctx, "Connected to database", "attempt", attempt)
			break
		}

		log.ErrorContext(ctx, "Failed to connect to database", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt == attempts {
			return nil, errs.NewStorageError("connect", fmt.Errorf("giving up after %d attempts: %w", attempts, err))
		}

		select {
		case <-ctx.Done():
			return nil, errs.NewStorageError("connect", ctx.Err())
		case <-time.After(cfg.ConnectDelay):
		}
	}

	if err := ApplyMigrations(ctx, db, cfg); err != nil {
		CloseDB(db, log)
		return nil, errs.NewStorageError("migrate", err)
	}
	return db, nil
}

func open(ctx context.Context, driverName string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN
	if cfg.Driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN adds the driver options the store relies on: a sortable time
// format and a busy timeout.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_time_format=") {
		params = append(params, "_time_format=sqlite")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// CloseDB closes the pool and logs the outcome.
func CloseDB(db *sqlx.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("Error closing database connection", "error", err)
		return
	}
	logger.Info("Database connection closed")
}

// ApplyMigrations runs the embedded migrations for cfg.Driver.
func ApplyMigrations(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error {
	if db == nil {
		return errors.New("database connection is nil, cannot apply migrations")
	}

	source, err := iofs.New(migrations.FS, cfg.Driver)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var migrator *migrate.Migrate
	switch cfg.Driver {
	case DriverSQLite:
		dbDriver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create sqlite migration driver: %w", err)
		}
		migrator, err = migrate.NewWithInstance("iofs", source, "sqlite", dbDriver)
		if err != nil {
			return fmt.Errorf("failed to create migrate instance: %w", err)
		}
	case DriverPostgres:
		// The pgx migration driver pins a connection and closes its *sql.DB
		// on Close, so it gets a handle of its own.
		migrationDB, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open migration connection: %w", err)
		}
		dbDriver, err := migratepgx.WithInstance(migrationDB, &migratepgx.Config{})
		if err != nil {
			_ = migrationDB.Close()
			return fmt.Errorf("failed to create pgx migration driver: %w", err)
		}
		migrator, err = migrate.NewWithInstance("iofs", source, "pgx5", dbDriver)
		if err != nil {
			_ = dbDriver.Close()
			return fmt.Errorf("failed to create migrate instance: %w", err)
		}
		defer migrator.Close()
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.DebugContext(ctx, "No database migrations to apply", "driver", cfg.Driver)
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.InfoContext(ctx, "Database migrations applied", "driver", cfg.Driver)
	return nil
}
