package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute

	connectAttempts      = 5
	connectRetryInterval = 2 * time.Second
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Open connects to the database for the given driver and pings it.
func Open(driver, dataSourceName string, log *logrus.Entry) (*sql.DB, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgresConnection(dataSourceName, log)
	case DriverSQLite:
		return NewSQLiteConnection(dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// The database may still be starting (compose, k8s), so the ping is retried.
func NewPostgresConnection(dataSourceName string, log *logrus.Entry) (*sql.DB, error) {
	db, err := sql.Open(DriverPostgres, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		log.WithError(err).WithField("attempt", attempt).Warnf("Database ping failed, retrying in %s", connectRetryInterval)
		if attempt < connectAttempts {
			time.Sleep(connectRetryInterval)
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", connectAttempts, err)
}

// NewSQLiteConnection opens (or creates) a SQLite database file.
func NewSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; pragmas below are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Migrate applies the embedded schema for the driver. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var file string
	switch driver {
	case DriverPostgres:
		file = "schema/postgres.sql"
	case DriverSQLite:
		file = "schema/sqlite.sql"
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	schema, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", file, err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema %s: %w", file, err)
	}
	return nil
}
