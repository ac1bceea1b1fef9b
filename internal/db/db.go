package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect returns the goqu dialect name for a driver.
func Dialect(driver string) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Open connects to the database for driver, checks the connection and
// applies the schema. For sqlite dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var (
		instance *sql.DB
		err      error
	)

	switch driver {
	case DriverSQLite:
		instance, err = sql.Open("sqlite", formatDBPath(dsn))
		if err == nil {
			// sqlite allows a single writer, serialize at the pool instead
			// of surfacing SQLITE_BUSY to callers
			instance.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		instance, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		log.Error().Err(err).Str("driver", driver).Msg("failed to open database")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := instance.PingContext(ctx); err != nil {
		instance.Close()
		log.Error().Err(err).Str("driver", driver).Msg("failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Str("driver", driver).Msg("database connection successful")

	if err := migrate(ctx, instance, driver); err != nil {
		instance.Close()
		log.Error().Err(err).Msg("failed to run migrations")
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Str("driver", driver).Msg("migrations completed successfully")

	return instance, nil
}

func formatDBPath(path string) string {
	if path == "" {
		path = "shortlink.db"
	}
	path = strings.TrimPrefix(path, "file:")

	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	return "file:" + path + "?" + params.Encode()
}

func migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}

	_, err := db.ExecContext(ctx, schema)
	return err
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	short_code TEXT UNIQUE NOT NULL,
	original_url TEXT NOT NULL,
	created_at TEXT NOT NULL,
	click_count INTEGER NOT NULL DEFAULT 0,
	last_clicked_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_mappings_created_at ON mappings(created_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	id BIGSERIAL PRIMARY KEY,
	short_code TEXT UNIQUE NOT NULL,
	original_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	click_count BIGINT NOT NULL DEFAULT 0,
	last_clicked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_mappings_created_at ON mappings(created_at);
`
