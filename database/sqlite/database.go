package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowstate/flowcloud"

	_ "modernc.org/sqlite" // SQLite driver
)

// busyTimeoutMS lets the server and the admin CLI share one database file.
const busyTimeoutMS = 5000

// database provides SQLite database operations.
type database struct {
	db     *sql.DB
	tables flowcloud.Tables
}

// Connect opens a SQLite key database. File databases get a busy timeout
// and WAL journaling unless the DSN already sets pragmas.
// Tables should be validated before calling Connect.
func Connect(ctx context.Context, dsn string, tables flowcloud.Tables) (*database, error) {
	memory := strings.Contains(dsn, ":memory:")
	if !memory {
		dsn = withPragmas(dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	return &database{
		db:     db,
		tables: tables,
	}, nil
}

// Ping verifies the database file can be opened.
func (d *database) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Migrate runs database migrations to create required tables.
func (d *database) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db, d.tables)
}

// KeyStore returns the access key store backed by this database.
func (d *database) KeyStore() flowcloud.KeyStore {
	return &keyStore{db: d.db, tableName: d.tables.AccessKeys}
}

// Close closes the database connection.
func (d *database) Close() error {
	return d.db.Close()
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMS) + ")&_pragma=journal_mode(WAL)"
}
