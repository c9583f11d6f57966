package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedMigrations embed.FS

// Dialect selects a migration set and the goose dialect used to run it.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// dir returns the embedded subdirectory holding the dialect's migrations.
func (d Dialect) dir() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Migrate applies all pending migrations for the given dialect.
func Migrate(db *sql.DB, dialect Dialect) error {
	if db == nil {
		return errors.New("migration error: db is nil")
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("migration error setting dialect for db: %w", err)
	}

	if err := goose.Up(db, dialect.dir()); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}
