// Package migrations embeds the schema migration files and applies them with
// goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

func setup() error {
	goose.SetBaseFS(files)
	return goose.SetDialect("sqlite3")
}

// Run brings the schema up to the latest version.
func Run(db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Command runs a single goose command by name, for the migrate tool.
func Command(db *sql.DB, name string) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	switch name {
	case "up":
		return goose.Up(db, ".")
	case "up-one":
		return goose.UpByOne(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	case "reset":
		return goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}
