package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"flatbot/migrations"
)

func main() {
	dbPath := flag.String("db", defaultDBPath(), "path to sqlite database")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	cmd := flag.Arg(0)

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Command(db, cmd); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func defaultDBPath() string {
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		return v
	}
	return "./data/bot.db"
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: migrate [-db path] <command>

Commands:
  up       apply all pending migrations
  up-one   apply the next pending migration
  down     roll back the latest migration
  status   print migration status
  version  print the current schema version
  reset    roll back everything
`)
}
