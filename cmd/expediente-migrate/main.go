package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	// lib/pq registers "postgres"; the sqlite migration driver registers
	// "sqlite" (modernc.org/sqlite).
	_ "github.com/lib/pq"

	"github.com/clinica-juridica/expediente/internal/migrate"
)

func main() {
	driver := flag.String("driver", migrate.DriverPostgres, "Database driver (postgres|sqlite)")
	dsn := flag.String("dsn", "", "Database connection string")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Applies the expediente database schema migrations.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n\n")
		fmt.Fprintf(os.Stderr, "  PostgreSQL:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=postgres -dsn=\"host=localhost user=postgres password=postgres dbname=expediente port=5432 sslmode=disable\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  SQLite:\n")
		fmt.Fprintf(os.Stderr, "    %s -driver=sqlite -dsn=\"data/expediente.db\"\n\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "expediente-migrate",
		Level: hclog.Info,
	})

	if *dsn == "" {
		log.Error("-dsn flag is required, run with -help for usage information")
		os.Exit(1)
	}
	if *driver != migrate.DriverPostgres && *driver != migrate.DriverSQLite {
		log.Error("unsupported driver", "driver", *driver)
		os.Exit(1)
	}

	sqlDB, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Error("error opening database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Error("error connecting to database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to database", "driver", *driver)

	if *showVersion {
		version, dirty, err := migrate.GetMigrationVersion(sqlDB, *driver)
		if err != nil {
			log.Error("error reading schema version", "error", err)
			os.Exit(1)
		}
		log.Info("schema version", "version", version, "dirty", dirty)
		return
	}

	if err := migrate.RunMigrations(sqlDB, *driver); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("all migrations completed successfully")
}
