// Command migrate applies or reverts the embedded schema migrations.
//
//	migrate [-dialect sqlite|postgres] [-dsn DSN] up|down [steps]|version
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"finwatch/internal/cli"
	"finwatch/internal/log"
	"finwatch/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentStorage)

	dialect := flag.String("dialect", defaultDialect(), "sqlite or postgres")
	dsn := flag.String("dsn", "", "database path (sqlite) or URL (postgres); defaults to SQLITE_DB_PATH or DATABASE_URL")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] up|down [steps]|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	d := storage.Dialect(*dialect)
	if d != storage.DialectSQLite && d != storage.DialectPostgres {
		logger.Error("Unsupported dialect", "dialect", *dialect)
		os.Exit(2)
	}
	if *dsn == "" {
		*dsn = defaultDSN(d)
	}
	if *dsn == "" {
		logger.Error("No database configured; pass -dsn")
		os.Exit(2)
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch flag.Arg(0) {
	case "up":
		if err = storage.RunMigrations(d, *dsn); err == nil {
			logger.Info("Migrations applied", "dialect", *dialect)
		}
	case "down":
		steps := 1
		if flag.NArg() > 1 {
			steps, err = strconv.Atoi(flag.Arg(1))
			if err != nil {
				logger.Error("Invalid step count", "steps", flag.Arg(1))
				os.Exit(2)
			}
		}
		if err = storage.RollbackMigrations(d, *dsn, steps); err == nil {
			logger.Info("Migrations rolled back", "dialect", *dialect, "steps", steps)
		}
	case "version":
		var (
			v     uint
			dirty bool
		)
		if v, dirty, err = storage.MigrationVersion(d, *dsn); err == nil {
			fmt.Printf("version %d dirty=%t\n", v, dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Migration command failed", "command", flag.Arg(0), log.FieldError, err)
		os.Exit(1)
	}
}

func defaultDialect() string {
	if os.Getenv("DATA_BACKEND") == "postgres" {
		return string(storage.DialectPostgres)
	}
	return string(storage.DialectSQLite)
}

func defaultDSN(d storage.Dialect) string {
	if d == storage.DialectPostgres {
		return os.Getenv("DATABASE_URL")
	}
	if p := os.Getenv("SQLITE_DB_PATH"); p != "" {
		return p
	}
	return "./data/finwatch.db"
}
