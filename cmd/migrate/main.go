/*
main.go - PostgreSQL schema migrations

PURPOSE:
  Applies the embedded store/postgres migrations. SQLite creates its schema
  on open and needs no migration step.

USAGE:
  migrate [-config file] [-env file] up|down|drop|version

  The DSN comes from database.dsn or PAYROLL_DB_DSN.
*/
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/store/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", ".env", "dotenv file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] up|down|drop|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	action := flag.Arg(0)

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		slog.Error("migrations only apply to postgres", "driver", cfg.Database.Driver)
		os.Exit(1)
	}

	status, err := postgres.Migrate(cfg.Database.DSN(), action)
	if err != nil {
		slog.Error("migration failed", "action", action, "error", err)
		os.Exit(1)
	}

	if !status.Applied {
		slog.Info("migration complete", "action", action, "version", "none")
		return
	}
	slog.Info("migration complete", "action", action, "version", status.Version, "dirty", status.Dirty)
}
