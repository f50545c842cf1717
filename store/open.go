/*
open.go - Repository selection

PURPOSE:
  Opens the repository named by the database configuration so the server
  and the batch runner share one startup path.

DRIVERS:
  sqlite:    store/sqlite, schema created on open
  postgres:  store/postgres over a pgx pool; schema via cmd/migrate
*/
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

// Opened is a live repository plus its lifecycle hooks.
type Opened struct {
	Repo payroll.Repository

	// Ready pings the backing database. Nil when there is nothing to ping.
	Ready func(ctx context.Context) error

	Close func()
}

// Open connects to the configured database.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Opened, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Opened{
			Repo:  postgres.New(pool),
			Ready: pool.Ping,
			Close: pool.Close,
		}, nil

	case config.DriverSQLite, "":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("store: create data dir: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Opened{
			Repo:  s,
			Ready: s.Ping,
			Close: func() { _ = s.Close() },
		}, nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}
