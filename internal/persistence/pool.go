// Package persistence owns the Persistence Pool Handle (C13): opening and
// closing a database connection pool at the Server Host's startup and
// shutdown edges. The core issues no queries against it — CRUD is out of
// scope (spec.md Non-goals) — but an embedding host wires its own data
// access on top of the same *sqlx.DB this package hands back.
package persistence

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" database/sql driver

	"github.com/kandev/agentcore/internal/coreconfig"
)

// Pool wraps the opened database handle.
type Pool struct {
	db *sqlx.DB
}

// Open connects to cfg's configured driver: "sqlite" via mattn/go-sqlite3,
// "postgres" via jackc/pgx's stdlib adapter (so callers that want pgx's
// native driver elsewhere share the same underlying connection machinery).
func Open(cfg coreconfig.DatabaseConfig) (*Pool, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlx.Connect("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		return &Pool{db: db}, nil

	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MinConns)
		return &Pool{db: db}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// DB returns the underlying *sqlx.DB for an embedding host's own queries.
func (p *Pool) DB() *sqlx.DB { return p.db }

// Close releases the pool's connections — the Server Host's shutdown
// step 5 (§4.11).
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
