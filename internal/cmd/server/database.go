package server

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	serviceName string
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return c.serviceName }

// openPersistence opens the configured database, registers the payments
// migrations for its dialect and applies them.
func openPersistence(ctx context.Context, cfg Config) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.DBDriver {
	case "sqlite3":
		if err := ensureSQLiteDir(cfg.DBDSN); err != nil {
			return nil, err
		}
		dialect = sqlitedialect.New()
	case "postgres":
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("server: unsupported database driver %q", cfg.DBDriver)
	}

	sqlDB, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("server: open database: %w", err)
	}
	if cfg.DBDriver != "postgres" {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:      cfg.DBDriver,
		server:      cfg.DBDSN,
		debug:       cfg.DBDebug,
		serviceName: cfg.ServiceName,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("server: persistence client: %w", err)
	}

	if err := paymentmigrations.RegisterDriver(cfg.DBDriver, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("server: migrate: %w", err)
	}
	return client, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		if strings.Contains(path[idx:], "mode=memory") {
			return nil
		}
		path = path[:idx]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("server: create sqlite dir: %w", err)
	}
	return nil
}
