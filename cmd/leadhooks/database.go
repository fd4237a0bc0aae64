package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	leadmigrations "github.com/goliatone/go-leadhooks/migrations"
	redisstore "github.com/goliatone/go-leadhooks/store/redis"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const defaultSQLiteDSN = "file:leadhooks?mode=memory&cache=shared&_foreign_keys=on"

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-leadhooks"
}

// openDatabase connects the webhook registry and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = core.DriverSQLite
	}
	dsn := strings.TrimSpace(cfg.DSN)

	var dialect schema.Dialect
	switch driver {
	case core.DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("database: dsn is required for postgres")
		}
		dialect = pgdialect.New()
	case core.DriverSQLite:
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	if driver == core.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: persistence client: %w", err)
	}

	source, err := leadmigrations.ForDriver(driver)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	client.RegisterSQLMigrations(source.FS)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database: migrate: %w", err)
	}
	return client, nil
}

// openCounterStore returns nil when redis is not configured.
func openCounterStore(ctx context.Context, cfg core.RedisConfig) (core.CounterStore, func(), error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, func() {}, nil
	}
	client, err := redisstore.NewClientFromURL(url)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis: ping: %w", err)
	}
	store, err := redisstore.NewCounterStore(client, cfg.KeyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}
