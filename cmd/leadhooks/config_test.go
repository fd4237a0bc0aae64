package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-leadhooks/core"
)

func TestFileConfigProvider_LoadsYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadhooks.yaml")
	content := []byte(`
breaker:
  entity_limit: 5
delivery:
  backoff_seconds: [1, 2]
redis:
  url: redis://localhost:6379/0
http:
  addr: ":9090"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	provider, err := fileConfigProvider(path)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	cfg, err := core.ResolveConfig(context.Background(), core.Config{}, provider, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Breaker.EntityLimit != 5 || cfg.Breaker.TenantLimit != 200 {
		t.Fatalf("unexpected breaker config %+v", cfg.Breaker)
	}
	if len(cfg.Delivery.BackoffSeconds) != 2 || cfg.Delivery.BackoffSeconds[1] != 2 {
		t.Fatalf("unexpected backoff %v", cfg.Delivery.BackoffSeconds)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" || cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected redis/http config %+v %+v", cfg.Redis, cfg.HTTP)
	}
}

func TestFileConfigProvider_EmptyPathUsesDefaults(t *testing.T) {
	provider, err := fileConfigProvider("")
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	cfg, err := core.ResolveConfig(context.Background(), core.Config{}, provider, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Database.Driver != core.DriverSQLite || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFileConfigProvider_RejectsMissingAndMalformedFiles(t *testing.T) {
	if _, err := fileConfigProvider(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("breaker: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := fileConfigProvider(path); err == nil {
		t.Fatalf("expected malformed yaml to fail")
	}
}

func TestOpenDatabase_SQLiteAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	client, err := openDatabase(ctx, core.DatabaseConfig{
		Driver: core.DriverSQLite,
		DSN:    "file:leadhooks-cmd-test?mode=memory&cache=shared&_foreign_keys=on",
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer client.Close()

	var name string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"leadhooks_webhook_targets",
	).Scan(ctx, &name); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if name != "leadhooks_webhook_targets" {
		t.Fatalf("expected targets table, got %q", name)
	}
}

func TestOpenDatabase_RejectsUnsupportedDriver(t *testing.T) {
	if _, err := openDatabase(context.Background(), core.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
	if _, err := openDatabase(context.Background(), core.DatabaseConfig{Driver: core.DriverPostgres}); err == nil {
		t.Fatalf("expected postgres without dsn to fail")
	}
}

func TestOpenCounterStore_DisabledWithoutURL(t *testing.T) {
	store, closeFn, err := openCounterStore(context.Background(), core.RedisConfig{})
	if err != nil || store != nil {
		t.Fatalf("expected no store, got %v %v", store, err)
	}
	closeFn()
}
