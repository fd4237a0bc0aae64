package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	leadmigrations "github.com/goliatone/go-leadhooks/migrations"
	sqlstore "github.com/goliatone/go-leadhooks/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-leadhooks-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"leadhooks_webhook_targets", "leadhooks_lead_activities"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestTargetStore_ListActiveFiltersByTenantAndState(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.TargetStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []core.WebhookTarget{
		{TenantID: "tenant_1", Name: "crm", URL: "https://a.example.com/hook", Secret: "s1", SubscribedEvents: []string{"lead.created"}, IsActive: true, CreatedAt: base},
		{TenantID: "tenant_1", Name: "paused", URL: "https://b.example.com/hook", SubscribedEvents: []string{"lead.updated"}, IsActive: false, CreatedAt: base.Add(time.Minute)},
		{TenantID: "tenant_2", Name: "other", URL: "https://c.example.com/hook", SubscribedEvents: []string{"lead.created"}, IsActive: true, CreatedAt: base.Add(2 * time.Minute)},
		{TenantID: "tenant_1", Name: "status", URL: "https://d.example.com/hook", SubscribedEvents: []string{"LEAD.UPDATED.STATUS", " lead.updated "}, IsActive: true, FormID: "form_9", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, target := range seed {
		if _, err := store.Create(ctx, target); err != nil {
			t.Fatalf("create target %q: %v", target.Name, err)
		}
	}

	active, err := store.ListActive(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected two active targets, got %d", len(active))
	}
	if active[0].Name != "crm" || active[1].Name != "status" {
		t.Fatalf("expected creation order, got %q then %q", active[0].Name, active[1].Name)
	}
	if active[0].Secret != "s1" || active[0].ID == "" {
		t.Fatalf("unexpected first target %+v", active[0])
	}
	got := active[1].SubscribedEvents
	if len(got) != 2 || got[0] != "lead.updated.status" || got[1] != "lead.updated" {
		t.Fatalf("expected normalized subscriptions, got %#v", got)
	}
	if active[1].FormID != "form_9" {
		t.Fatalf("expected form scope to round trip, got %q", active[1].FormID)
	}
}

func TestTargetStore_CreateRejectsInvalidTarget(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	_, err = factory.TargetStore().Create(context.Background(), core.WebhookTarget{
		TenantID:         "tenant_1",
		URL:              "https://a.example.com/hook",
		SubscribedEvents: []string{"form.submission"},
	})
	if !errors.Is(err, core.ErrInvalidTarget) {
		t.Fatalf("expected invalid target error, got %v", err)
	}
}

func TestTargetStore_SetActiveAndDelete(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.TargetStore()

	created, err := store.Create(ctx, core.WebhookTarget{
		TenantID:         "tenant_1",
		URL:              "https://a.example.com/hook",
		SubscribedEvents: []string{"lead.created"},
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SetActive(ctx, created.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := store.ListActive(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected deactivated target to be hidden, got %d", len(active))
	}
	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.IsActive {
		t.Fatalf("expected inactive target")
	}

	if err := store.SetActive(ctx, created.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	active, err = store.ListActive(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected deleted target to be hidden, got %d", len(active))
	}
	if _, err := store.Get(ctx, created.ID); !errors.Is(err, core.ErrTargetNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrTargetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuditStore_RecordAndListByLead(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.AuditStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []core.AuditEntry{
		{LeadID: "lead_1", TenantID: "tenant_1", Type: core.AuditEntrySystem, Content: "Lead created via form", CreatedAt: base},
		{LeadID: "lead_2", TenantID: "tenant_1", Type: core.AuditEntrySystem, Content: "Lead created via csv", CreatedAt: base},
		{LeadID: "lead_1", TenantID: "tenant_1", Type: core.AuditEntryStatusChange, Content: "Status changed from 'new' to 'won'", CreatedAt: base.Add(time.Second)},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	listed, err := store.ListByLead(ctx, "lead_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected two entries, got %d", len(listed))
	}
	if listed[0].Type != core.AuditEntrySystem || listed[1].Type != core.AuditEntryStatusChange {
		t.Fatalf("unexpected order %+v", listed)
	}
	if listed[1].Content != "Status changed from 'new' to 'won'" || listed[1].ID == "" {
		t.Fatalf("unexpected entry %+v", listed[1])
	}

	if err := store.Record(ctx, core.AuditEntry{Type: core.AuditEntrySystem}); err == nil {
		t.Fatalf("expected missing lead id to fail")
	}
}

func TestRepositoryFactory_RejectsUnsupportedClient(t *testing.T) {
	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected nil db to fail")
	}
	factory := sqlstore.NewRepositoryFactory()
	if err := factory.BuildStores("not-a-db"); err == nil {
		t.Fatalf("expected unsupported client type to fail")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:leadhooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	source, err := leadmigrations.ForDriver("sqlite3")
	if err != nil {
		_ = client.Close()
		t.Fatalf("resolve migrations: %v", err)
	}
	client.RegisterSQLMigrations(source.FS)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
