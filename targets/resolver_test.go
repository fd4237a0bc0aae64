package targets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-leadhooks/core"
)

type stubTargetStore struct {
	mu      sync.Mutex
	targets []core.WebhookTarget
	calls   int
	err     error
}

func (s *stubTargetStore) ListActive(_ context.Context, tenantID string) ([]core.WebhookTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := []core.WebhookTarget{}
	for _, target := range s.targets {
		if target.TenantID == tenantID {
			out = append(out, target)
		}
	}
	return core.CloneTargets(out), nil
}

func (s *stubTargetStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestResolver(t *testing.T, store core.TargetStore) *CachedResolver {
	t.Helper()
	cacheService, err := NewCacheService(time.Minute)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	resolver, err := NewCachedResolver(store, cacheService)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func TestCachedResolver_MissFetchThenHit(t *testing.T) {
	store := &stubTargetStore{targets: []core.WebhookTarget{
		{ID: "wh_1", TenantID: "tenant_1", URL: "https://a.example/hook", IsActive: true, SubscribedEvents: []string{"lead.created"}},
		{ID: "wh_2", TenantID: "tenant_1", URL: "https://b.example/hook", IsActive: false, SubscribedEvents: []string{"lead.created"}},
		{ID: "wh_3", TenantID: "tenant_2", URL: "https://c.example/hook", IsActive: true, SubscribedEvents: []string{"lead.created"}},
	}}
	resolver := newTestResolver(t, store)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if len(first) != 1 || first[0].ID != "wh_1" {
		t.Fatalf("expected only active tenant target, got %+v", first)
	}
	if _, err := resolver.Resolve(ctx, "tenant_1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if store.callCount() != 1 {
		t.Fatalf("expected cache hit on second resolve, store calls=%d", store.callCount())
	}

	first[0].SubscribedEvents[0] = "mutated"
	again, _ := resolver.Resolve(ctx, "tenant_1")
	if again[0].SubscribedEvents[0] != "lead.created" {
		t.Fatalf("expected cached list to be isolated from caller mutation")
	}
}

func TestCachedResolver_TenantIsolation(t *testing.T) {
	store := &stubTargetStore{targets: []core.WebhookTarget{
		{ID: "wh_1", TenantID: "tenant_1", URL: "https://a.example/hook", IsActive: true, SubscribedEvents: []string{"lead.created"}},
		{ID: "wh_2", TenantID: "tenant_2", URL: "https://b.example/hook", IsActive: true, SubscribedEvents: []string{"lead.created"}},
	}}
	resolver := newTestResolver(t, store)

	tenantTwo, err := resolver.Resolve(context.Background(), "tenant_2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, target := range tenantTwo {
		if target.TenantID != "tenant_2" {
			t.Fatalf("expected tenant isolation, got %+v", target)
		}
	}
}

func TestCachedResolver_InvalidateForcesRefetch(t *testing.T) {
	store := &stubTargetStore{}
	resolver := newTestResolver(t, store)
	ctx := context.Background()

	empty, err := resolver.Resolve(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", empty)
	}

	store.mu.Lock()
	store.targets = append(store.targets, core.WebhookTarget{
		ID: "wh_1", TenantID: "tenant_1", URL: "https://a.example/hook", IsActive: true,
		SubscribedEvents: []string{"lead.created"},
	})
	store.mu.Unlock()

	stale, _ := resolver.Resolve(ctx, "tenant_1")
	if len(stale) != 0 {
		t.Fatalf("expected stale cached list before invalidation")
	}
	if err := resolver.Invalidate(ctx, "tenant_1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	fresh, _ := resolver.Resolve(ctx, "tenant_1")
	if len(fresh) != 1 {
		t.Fatalf("expected refetched list, got %+v", fresh)
	}
	if store.callCount() != 2 {
		t.Fatalf("expected two store reads, got %d", store.callCount())
	}
}

func TestCachedResolver_StoreErrorIsNotCached(t *testing.T) {
	store := &stubTargetStore{err: errors.New("db down")}
	resolver := newTestResolver(t, store)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, "tenant_1"); err == nil {
		t.Fatalf("expected store error")
	}
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	if _, err := resolver.Resolve(ctx, "tenant_1"); err != nil {
		t.Fatalf("expected recovery after store error, got %v", err)
	}
}

func TestCacheKey_EscapesTenant(t *testing.T) {
	key, err := CacheKey(" tenant/1 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "leadhooks::targets::v1::tenant%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := CacheKey(" "); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected tenant required error, got %v", err)
	}
}

func TestMatch_FiltersByEventAndForm(t *testing.T) {
	list := []core.WebhookTarget{
		{ID: "all", IsActive: true, SubscribedEvents: []string{"lead.created", "lead.updated"}},
		{ID: "status", IsActive: true, SubscribedEvents: []string{"lead.updated.status"}},
		{ID: "form_a", IsActive: true, FormID: "form_a", SubscribedEvents: []string{"lead.created"}},
		{ID: "none", IsActive: true, SubscribedEvents: []string{}},
		{ID: "inactive", IsActive: false, SubscribedEvents: []string{"lead.created"}},
	}

	cases := []struct {
		name      string
		eventType core.EventType
		formID    string
		want      []string
	}{
		{name: "created without form", eventType: core.EventLeadCreated, want: []string{"all"}},
		{name: "created from form a", eventType: core.EventLeadCreated, formID: "form_a", want: []string{"all", "form_a"}},
		{name: "created from form b", eventType: core.EventLeadCreated, formID: "form_b", want: []string{"all"}},
		{name: "status change", eventType: core.EventLeadUpdatedStatus, want: []string{"status"}},
		{name: "temperature change", eventType: core.EventLeadUpdatedTemperature, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(list, tc.eventType, tc.formID)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %+v", tc.want, got)
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("expected %q at %d, got %q", id, i, got[i].ID)
				}
			}
		})
	}
}
