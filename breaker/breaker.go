package breaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-leadhooks/core"
)

var ErrUnknownScope = errors.New("breaker: unknown scope key")

type Scope string

const (
	ScopeEntity Scope = "entity"
	ScopeTenant Scope = "tenant"
)

const (
	entityScopePrefix = "entity-scope:"
	tenantScopePrefix = "tenant-scope:"
)

func EntityScopeKey(entityID string) string {
	return entityScopePrefix + strings.TrimSpace(entityID)
}

func TenantScopeKey(tenantID string) string {
	return tenantScopePrefix + strings.TrimSpace(tenantID)
}

// ScopePolicy is the ceiling for one scope: at most Limit hits per Window.
type ScopePolicy struct {
	Limit  int
	Window time.Duration
}

type Decision struct {
	Scope   Scope
	Key     string
	Allowed bool
	// Tripped is set only on the first denial of a window.
	Tripped bool
	Count   int64
	Limit   int
	Window  time.Duration
}

// Err returns a DeniedError for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return DeniedError{Scope: d.Scope, Key: d.Key, Count: d.Count, Limit: d.Limit, Window: d.Window}
}

type DeniedError struct {
	Scope  Scope
	Key    string
	Count  int64
	Limit  int
	Window time.Duration
}

func (e DeniedError) Error() string {
	return fmt.Sprintf(
		"breaker: %s scope %q exceeded %d events per %s",
		e.Scope,
		e.Key,
		e.Limit,
		e.Window,
	)
}

func (e DeniedError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(map[string]any{
			"scope":     string(e.Scope),
			"scope_key": e.Key,
			"count":     e.Count,
			"limit":     e.Limit,
			"window_ms": e.Window.Milliseconds(),
		})
}

type Options struct {
	Store    core.CounterStore
	Entity   ScopePolicy
	Tenant   ScopePolicy
	Observer core.Observer
}

// Breaker counts events per scope key and refuses them once a window's ceiling is passed.
type Breaker struct {
	store    core.CounterStore
	entity   ScopePolicy
	tenant   ScopePolicy
	observer core.Observer
}

func New(opts Options) *Breaker {
	store := opts.Store
	if store == nil {
		store = NewMemoryCounterStore(MemoryCounterStoreOptions{})
	}
	defaults := core.DefaultConfig().Breaker
	entity := normalizePolicy(opts.Entity, ScopePolicy{Limit: defaults.EntityLimit, Window: defaults.Window()})
	tenant := normalizePolicy(opts.Tenant, ScopePolicy{Limit: defaults.TenantLimit, Window: defaults.Window()})
	return &Breaker{
		store:    store,
		entity:   entity,
		tenant:   tenant,
		observer: opts.Observer,
	}
}

// NewFromConfig builds a breaker with the configured ceilings.
func NewFromConfig(cfg core.BreakerConfig, store core.CounterStore, observer core.Observer) *Breaker {
	return New(Options{
		Store:    store,
		Entity:   ScopePolicy{Limit: cfg.EntityLimit, Window: cfg.Window()},
		Tenant:   ScopePolicy{Limit: cfg.TenantLimit, Window: cfg.Window()},
		Observer: observer,
	})
}

// Allow records one hit against scopeKey and reports whether it fits the ceiling.
// Counter store failures fail open.
func (b *Breaker) Allow(ctx context.Context, scopeKey string) (Decision, error) {
	scope, policy, err := b.policyFor(scopeKey)
	if err != nil {
		return Decision{Key: scopeKey}, err
	}
	decision := Decision{
		Scope:   scope,
		Key:     scopeKey,
		Allowed: true,
		Limit:   policy.Limit,
		Window:  policy.Window,
	}
	count, err := b.store.Increment(ctx, scopeKey, policy.Window)
	if err != nil {
		b.observer.Warn(ctx, "breaker counter unavailable, allowing event", map[string]any{
			"scope_key": scopeKey,
			"error":     err.Error(),
		})
		return decision, nil
	}
	decision.Count = count
	if count <= int64(policy.Limit) {
		return decision, nil
	}
	decision.Allowed = false
	decision.Tripped = count == int64(policy.Limit)+1
	b.observer.Count(ctx, core.MetricBreakerDenied, 1, map[string]string{"scope": string(scope)})
	return decision, nil
}

// Check evaluates the entity scope and then the tenant scope, stopping at the first denial.
func (b *Breaker) Check(ctx context.Context, tenantID string, entityID string) (Decision, error) {
	decision, err := b.Allow(ctx, EntityScopeKey(entityID))
	if err != nil || !decision.Allowed {
		return decision, err
	}
	return b.Allow(ctx, TenantScopeKey(tenantID))
}

func (b *Breaker) IsExpired(ctx context.Context, scopeKey string) (bool, error) {
	return b.store.IsExpired(ctx, scopeKey)
}

func (b *Breaker) Reset(ctx context.Context, scopeKey string) error {
	return b.store.Reset(ctx, scopeKey)
}

func (b *Breaker) policyFor(scopeKey string) (Scope, ScopePolicy, error) {
	switch {
	case strings.HasPrefix(scopeKey, entityScopePrefix) && len(scopeKey) > len(entityScopePrefix):
		return ScopeEntity, b.entity, nil
	case strings.HasPrefix(scopeKey, tenantScopePrefix) && len(scopeKey) > len(tenantScopePrefix):
		return ScopeTenant, b.tenant, nil
	default:
		return "", ScopePolicy{}, fmt.Errorf("%w: %q", ErrUnknownScope, scopeKey)
	}
}

func normalizePolicy(policy ScopePolicy, fallback ScopePolicy) ScopePolicy {
	if policy.Limit <= 0 {
		policy.Limit = fallback.Limit
	}
	if policy.Window <= 0 {
		policy.Window = fallback.Window
	}
	return policy
}
