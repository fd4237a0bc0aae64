package targets

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const targetsCacheKeyPrefix = "leadhooks::targets::v1"

// CacheKey returns the cache key for a tenant's active targets:
// leadhooks::targets::v1::<tenant_id> with the tenant segment URL-path escaped.
func CacheKey(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("targets: tenant id is required")
	}
	return targetsCacheKeyPrefix + "::" + url.PathEscape(tenantID), nil
}

// CachedResolver reads a tenant's active targets once per cache TTL.
// Registry writes are not propagated; readers may see a stale list until the entry expires.
type CachedResolver struct {
	store core.TargetStore
	cache repositorycache.CacheService
}

func NewCachedResolver(store core.TargetStore, cacheService repositorycache.CacheService) (*CachedResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("targets: target store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("targets: cache service is required")
	}
	return &CachedResolver{store: store, cache: cacheService}, nil
}

// NewCacheService builds the in-process cache used for target lists.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

func (r *CachedResolver) Resolve(ctx context.Context, tenantID string) ([]core.WebhookTarget, error) {
	if r == nil || r.store == nil || r.cache == nil {
		return nil, fmt.Errorf("targets: cached resolver is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	cacheKey, err := CacheKey(tenantID)
	if err != nil {
		return nil, err
	}

	list, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) ([]core.WebhookTarget, error) {
		fetched, fetchErr := r.store.ListActive(ctx, tenantID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		out := make([]core.WebhookTarget, 0, len(fetched))
		for _, target := range fetched {
			target = core.NormalizeTarget(target)
			if !target.IsActive || target.TenantID != tenantID {
				continue
			}
			out = append(out, target)
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("targets: resolve tenant %q: %w", tenantID, err)
	}
	return core.CloneTargets(list), nil
}

// Invalidate drops a tenant's cached list so the next Resolve reads the store.
func (r *CachedResolver) Invalidate(ctx context.Context, tenantID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("targets: cached resolver is not configured")
	}
	cacheKey, err := CacheKey(tenantID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}

var _ core.TargetResolver = (*CachedResolver)(nil)
