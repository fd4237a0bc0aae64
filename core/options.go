package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// LayerProvider exposes the raw values behind a loaded Config so keys set
// explicitly to zero are not mistaken for unset ones.
type LayerProvider interface {
	LoadLayer(ctx context.Context) (map[string]any, error)
}

// LayerResolver merges a raw config layer instead of a decoded Config.
type LayerResolver interface {
	ResolveLayer(defaults Config, loaded map[string]any, runtime Config) (Config, error)
}

// StaticRawConfigLoader serves a fixed map, typically decoded from a config file.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	raw, err := p.LoadLayer(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p *CfgxConfigProvider) LoadLayer(ctx context.Context) (map[string]any, error) {
	if p == nil || p.Loader == nil {
		return map[string]any{}, nil
	}
	raw, err := p.Loader.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

type GoOptionsResolver struct{}

func (r GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	return r.ResolveLayer(defaults, configToLayerMap(loaded, false), runtime)
}

// ResolveLayer keeps every key present in loaded, zero values included.
// Runtime zero values are treated as unset.
func (GoOptionsResolver) ResolveLayer(defaults Config, loadedLayer map[string]any, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	if loadedLayer == nil {
		loadedLayer = map[string]any{}
	}
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig loads the configured layer and merges it between defaults and runtime values.
func ResolveConfig(ctx context.Context, runtime Config, provider ConfigProvider, resolver OptionsResolver) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, fmt.Errorf("core: load config: %w", err)
	}
	layerProvider, hasLayer := provider.(LayerProvider)
	layerResolver, mergesLayer := resolver.(LayerResolver)
	if hasLayer && mergesLayer {
		raw, err := layerProvider.LoadLayer(ctx)
		if err != nil {
			return Config{}, fmt.Errorf("core: load config: %w", err)
		}
		return layerResolver.ResolveLayer(defaults, raw, runtime)
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	breaker := map[string]any{}
	if includeZero || cfg.Breaker.EntityLimit > 0 {
		breaker["entity_limit"] = cfg.Breaker.EntityLimit
	}
	if includeZero || cfg.Breaker.TenantLimit > 0 {
		breaker["tenant_limit"] = cfg.Breaker.TenantLimit
	}
	if includeZero || cfg.Breaker.WindowSeconds > 0 {
		breaker["window_seconds"] = cfg.Breaker.WindowSeconds
	}
	if len(breaker) > 0 {
		layer["breaker"] = breaker
	}

	if includeZero || cfg.Cache.TargetTTLSeconds > 0 {
		layer["cache"] = map[string]any{
			"target_ttl_seconds": cfg.Cache.TargetTTLSeconds,
		}
	}

	delivery := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Delivery.UserAgent) != "" {
		delivery["user_agent"] = cfg.Delivery.UserAgent
	}
	if includeZero || cfg.Delivery.TimeoutSeconds > 0 {
		delivery["timeout_seconds"] = cfg.Delivery.TimeoutSeconds
	}
	if includeZero || cfg.Delivery.HealthTimeoutSeconds > 0 {
		delivery["health_timeout_seconds"] = cfg.Delivery.HealthTimeoutSeconds
	}
	if includeZero || cfg.Delivery.MaxRetries > 0 {
		delivery["max_retries"] = cfg.Delivery.MaxRetries
	}
	if includeZero || len(cfg.Delivery.BackoffSeconds) > 0 {
		delivery["backoff_seconds"] = append([]int(nil), cfg.Delivery.BackoffSeconds...)
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	queue := map[string]any{}
	if includeZero || cfg.Queue.Workers > 0 {
		queue["workers"] = cfg.Queue.Workers
	}
	if includeZero || cfg.Queue.Buffer > 0 {
		queue["buffer"] = cfg.Queue.Buffer
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	database := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Database.Driver) != "" {
		database["driver"] = cfg.Database.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Database.DSN) != "" {
		database["dsn"] = cfg.Database.DSN
	}
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	if len(database) > 0 {
		layer["database"] = database
	}

	redis := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Redis.URL) != "" {
		redis["url"] = cfg.Redis.URL
	}
	if includeZero || strings.TrimSpace(cfg.Redis.KeyPrefix) != "" {
		redis["key_prefix"] = cfg.Redis.KeyPrefix
	}
	if len(redis) > 0 {
		layer["redis"] = redis
	}

	httpLayer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.HTTP.Addr) != "" {
		httpLayer["addr"] = cfg.HTTP.Addr
	}
	if includeZero || cfg.HTTP.ShutdownTimeoutSecs > 0 {
		httpLayer["shutdown_timeout_seconds"] = cfg.HTTP.ShutdownTimeoutSecs
	}
	if len(httpLayer) > 0 {
		layer["http"] = httpLayer
	}
	return layer
}
