package leadhooks

import (
	"net/http"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/query"
	sqlstore "github.com/goliatone/go-leadhooks/store/sql"
	"github.com/goliatone/go-leadhooks/trigger"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// AuditStore records lead activity and lists it back per lead.
type AuditStore interface {
	core.AuditRecorder
	query.AuditReader
}

type Option func(*options)

type options struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metrics         core.MetricsRecorder
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	targetStore     core.TargetStore
	auditRecorder   core.AuditRecorder
	auditReader     query.AuditReader
	counterStore    core.CounterStore
	cacheService    repositorycache.CacheService
	httpClient      *http.Client
	policies        map[core.CreationSource]trigger.SourcePolicy
	now             func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *options) {
		o.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *options) {
		o.optionsResolver = resolver
	}
}

// WithTargetStore sets the webhook registry the resolver reads through its cache.
func WithTargetStore(store core.TargetStore) Option {
	return func(o *options) {
		o.targetStore = store
	}
}

func WithAuditStore(store AuditStore) Option {
	return func(o *options) {
		if store == nil {
			return
		}
		o.auditRecorder = store
		o.auditReader = store
	}
}

// WithRepositoryFactory uses the SQL target and audit stores.
func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(o *options) {
		if factory == nil {
			return
		}
		if store := factory.TargetStore(); store != nil {
			o.targetStore = store
		}
		if store := factory.AuditStore(); store != nil {
			o.auditRecorder = store
			o.auditReader = store
		}
	}
}

// WithCounterStore replaces the in-process breaker counters, e.g. with the redis store.
func WithCounterStore(store core.CounterStore) Option {
	return func(o *options) {
		o.counterStore = store
	}
}

func WithCacheService(cacheService repositorycache.CacheService) Option {
	return func(o *options) {
		o.cacheService = cacheService
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func WithSourcePolicies(policies map[core.CreationSource]trigger.SourcePolicy) Option {
	return func(o *options) {
		o.policies = policies
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
