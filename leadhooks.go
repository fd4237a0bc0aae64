package leadhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-leadhooks/adapters/gocommand"
	"github.com/goliatone/go-leadhooks/adapters/gojob"
	"github.com/goliatone/go-leadhooks/adapters/gologger"
	"github.com/goliatone/go-leadhooks/breaker"
	leadcommand "github.com/goliatone/go-leadhooks/command"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/intake"
	leadquery "github.com/goliatone/go-leadhooks/query"
	"github.com/goliatone/go-leadhooks/queue"
	"github.com/goliatone/go-leadhooks/targets"
	"github.com/goliatone/go-leadhooks/trigger"
	"github.com/goliatone/go-leadhooks/webhooks"

	gocmd "github.com/goliatone/go-command"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service is the assembled dispatch pipeline: the trigger and intake run in the
// caller's request, delivery runs on the worker pool.
//
// Commands and queries are subscribed on the process wide go-command dispatcher,
// so only one Service should be open per process.
type Service struct {
	config   core.Config
	observer core.Observer

	breaker   *breaker.Breaker
	resolver  *targets.CachedResolver
	queue     *queue.MemoryQueue
	pool      *queue.WorkerPool
	deliverer *webhooks.BatchDeliverer
	health    *webhooks.HealthChecker
	trigger   *trigger.Trigger
	intake    *intake.Intake
	bus       *gocommand.Bus

	mu      sync.Mutex
	started bool
	closed  bool
}

// New resolves the configuration and wires every component. runtime values win
// over the config provider, which wins over defaults.
func New(ctx context.Context, runtime Config, opts ...Option) (*Service, error) {
	cfgOpts := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfgOpts)
		}
	}
	if cfgOpts.targetStore == nil {
		return nil, fmt.Errorf("leadhooks: target store is required")
	}

	cfg, err := core.ResolveConfig(ctx, runtime, cfgOpts.configProvider, cfgOpts.optionsResolver)
	if err != nil {
		return nil, err
	}

	observer := func(name string) core.Observer {
		return core.NewObserver(name, cfgOpts.loggerProvider, cfgOpts.logger, cfgOpts.metrics)
	}

	svc := &Service{
		config:   cfg,
		observer: observer("leadhooks"),
	}

	svc.breaker = breaker.NewFromConfig(cfg.Breaker, cfgOpts.counterStore, observer("leadhooks.breaker"))

	cacheService := cfgOpts.cacheService
	if cacheService == nil {
		cacheService, err = targets.NewCacheService(cfg.Cache.TargetTTL())
		if err != nil {
			return nil, fmt.Errorf("leadhooks: target cache: %w", err)
		}
	}
	svc.resolver, err = targets.NewCachedResolver(cfgOpts.targetStore, cacheService)
	if err != nil {
		return nil, err
	}

	svc.queue = queue.NewMemoryQueue(cfg.Queue.Buffer)
	svc.deliverer = webhooks.NewBatchDeliverer(webhooks.DelivererOptions{
		Client:    cfgOpts.httpClient,
		UserAgent: cfg.Delivery.UserAgent,
		Timeout:   cfg.Delivery.Timeout(),
		Observer:  observer("leadhooks.delivery"),
		Now:       cfgOpts.now,
	})
	_, _, _, workerLogger := gologger.ResolveForJob("leadhooks.worker", cfgOpts.loggerProvider, cfgOpts.logger)
	svc.pool, err = queue.NewWorkerPool(queue.PoolOptions{
		Dequeuer: svc.queue,
		Workers:  cfg.Queue.Workers,
		Policy:   gojob.RetryPolicyFromConfig(cfg.Delivery),
		Backoff:  webhooks.NewRetryPolicy(cfg.Delivery.Backoff()),
		Observer: observer("leadhooks.worker"),
		Logger:   workerLogger,
	})
	if err != nil {
		return nil, err
	}
	if err := svc.pool.Register(gojob.JobIDDeliverBatch, gojob.NewBatchHandler(svc.deliverer)); err != nil {
		return nil, err
	}
	svc.health = webhooks.NewHealthChecker(cfgOpts.httpClient, cfg.Delivery.UserAgent, cfg.Delivery.HealthTimeout())

	enqueuer := gojob.NewBatchEnqueuer(svc.queue)
	svc.trigger, err = trigger.New(trigger.Options{
		Gate:     svc.breaker,
		Resolver: svc.resolver,
		Enqueuer: enqueuer,
		Audit:    cfgOpts.auditRecorder,
		Policies: cfgOpts.policies,
		Observer: observer("leadhooks.trigger"),
		Now:      cfgOpts.now,
	})
	if err != nil {
		return nil, err
	}
	svc.intake, err = intake.New(intake.Options{
		Enqueuer: enqueuer,
		Notifier: svc.trigger,
		Observer: observer("leadhooks.intake"),
		Now:      cfgOpts.now,
	})
	if err != nil {
		return nil, err
	}

	if err := svc.registerHandlers(cfgOpts); err != nil {
		svc.bus.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) registerHandlers(cfgOpts options) error {
	s.bus = gocommand.NewBus(gocmd.NewRegistry())
	if err := gocommand.RegisterCommand(s.bus, leadcommand.NewLeadCreatedCommand(s.trigger)); err != nil {
		return err
	}
	if err := gocommand.RegisterCommand(s.bus, leadcommand.NewLeadUpdatedCommand(s.trigger)); err != nil {
		return err
	}
	if err := gocommand.RegisterCommand(s.bus, leadcommand.NewFormSubmittedCommand(s.intake)); err != nil {
		return err
	}
	if err := gocommand.RegisterQuery(s.bus, leadquery.NewListTargetsQuery(cfgOpts.targetStore)); err != nil {
		return err
	}
	if err := gocommand.RegisterQuery(s.bus, leadquery.NewListLeadActivityQuery(cfgOpts.auditReader)); err != nil {
		return err
	}
	if err := gocommand.RegisterQuery(s.bus, leadquery.NewCheckTargetQuery(s.health)); err != nil {
		return err
	}
	return s.bus.Initialize()
}

func (s *Service) Config() Config {
	return s.config
}

func (s *Service) Trigger() *trigger.Trigger {
	return s.trigger
}

func (s *Service) Intake() *intake.Intake {
	return s.intake
}

func (s *Service) Resolver() *targets.CachedResolver {
	return s.resolver
}

func (s *Service) Breaker() *breaker.Breaker {
	return s.breaker
}

// Queue exposes the delivery queue, mostly for dead letter inspection.
func (s *Service) Queue() *queue.MemoryQueue {
	return s.queue
}

// Start launches the delivery workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("leadhooks: service is closed")
	}
	if s.started {
		return nil
	}
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	s.started = true
	s.observer.Info(ctx, "leadhooks started", map[string]any{
		"workers": s.config.Queue.Workers,
	})
	return nil
}

// Close drains in-flight deliveries until ctx ends, then releases the queue and
// the dispatcher subscriptions.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.pool.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	s.bus.Close()
	s.observer.Info(ctx, "leadhooks stopped", map[string]any{
		"dead_letters": len(s.queue.DeadLetters()),
	})
	return errors.Join(errs...)
}

// LeadCreated dispatches the lead created command.
func (s *Service) LeadCreated(ctx context.Context, msg leadcommand.LeadCreatedMessage) (trigger.Report, error) {
	return gocommand.DispatchWithResult[leadcommand.LeadCreatedMessage, trigger.Report](ctx, msg)
}

func (s *Service) LeadUpdated(ctx context.Context, msg leadcommand.LeadUpdatedMessage) (trigger.Report, error) {
	return gocommand.DispatchWithResult[leadcommand.LeadUpdatedMessage, trigger.Report](ctx, msg)
}

func (s *Service) SubmitForm(ctx context.Context, msg leadcommand.FormSubmittedMessage) (intake.Result, error) {
	return gocommand.DispatchWithResult[leadcommand.FormSubmittedMessage, intake.Result](ctx, msg)
}

func (s *Service) ListTargets(ctx context.Context, tenantID string) ([]core.WebhookTarget, error) {
	return gocommand.Query[leadquery.ListTargetsMessage, []core.WebhookTarget](ctx, leadquery.ListTargetsMessage{TenantID: tenantID})
}

func (s *Service) LeadActivity(ctx context.Context, leadID string) ([]core.AuditEntry, error) {
	return gocommand.Query[leadquery.ListLeadActivityMessage, []core.AuditEntry](ctx, leadquery.ListLeadActivityMessage{LeadID: leadID})
}

// CheckTarget probes a candidate endpoint without triggering it.
func (s *Service) CheckTarget(ctx context.Context, url string, secret string) (webhooks.HealthReport, error) {
	return gocommand.Query[leadquery.CheckTargetMessage, webhooks.HealthReport](ctx, leadquery.CheckTargetMessage{URL: url, Secret: secret})
}

// InvalidateTargets drops the cached target list of a tenant after a registry write.
func (s *Service) InvalidateTargets(ctx context.Context, tenantID string) error {
	return s.resolver.Invalidate(ctx, tenantID)
}
