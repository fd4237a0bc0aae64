package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-leadhooks/adapters/gojob"
	"github.com/goliatone/go-leadhooks/core"

	job "github.com/goliatone/go-job"
	goqueue "github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const dequeueErrorPause = 250 * time.Millisecond

type Handler func(ctx context.Context, msg *job.ExecutionMessage) error

// Backoff returns the delay before retry number attempt.
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

type attemptCounter interface {
	Attempt() int
}

type PoolOptions struct {
	Dequeuer goqueue.Dequeuer
	Workers  int
	Policy   gojob.RetryPolicy
	Backoff  Backoff
	Hooks    []worker.Hook
	Observer core.Observer
	// Logger receives worker lifecycle records. Nil disables them.
	Logger job.Logger
	Now    func() time.Time
}

type WorkerPool struct {
	dequeuer goqueue.Dequeuer
	workers  int
	policy   gojob.RetryPolicy
	backoff  Backoff
	hooks    []worker.Hook
	observer core.Observer
	logger   job.Logger
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

func NewWorkerPool(opts PoolOptions) (*WorkerPool, error) {
	if opts.Dequeuer == nil {
		return nil, fmt.Errorf("queue: dequeuer is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = core.DefaultConfig().Queue.Workers
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	policy := opts.Policy
	if policy.MaxAttempts <= 0 {
		policy = gojob.RetryPolicyFromConfig(core.DefaultConfig().Delivery)
	}
	hooks := []worker.Hook{gojob.NewWorkerHookAdapter(NewObserverHook(opts.Observer))}
	hooks = append(hooks, opts.Hooks...)
	return &WorkerPool{
		dequeuer: opts.Dequeuer,
		workers:  workers,
		policy:   policy,
		backoff:  opts.Backoff,
		hooks:    hooks,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      now,
		handlers: map[string]Handler{},
	}, nil
}

func (p *WorkerPool) Register(jobID string, handler Handler) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("queue: job id is required")
	}
	if handler == nil {
		return fmt.Errorf("queue: handler for %q is required", jobID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobID] = handler
	return nil
}

// Start launches the workers. Jobs run on a context detached from ctx's
// cancellation so shutdown drains in-flight work instead of aborting it.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("queue: worker pool already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	jobCtx := context.WithoutCancel(ctx)
	p.cancel = cancel
	p.running = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.debug("worker started", "worker", id)
			p.run(loopCtx, jobCtx)
			p.debug("worker stopped", "worker", id)
		}(i + 1)
	}
	return nil
}

// Stop stops dequeuing and waits for in-flight jobs until ctx ends.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) run(loopCtx context.Context, jobCtx context.Context) {
	for {
		delivery, err := p.dequeuer.Dequeue(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			p.observer.Error(loopCtx, "dequeue failed", map[string]any{"error": err.Error()})
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(dequeueErrorPause):
			}
			continue
		}
		if delivery == nil {
			continue
		}
		p.process(jobCtx, delivery)
	}
}

func (p *WorkerPool) process(ctx context.Context, delivery goqueue.Delivery) {
	msg := delivery.Message()
	attempt := 1
	if counter, ok := delivery.(attemptCounter); ok && counter.Attempt() > 0 {
		attempt = counter.Attempt()
	}
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   attempt,
		StartedAt: p.now(),
	}
	p.notify(ctx, event, worker.Hook.OnStart)

	err := p.execute(ctx, msg)
	event.Duration = p.now().Sub(event.StartedAt)
	if err == nil {
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			p.observer.Warn(ctx, "job ack failed", map[string]any{
				"job_id": jobIDOf(msg),
				"error":  ackErr.Error(),
			})
		}
		p.notify(ctx, event, worker.Hook.OnSuccess)
		return
	}

	event.Err = err
	opts := core.Settlement{Requeue: true, Reason: err.Error()}
	if p.backoff != nil {
		opts.Delay = p.backoff.NextDelay(attempt)
	}
	if errors.Is(err, core.ErrPermanentJob) {
		opts.Requeue = false
		opts.DeadLetter = true
	}
	settled, nackErr := gojob.Settle(ctx, delivery, p.policy, opts, attempt)
	if nackErr != nil {
		p.observer.Warn(ctx, "job nack failed", map[string]any{
			"job_id": jobIDOf(msg),
			"error":  nackErr.Error(),
		})
	}
	event.Delay = settled.Delay

	if settled.DeadLetter || !settled.Requeue {
		p.notify(ctx, event, worker.Hook.OnFailure)
		return
	}
	p.notify(ctx, event, worker.Hook.OnRetry)
}

func (p *WorkerPool) execute(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	if msg == nil {
		return fmt.Errorf("%w: delivery carried no message", core.ErrPermanentJob)
	}
	p.mu.RLock()
	handler := p.handlers[strings.TrimSpace(msg.JobID)]
	p.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("%w: no handler for job %q", core.ErrPermanentJob, msg.JobID)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("queue: job %q panicked: %v", msg.JobID, recovered)
		}
	}()
	return handler(ctx, msg)
}

func (p *WorkerPool) notify(ctx context.Context, event worker.Event, fn func(worker.Hook, context.Context, worker.Event)) {
	for _, hook := range p.hooks {
		if hook != nil {
			fn(hook, ctx, event)
		}
	}
}

func (p *WorkerPool) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func jobIDOf(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return strings.TrimSpace(msg.JobID)
}
