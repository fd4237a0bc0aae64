package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	job "github.com/goliatone/go-job"
	goqueue "github.com/goliatone/go-job/queue"
	"github.com/google/uuid"
)

var (
	ErrQueueClosed    = errors.New("queue: closed")
	ErrQueueFull      = errors.New("queue: full")
	ErrAlreadySettled = errors.New("queue: delivery already settled")
)

type DeadLetter struct {
	Message  *job.ExecutionMessage
	Attempts int
	Reason   string
	At       time.Time
}

type envelope struct {
	msg     *job.ExecutionMessage
	attempt int
}

// MemoryQueue is an in-process go-job queue. Nothing survives a restart.
//
// Enqueue never blocks: new messages beyond capacity are rejected with
// ErrQueueFull. Retries are always accepted so a settled delivery is never lost.
type MemoryQueue struct {
	capacity  int
	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time

	mu          sync.Mutex
	ready       []envelope
	timers      map[*time.Timer]struct{}
	deadLetters []DeadLetter
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{
		capacity: buffer,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		timers:   map[*time.Timer]struct{}{},
	}
}

// Enqueue accepts msg or fails immediately. The receipt's dispatch id is the
// message idempotency key when set.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (goqueue.EnqueueReceipt, error) {
	if msg == nil {
		return goqueue.EnqueueReceipt{}, fmt.Errorf("queue: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return goqueue.EnqueueReceipt{}, fmt.Errorf("queue: job id is required")
	}
	if err := ctx.Err(); err != nil {
		return goqueue.EnqueueReceipt{}, err
	}
	if q.closed() {
		return goqueue.EnqueueReceipt{}, ErrQueueClosed
	}
	q.mu.Lock()
	if len(q.ready) >= q.capacity {
		q.mu.Unlock()
		return goqueue.EnqueueReceipt{}, fmt.Errorf("%w: %d messages waiting", ErrQueueFull, q.capacity)
	}
	q.ready = append(q.ready, envelope{msg: msg, attempt: 1})
	q.mu.Unlock()
	q.notify()

	dispatchID := strings.TrimSpace(msg.IdempotencyKey)
	if dispatchID == "" {
		dispatchID = uuid.NewString()
	}
	return goqueue.EnqueueReceipt{DispatchID: dispatchID, EnqueuedAt: q.now()}, nil
}

// Dequeue blocks until a message is ready, ctx ends or the queue closes.
func (q *MemoryQueue) Dequeue(ctx context.Context) (goqueue.Delivery, error) {
	for {
		if q.closed() {
			return nil, ErrQueueClosed
		}
		if env, ok := q.pop(); ok {
			return &memoryDelivery{queue: q, env: env}, nil
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		}
	}
}

// Pending counts ready messages plus delayed retries.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.timers)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

// Close stops delayed retries and wakes blocked consumers.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		for timer := range q.timers {
			timer.Stop()
		}
		q.timers = map[*time.Timer]struct{}{}
		q.mu.Unlock()
		close(q.done)
	})
	return nil
}

func (q *MemoryQueue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *MemoryQueue) requeue(env envelope, delay time.Duration) {
	if q.closed() {
		return
	}
	if delay <= 0 {
		q.push(env)
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.push(env)
	})
	q.timers[timer] = struct{}{}
}

// push appends a retry regardless of capacity.
func (q *MemoryQueue) push(env envelope) {
	if q.closed() {
		return
	}
	q.mu.Lock()
	q.ready = append(q.ready, env)
	q.mu.Unlock()
	q.notify()
}

func (q *MemoryQueue) pop() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return envelope{}, false
	}
	env := q.ready[0]
	q.ready[0] = envelope{}
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		q.notify()
	}
	return env, true
}

func (q *MemoryQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) deadLetter(env envelope, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, DeadLetter{
		Message:  env.msg,
		Attempts: env.attempt,
		Reason:   strings.TrimSpace(reason),
		At:       q.now(),
	})
}

type memoryDelivery struct {
	queue   *MemoryQueue
	env     envelope
	settled atomic.Bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.env.msg
}

// Attempt is 1 for the first delivery of a message.
func (d *memoryDelivery) Attempt() int {
	return d.env.attempt
}

func (d *memoryDelivery) Ack(context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts goqueue.NackOptions) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	switch opts.Disposition {
	case goqueue.NackDispositionRetry, "":
		d.queue.requeue(envelope{msg: d.env.msg, attempt: d.env.attempt + 1}, opts.Delay)
	case goqueue.NackDispositionDeadLetter, goqueue.NackDispositionFailed:
		d.queue.deadLetter(d.env, opts.Reason)
	}
	return nil
}

var (
	_ goqueue.Enqueuer = (*MemoryQueue)(nil)
	_ goqueue.Dequeuer = (*MemoryQueue)(nil)
	_ goqueue.Delivery = (*memoryDelivery)(nil)
)
