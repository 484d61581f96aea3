package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned by Enqueue when the buffer has no room
var ErrQueueFull = errors.New("queue is full")

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// DeadLetterFunc receives a job that failed on its final attempt.
type DeadLetterFunc func(context.Context, Job, error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration // base delay, doubled on every further attempt
	OnDeadLetter DeadLetterFunc
	Logger       *logrus.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers      int
	maxRetries   int
	retryDelay   time.Duration
	onDeadLetter DeadLetterFunc
	logger       *logrus.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	// jobs accepted but not yet finished or dead-lettered, retries included
	outstanding atomic.Int64
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Queue{
		name:         name,
		handler:      handler,
		workers:      cfg.Workers,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		onDeadLetter: cfg.OnDeadLetter,
		logger:       cfg.Logger,
		jobs:         make(chan Job, cfg.BufferSize),
	}
}

// Backoff returns the wait before the given retry attempt (1-based): base, 2*base, 4*base...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	return base * time.Duration(1<<(attempt-1))
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.WithFields(logrus.Fields{"queue": q.name, "workers": q.workers}).Info("Queue started")
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.WithField("queue", q.name).Info("Queue stopped")
}

// Drain waits until every accepted job has finished or been dead-lettered.
// Call it before Stop to avoid dropping buffered jobs.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for q.outstanding.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("queue %s: %d jobs still pending: %w", q.name, q.outstanding.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Enqueue pushes a job onto the queue without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, err)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	// counted before the send so a worker can never finish the job first
	var counted int64
	if job.Attempt == 0 {
		counted = 1
		q.outstanding.Add(counted)
	}

	select {
	case <-ctx.Done():
		q.outstanding.Add(-counted)
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		q.outstanding.Add(-counted)
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	defer func() {
		if p := recover(); p != nil {
			q.handleFailure(job, fmt.Errorf("job panicked: %v", p))
		}
	}()

	if err := q.handler(q.ctx, job); err != nil {
		q.handleFailure(job, err)
		return
	}
	q.outstanding.Add(-1)
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	fields := logrus.Fields{"queue": q.name, "job_id": job.ID, "type": job.Type, "attempt": job.Attempt}

	if job.Attempt > q.maxRetries {
		q.logger.WithFields(fields).WithError(err).Error("Job exceeded retries, dead-lettering")
		if q.onDeadLetter != nil {
			q.onDeadLetter(q.ctx, job, err)
		}
		q.outstanding.Add(-1)
		return
	}

	delay := Backoff(q.retryDelay, job.Attempt)
	q.logger.WithFields(fields).WithError(err).WithField("retry_in", delay.String()).Warn("Job failed, retrying")

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.WithFields(fields).WithError(err).Error("Failed to requeue job")
				if q.onDeadLetter != nil {
					q.onDeadLetter(q.ctx, j, err)
				}
				q.outstanding.Add(-1)
			}
		}
	}(job)
}
