package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/festpass/registration-backend/pkg/jobs"
	"github.com/festpass/registration-backend/pkg/rabbit"
)

const notificationJobType = "notification"

// DeadLetterStore persists notifications that exhausted their retries
type DeadLetterStore interface {
	Create(ctx context.Context, dl *models.NotificationDeadLetter) error
}

// NotificationTransport moves notification jobs to the delivery workers
type NotificationTransport interface {
	Start(ctx context.Context) error
	Enqueue(ctx context.Context, job jobs.Job) error
	Drain(ctx context.Context) error
	Stop()
}

// NotificationDispatcher renders and sends emails off the request path.
// Dispatch only enqueues; delivery failures are retried, then dead-lettered and logged.
type NotificationDispatcher struct {
	transport   NotificationTransport
	renderer    *NotificationRenderer
	mailer      Mailer
	deadLetters DeadLetterStore
	metrics     *MetricsService
	logger      *logrus.Logger
	sendTimeout time.Duration
}

// NewNotificationDispatcher wires the configured transport to the mailer
func NewNotificationDispatcher(
	cfg config.NotifyConfig,
	renderer *NotificationRenderer,
	mailer Mailer,
	deadLetters DeadLetterStore,
	metrics *MetricsService,
	logger *logrus.Logger,
) (*NotificationDispatcher, error) {
	d := &NotificationDispatcher{
		renderer:    renderer,
		mailer:      mailer,
		deadLetters: deadLetters,
		metrics:     metrics,
		logger:      logger,
		sendTimeout: 30 * time.Second,
	}

	switch cfg.Transport {
	case "rabbitmq":
		client, err := rabbit.NewClient(cfg.RabbitMQURL, cfg.RabbitMQQueue, cfg.Workers, logger)
		if err != nil {
			return nil, err
		}
		d.transport = newRabbitTransport(client, cfg, d.Deliver, d.DeadLetter, logger)
	default:
		d.transport = newMemoryTransport(cfg, d.Deliver, d.DeadLetter, logger)
	}

	return d, nil
}

// Start begins consuming jobs
func (d *NotificationDispatcher) Start(ctx context.Context) error {
	return d.transport.Start(ctx)
}

// Drain blocks until queued notifications have been delivered or dead-lettered
func (d *NotificationDispatcher) Drain(ctx context.Context) error {
	return d.transport.Drain(ctx)
}

// Stop shuts the workers down
func (d *NotificationDispatcher) Stop() {
	d.transport.Stop()
}

// Dispatch validates and enqueues a notification. It never blocks on delivery.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	if !n.Type.IsValid() {
		return fmt.Errorf("unknown notification type: %s", n.Type)
	}
	if n.To == "" {
		return errors.New("notification recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	job := jobs.Job{
		ID:      n.ID,
		Type:    notificationJobType,
		Payload: n,
	}
	if err := d.transport.Enqueue(ctx, job); err != nil {
		d.metrics.RecordNotification(string(n.Type), "enqueue_failed")
		return fmt.Errorf("failed to enqueue notification %s: %w", n.ID, err)
	}

	d.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"type":            n.Type,
		"to":              n.To,
	}).Debug("Notification queued")
	return nil
}

// Deliver renders and sends one job; an error asks the transport to retry
func (d *NotificationDispatcher) Deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}

	msg, err := d.renderer.Render(n)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.mailer.Send(sendCtx, msg); err != nil {
		d.metrics.RecordNotification(string(n.Type), "failed")
		return err
	}

	d.metrics.RecordNotification(string(n.Type), "sent")
	return nil
}

// DeadLetter logs the failure and records it; storage errors are only logged.
func (d *NotificationDispatcher) DeadLetter(ctx context.Context, job jobs.Job, cause error) {
	d.metrics.RecordNotification(notificationTypeOf(job), "dead_lettered")

	entry := d.logger.WithFields(logrus.Fields{
		"notification_id": job.ID,
		"attempts":        job.Attempt,
	}).WithError(cause)

	n, ok := job.Payload.(models.Notification)
	if !ok {
		entry.Error("Dropping notification with unreadable payload")
		return
	}

	entry.WithFields(logrus.Fields{"type": n.Type, "to": n.To}).Error("Notification dead-lettered")

	if d.deadLetters == nil {
		return
	}

	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	// the worker context may already be cancelled during shutdown
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.deadLetters.Create(storeCtx, &models.NotificationDeadLetter{
		Recipient: n.To,
		Type:      n.Type,
		Payload:   models.JSONB(n.Data),
		Attempts:  job.Attempt,
		LastError: lastErr,
	}); err != nil {
		d.logger.WithError(err).WithField("notification_id", job.ID).Error("Failed to record notification dead letter")
	}
}

func notificationTypeOf(job jobs.Job) string {
	if n, ok := job.Payload.(models.Notification); ok {
		return string(n.Type)
	}
	return "unknown"
}

// memoryTransport runs jobs on an in-process worker pool
type memoryTransport struct {
	queue *jobs.Queue
}

func newMemoryTransport(cfg config.NotifyConfig, handler jobs.Handler, onDead jobs.DeadLetterFunc, logger *logrus.Logger) *memoryTransport {
	return &memoryTransport{
		queue: jobs.NewQueue("notifications", handler, jobs.QueueConfig{
			Workers:      cfg.Workers,
			BufferSize:   cfg.BufferSize,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
			OnDeadLetter: onDead,
			Logger:       logger,
		}),
	}
}

func (t *memoryTransport) Start(ctx context.Context) error {
	t.queue.Start(ctx)
	return nil
}

func (t *memoryTransport) Enqueue(_ context.Context, job jobs.Job) error {
	return t.queue.Enqueue(job)
}

func (t *memoryTransport) Drain(ctx context.Context) error {
	return t.queue.Drain(ctx)
}

func (t *memoryTransport) Stop() {
	t.queue.Stop()
}

// notificationBroker is the subset of the RabbitMQ client the transport drives
type notificationBroker interface {
	Publish(ctx context.Context, body []byte, attempt int) error
	PublishDelayed(ctx context.Context, body []byte, attempt int, delay time.Duration) error
	Consume(ctx context.Context, handler func(context.Context, rabbit.Message) error) error
	Close()
}

// rabbitTransport publishes notifications to a durable queue. Failed deliveries
// go to the retry queue with an incremented x-attempt header and a TTL equal to
// the backoff delay; the original delivery is acked straight away.
type rabbitTransport struct {
	client     notificationBroker
	handler    jobs.Handler
	onDead     jobs.DeadLetterFunc
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger
	cancel     context.CancelFunc
}

func newRabbitTransport(client notificationBroker, cfg config.NotifyConfig, handler jobs.Handler, onDead jobs.DeadLetterFunc, logger *logrus.Logger) *rabbitTransport {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &rabbitTransport{
		client:     client,
		handler:    handler,
		onDead:     onDead,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (t *rabbitTransport) Start(ctx context.Context) error {
	ctx, t.cancel = context.WithCancel(ctx)
	return t.client.Consume(ctx, t.consume)
}

func (t *rabbitTransport) Enqueue(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	// publishing must not be tied to the HTTP request lifetime
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return t.client.Publish(pubCtx, body, job.Attempt)
}

func (t *rabbitTransport) requeue(ctx context.Context, job jobs.Job, delay time.Duration) error {
	body, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return t.client.PublishDelayed(pubCtx, body, job.Attempt, delay)
}

// Drain is a no-op; unacked messages stay on the broker
func (t *rabbitTransport) Drain(context.Context) error {
	return nil
}

func (t *rabbitTransport) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.client.Close()
}

func (t *rabbitTransport) consume(ctx context.Context, msg rabbit.Message) error {
	var n models.Notification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		// poison message: ack and drop
		t.logger.WithError(err).Error("Discarding undecodable notification message")
		return nil
	}

	job := jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n, Attempt: msg.Attempt}

	err := t.handler(ctx, job)
	if err == nil {
		return nil
	}

	job.Attempt++
	if job.Attempt > t.maxRetries {
		t.onDead(ctx, job, err)
		return nil
	}

	delay := jobs.Backoff(t.retryDelay, job.Attempt)
	if rerr := t.requeue(ctx, job, delay); rerr != nil {
		t.logger.WithError(rerr).WithField("notification_id", job.ID).Error("Failed to schedule notification retry")
		t.onDead(ctx, job, fmt.Errorf("%w (retry publish failed: %v)", err, rerr))
		return nil
	}

	t.logger.WithError(err).WithFields(logrus.Fields{
		"notification_id": job.ID,
		"attempt":         job.Attempt,
		"retry_in":        delay.String(),
	}).Warn("Notification delivery failed, retrying")
	return nil
}
