package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueueConfig sizes a Queue
type QueueConfig struct {
	Size        int
	Workers     int
	SendTimeout time.Duration
}

// Queue is a Mailer that hands emails to background workers.
// Send only enqueues: it never blocks and fails fast with ErrQueueFull or
// ErrQueueClosed. Delivery errors are logged by the workers.
type Queue struct {
	next    Mailer
	cfg     QueueConfig
	log     *zap.Logger
	metrics *Metrics

	mu      sync.RWMutex
	jobs    chan Email
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue delivering through next. metrics may be nil.
func NewQueue(next Mailer, cfg QueueConfig, logger *zap.Logger, metrics *Metrics) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Queue{
		next:    next,
		cfg:     cfg,
		log:     logger,
		metrics: metrics,
		jobs:    make(chan Email, cfg.Size),
	}
}

// Start launches the worker goroutines. Calling it again has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.log.Info("mail queue started",
		zap.Int("workers", q.cfg.Workers),
		zap.Int("size", q.cfg.Size))
}

// Stop rejects new emails, lets the workers drain what is queued and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("mail queue stopped")
}

// Send enqueues email for delivery
func (q *Queue) Send(ctx context.Context, email Email) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.metrics.recordDropped()
		return ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.jobs <- email:
		q.metrics.setQueueDepth(len(q.jobs))
		return nil
	default:
		q.metrics.recordDropped()
		return ErrQueueFull
	}
}

// Len returns the number of queued emails
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) run() {
	defer q.wg.Done()

	for email := range q.jobs {
		q.metrics.setQueueDepth(len(q.jobs))
		q.deliver(email)
	}
}

func (q *Queue) deliver(email Email) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SendTimeout)
	defer cancel()

	if err := q.next.Send(ctx, email); err != nil {
		q.log.Error("failed to deliver queued email",
			zap.String("subject", email.Subject),
			zap.Int("recipients", len(email.Recipients())),
			zap.String("error_category", category(err)),
			zap.Error(err))
		return
	}
	q.log.Debug("queued email delivered", zap.String("subject", email.Subject))
}
