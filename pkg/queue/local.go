package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinCast/pkg/logger"
)

// LocalQueue runs jobs on in-process workers. Delays and retries are timers,
// so a waiting message never occupies a worker.
type LocalQueue struct {
	logger   *logger.Logger
	config   *QueueConfig
	observer Observer

	mu        sync.RWMutex
	jobs      map[string]Job
	isRunning bool
	timers    map[*time.Timer]struct{}
	dead      []Message

	msgs   chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocalQueue creates an in-process queue.
func NewLocalQueue(lgr *logger.Logger, config *QueueConfig, observer Observer) *LocalQueue {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		logger:   lgr,
		config:   cfg,
		observer: observer,
		jobs:     make(map[string]Job),
		timers:   make(map[*time.Timer]struct{}),
		msgs:     make(chan Message, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (q *LocalQueue) RegisterJob(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[job.Type()]; exists {
		q.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
}

func (q *LocalQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return fmt.Errorf("queue already running")
	}
	if q.ctx.Err() != nil {
		return fmt.Errorf("queue stopped")
	}
	q.isRunning = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.logger.Info("local queue started", logger.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels pending timers and waits for in-flight jobs.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return q.EnqueueIn(ctx, 0, msgType, payload)
}

func (q *LocalQueue) EnqueueIn(ctx context.Context, delay time.Duration, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.isRunning
	_, known := q.jobs[msgType]
	q.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	if delay > 0 {
		q.after(delay, msg)
		return nil
	}
	return q.push(ctx, msg)
}

// DeadLetters returns a copy of the messages that exhausted their retries.
func (q *LocalQueue) DeadLetters() []Message {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Message, len(q.dead))
	copy(out, q.dead)
	return out
}

func (q *LocalQueue) push(ctx context.Context, msg Message) error {
	select {
	case q.msgs <- msg:
		return nil
	case <-q.ctx.Done():
		return fmt.Errorf("queue not running")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) after(delay time.Duration, msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.isRunning {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		if err := q.push(q.ctx, msg); err != nil {
			q.logger.Warn("delayed message dropped", logger.String("id", msg.ID), logger.Error(err))
		}
	})
	q.timers[t] = struct{}{}
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgs:
			q.process(msg)
		}
	}
}

func (q *LocalQueue) process(msg Message) {
	q.mu.RLock()
	job := q.jobs[msg.Type]
	q.mu.RUnlock()

	start := time.Now()
	err := q.handle(job, msg)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		q.observe(msg.Type, "ok", elapsed)
	case errors.Is(err, context.Canceled):
		q.observe(msg.Type, "cancelled", elapsed)
	default:
		q.observe(msg.Type, "error", elapsed)
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if IsPermanent(err) || msg.Attempts >= q.config.RetryLimit {
			q.mu.Lock()
			q.dead = append(q.dead, msg)
			q.mu.Unlock()
			return
		}
		msg.Attempts++
		q.after(q.config.retryAfter(msg.Attempts), msg)
	}
}

func (q *LocalQueue) handle(job Job, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("job %s panicked: %v", msg.Type, r))
		}
	}()
	return job.Handle(withAttempt(q.ctx, msg.Attempts+1), msg.Payload)
}

func (q *LocalQueue) observe(jobType, result string, elapsed time.Duration) {
	if q.observer != nil {
		q.observer.ObserveJob(jobType, result, elapsed)
	}
}
