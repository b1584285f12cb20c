package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinCast/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// RedisQueue is a Redis list backed queue. Delayed and retried messages wait
// in a sorted set scored by their due time; exhausted messages land in a dead
// letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	observer  Observer
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithObserver reports every handled message to o.
func WithObserver(o Observer) RedisQueueOption {
	return func(r *RedisQueue) {
		r.observer = o
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr,
		config:    config.withDefaults(),
		client:    client,
		jobs:      make(map[string]Job),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "fincast:queue",
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJob registers a single job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode",
			logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}

	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start starts the queue server.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.mu.Lock()
	r.isRunning = true
	r.mu.Unlock()

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.delayedProcessor()
	}
	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.getModeString()))

	return nil
}

// Stop gracefully stops the queue.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.logger.Info("stopping redis queue...")
	r.cancel()
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

func (r *RedisQueue) prepare(msgType string, payload interface{}) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isRunning {
		return nil, fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly {
		if _, exists := r.jobs[msgType]; !exists {
			return nil, fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	msg, err := newMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	data, err := r.prepare(msgType, payload)
	if err != nil {
		return err
	}
	if err := r.client.LPush(ctx, r.getQueueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// EnqueueIn parks the message in the delayed set until delay has passed.
func (r *RedisQueue) EnqueueIn(ctx context.Context, delay time.Duration, msgType string, payload interface{}) error {
	if delay <= 0 {
		return r.Enqueue(ctx, msgType, payload)
	}
	data, err := r.prepare(msgType, payload)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	if err := r.client.ZAdd(ctx, r.getDelayedKey(), redis.Z{Score: float64(due.UnixMilli()), Member: data}).Err(); err != nil {
		return fmt.Errorf("zadd delayed: %w", err)
	}
	return nil
}

// DeadLetters returns up to n messages from the dead letter list, newest first.
func (r *RedisQueue) DeadLetters(ctx context.Context, n int64) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.getDeadLetterKey(), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, s := range raw {
		var m Message
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	queueKey := r.getQueueKey()
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		default:
			r.processNextMessage(queueKey)
		}
	}
}

func (r *RedisQueue) processNextMessage(queueKey string) {
	result, err := r.client.BRPop(r.ctx, time.Second, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}
	r.processMessage(msg)
}

func (r *RedisQueue) processMessage(msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		r.moveToDeadLetterQueue(msg)
		return
	}

	start := time.Now()
	err := job.Handle(withAttempt(r.ctx, msg.Attempts+1), msg.Payload)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.observe(msg.Type, "ok", elapsed)
	case errors.Is(err, context.Canceled):
		r.observe(msg.Type, "cancelled", elapsed)
		r.logger.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", elapsed))
	default:
		r.observe(msg.Type, "error", elapsed)
		r.handleProcessingError(msg, job, err)
	}
}

func (r *RedisQueue) observe(jobType, result string, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveJob(jobType, result, elapsed)
	}
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if IsPermanent(err) || msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("message moved to dead letter queue",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Bool("permanent", IsPermanent(err)))
		r.moveToDeadLetterQueue(msg)
		return
	}

	msg.Attempts++
	retryTime := time.Now().Add(r.config.retryAfter(msg.Attempts))
	r.scheduleRetry(msg, retryTime)
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", retryTime.Format(time.RFC3339)))
}

func (r *RedisQueue) scheduleRetry(msg Message, retryTime time.Time) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.getDelayedKey(), redis.Z{
		Score:  float64(retryTime.UnixMilli()),
		Member: msgData,
	}).Err()
	if err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	msgData, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.getDeadLetterKey(), msgData).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) delayedProcessor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDueMessages()
		}
	}
}

// promoteDueMessages moves due members of the delayed set onto the work list.
// A member is pushed only by the instance whose ZREM removed it.
func (r *RedisQueue) promoteDueMessages() {
	now := time.Now().UnixMilli()
	due, err := r.client.ZRangeByScore(r.ctx, r.getDelayedKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch delayed messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		removed, err := r.client.ZRem(r.ctx, r.getDelayedKey(), member).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Error("zrem delayed", logger.Error(err))
			}
			return
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.getQueueKey(), member).Err(); err != nil {
			r.logger.Error("move delayed to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) getModeString() string {
	switch r.mode {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (r *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}

func (r *RedisQueue) getDelayedKey() string {
	return fmt.Sprintf("%s:delayed", r.keyPrefix)
}

func (r *RedisQueue) getDeadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}
