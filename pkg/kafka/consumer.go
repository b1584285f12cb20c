package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinCast/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer wraps Kafka readers with a worker pool. Offsets are committed
// after a message is handled, or after it was parked on the DLQ.
type Consumer struct {
	cfg       *ConsumerConfig
	logger    *logger.Logger
	readers   map[string]*kafka.Reader
	handlers  map[string]MessageHandler
	msgChan   chan *message
	dlq       *kafka.Writer
	metrics   *consumerMetrics
	partLocks sync.Map

	ctx       context.Context
	cancel    context.CancelFunc
	readersWG sync.WaitGroup
	workersWG sync.WaitGroup
	stopOnce  sync.Once
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(lgr *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "fincast",
		WorkerCount: 1,
		BufferSize:  16,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		logger:   lgr,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		msgChan:  make(chan *message, cfg.BufferSize),
		metrics:  newConsumerMetrics(cfg.Registerer),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		}
	}
	return c, nil
}

// RegisterHandler registers a message handler for a specific topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start starts the Kafka readers and workers.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workersWG.Add(1)
		go c.messageWorker()
	}
	for topic, reader := range c.readers {
		c.readersWG.Add(1)
		go c.consumeMessages(topic, reader)
	}

	c.logger.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID),
	)
	return nil
}

// Stop stops the Kafka consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.readersWG.Wait()
			close(c.msgChan)
			c.workersWG.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.logger.Error("close kafka reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logger.Error("close kafka dlq writer", logger.Error(err))
			}
		}
		if stopErr == nil {
			c.logger.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) consumeMessages(topic string, reader *kafka.Reader) {
	defer c.readersWG.Done()

	for {
		km, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		select {
		case c.msgChan <- &message{topic: topic, km: km}:
			c.metrics.depth(topic, len(c.msgChan))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.workersWG.Done()
	for msg := range c.msgChan {
		c.process(msg)
	}
}

// process runs the handler with retries, parks failures on the DLQ and
// commits the offset.
func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()

	lock := c.partitionLock(msg.topic, msg.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	err := c.handle(handler, msg.km.Value)
	result := "ok"
	if err != nil {
		result = "error"
		c.logger.Error("kafka message failed",
			logger.String("topic", msg.topic),
			logger.Int("partition", msg.km.Partition),
			logger.Int64("offset", msg.km.Offset),
			logger.Error(err),
		)
		if c.dlq != nil {
			result = "dlq"
			if dlqErr := c.dlq.WriteMessages(context.Background(), kafka.Message{
				Topic:   c.cfg.DLQTopic,
				Key:     msg.km.Key,
				Value:   msg.km.Value,
				Time:    time.Now().UTC(),
				Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
			}); dlqErr != nil {
				c.logger.Error("kafka dlq write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(dlqErr))
			}
		}
	}

	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.topic]; reader != nil {
			c.commit(reader, msg.km)
		}
	}
	c.metrics.handled(msg.topic, result, time.Since(start))
}

func (c *Consumer) handle(handler MessageHandler, data []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffMin
	b.MaxInterval = c.cfg.BackoffMax

	_, err := backoff.Retry(c.ctx, func() (struct{}, error) {
		return struct{}{}, safeHandle(c.ctx, handler, data)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.RetryMax+1)),
		backoff.WithMaxElapsedTime(0),
	)
	return err
}

func safeHandle(ctx context.Context, handler MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = backoff.Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler.Handle(ctx, data)
}

func (c *Consumer) commit(reader *kafka.Reader, km kafka.Message) {
	b := backoff.NewConstantBackOff(100 * time.Millisecond)
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return struct{}{}, reader.CommitMessages(ctx, km)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(3))
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("kafka commit failed", logger.String("topic", km.Topic), logger.Error(err))
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	l, _ := c.partLocks.LoadOrStore(fmt.Sprintf("%s/%d", topic, partition), &sync.Mutex{})
	return l.(*sync.Mutex)
}

type consumerMetrics struct {
	queueDepth *prometheus.GaugeVec
	messages   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fincast_kafka_consumer_queue_depth",
			Help: "Number of messages waiting in consumer queue",
		}, []string{"topic"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fincast_kafka_consumer_messages_total",
			Help: "Messages handled by result",
		}, []string{"topic", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "fincast_kafka_consumer_handle_seconds",
			Help: "Handling time per message",
		}, []string{"topic"}),
	}
}

func (m *consumerMetrics) depth(topic string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(topic).Set(float64(n))
}

func (m *consumerMetrics) handled(topic, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(elapsed.Seconds())
}
