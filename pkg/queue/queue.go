package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue dispatches typed messages to registered jobs.
type Queue interface {
	RegisterJob(job Job)
	Start() error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
	// EnqueueIn makes the message visible to workers only after delay.
	EnqueueIn(ctx context.Context, delay time.Duration, msgType string, payload interface{}) error
}

// Observer receives one call per handled message.
type Observer interface {
	ObserveJob(jobType, result string, elapsed time.Duration)
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers      int           // number of workers
	QueueSize    int           // buffered messages for the local queue
	RetryLimit   int           // number of maximum retries
	RetryDelay   time.Duration // base delay between retries, multiplied by the attempt number
	PollInterval time.Duration // how often delayed messages are promoted (redis)
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	return &out
}

func (c *QueueConfig) retryAfter(attempt int) time.Duration {
	return time.Duration(attempt) * c.RetryDelay
}

// Message represents a message in the queue
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(msgType string, payload interface{}) (Message, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage("null")
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var result T
	if len(payload) == 0 {
		return nil, Permanent(fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, Permanent(fmt.Errorf("failed to unmarshal payload: %w", err))
	}
	return &result, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to the
// dead letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type attemptKey struct{}

// Attempt returns the 1-based delivery attempt of the message being handled.
func Attempt(ctx context.Context) int {
	if v, ok := ctx.Value(attemptKey{}).(int); ok {
		return v
	}
	return 1
}

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}
