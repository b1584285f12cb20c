package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	Asset string `json:"asset"`
}

func newTestQueue(t *testing.T, cfg *QueueConfig) *LocalQueue {
	t.Helper()
	q := NewLocalQueue(logger.Nop(), cfg, nil)
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return q
}

func TestLocalQueueDeliversPayload(t *testing.T) {
	q := newTestQueue(t, &QueueConfig{Workers: 2})
	got := make(chan string, 1)
	q.RegisterJob(JobFunc{MsgType: "ping", Fn: func(ctx context.Context, raw json.RawMessage) error {
		p, err := ParsePayload[ping](raw)
		if err != nil {
			return err
		}
		got <- p.Asset
		return nil
	}})
	require.NoError(t, q.Start())
	require.NoError(t, q.Enqueue(context.Background(), "ping", ping{Asset: "bitcoin"}))

	select {
	case a := <-got:
		assert.Equal(t, "bitcoin", a)
	case <-time.After(2 * time.Second):
		t.Fatal("job not delivered")
	}
}

func TestLocalQueueEnqueueInDelays(t *testing.T) {
	q := newTestQueue(t, &QueueConfig{})
	at := make(chan time.Time, 1)
	q.RegisterJob(JobFunc{MsgType: "train", Fn: func(context.Context, json.RawMessage) error {
		at <- time.Now()
		return nil
	}})
	require.NoError(t, q.Start())

	start := time.Now()
	require.NoError(t, q.EnqueueIn(context.Background(), 80*time.Millisecond, "train", nil))

	select {
	case ran := <-at:
		assert.GreaterOrEqual(t, ran.Sub(start), 80*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never ran")
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	q := newTestQueue(t, &QueueConfig{RetryLimit: 2, RetryDelay: 5 * time.Millisecond})
	var calls int32
	attempts := make(chan int, 3)
	q.RegisterJob(JobFunc{MsgType: "flaky", Fn: func(ctx context.Context, _ json.RawMessage) error {
		atomic.AddInt32(&calls, 1)
		attempts <- Attempt(ctx)
		return errors.New("boom")
	}})
	require.NoError(t, q.Start())
	require.NoError(t, q.Enqueue(context.Background(), "flaky", nil))

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, <-attempts)
	assert.Equal(t, 2, <-attempts)
	assert.Equal(t, 3, <-attempts)
}

func TestLocalQueuePermanentErrorSkipsRetry(t *testing.T) {
	q := newTestQueue(t, &QueueConfig{RetryLimit: 5, RetryDelay: time.Millisecond})
	var calls int32
	q.RegisterJob(JobFunc{MsgType: "bad", Fn: func(context.Context, json.RawMessage) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("insufficient data"))
	}})
	require.NoError(t, q.Start())
	require.NoError(t, q.Enqueue(context.Background(), "bad", nil))

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLocalQueueRejectsUnknownTypeAndStopped(t *testing.T) {
	q := NewLocalQueue(logger.Nop(), nil, nil)
	assert.Error(t, q.Enqueue(context.Background(), "ping", nil))

	require.NoError(t, q.Start())
	assert.Error(t, q.Enqueue(context.Background(), "nope", nil))
	require.NoError(t, q.Stop(context.Background()))
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	_, err := ParsePayload[ping](json.RawMessage(`{"asset":`))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
