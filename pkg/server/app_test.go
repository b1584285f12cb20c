package server

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/repository"
	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	"FinCast/pkg/logger"
	"FinCast/pkg/queue"
	"FinCast/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	msgType string
	payload interface{}
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (q *fakeQueue) RegisterJob(queue.Job) {}

func (q *fakeQueue) Start() error { return nil }

func (q *fakeQueue) Stop(context.Context) error { return nil }

func (q *fakeQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return q.EnqueueIn(ctx, 0, msgType, payload)
}

func (q *fakeQueue) EnqueueIn(_ context.Context, _ time.Duration, msgType string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, sentMessage{msgType: msgType, payload: payload})
	return nil
}

func newTestApp(t *testing.T, q *fakeQueue) (*App, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore(repository.NewFileArtifactStore(t.TempDir()))
	onboarding := usecase.NewOnboardingUseCase(store, nil, nil, q, 0, logger.Nop())
	return New(config.Default(), logger.Nop(), nil, q, nil, onboarding, nil), store
}

func TestBootstrapOnboardsOnlyNewDefaults(t *testing.T) {
	q := &fakeQueue{}
	app, store := newTestApp(t, q)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.Asset{ExternalID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"}))
	require.NoError(t, app.bootstrap(ctx))

	assets, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, assets, len(models.DefaultAssets))

	require.Len(t, q.sent, len(models.DefaultAssets)-1)
	for _, m := range q.sent {
		assert.Equal(t, usecase.JobOnboardAsset, m.msgType)
	}

	// second start: nothing new to onboard
	q.sent = nil
	require.NoError(t, app.bootstrap(ctx))
	assert.Empty(t, q.sent)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	q := &fakeQueue{}
	app, _ := newTestApp(t, q)

	require.NoError(t, app.schedule(scheduler.New(logger.Nop(), context.Background())))

	app.cfg.Schedule.Train = "every full moon"
	err := app.schedule(scheduler.New(logger.Nop(), context.Background()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train_sweep")
}

func TestScheduleSkipsEmptySpecs(t *testing.T) {
	q := &fakeQueue{}
	app, _ := newTestApp(t, q)
	app.cfg.Schedule.ExtraFetch = ""
	app.cfg.Schedule.Fetch = ""
	r := scheduler.New(logger.Nop(), context.Background())
	require.NoError(t, app.schedule(r))
	assert.Equal(t, 1, r.Len())
}

func TestScheduleExtraFetchDisabledFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\nschedule:\n  enabled: true\n  extra_fetch: \"\"\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	app, _ := newTestApp(t, &fakeQueue{})
	app.cfg = cfg
	r := scheduler.New(logger.Nop(), context.Background())
	require.NoError(t, app.schedule(r))
	assert.Equal(t, 2, r.Len())
}
