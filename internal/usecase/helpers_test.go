package usecase

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/repository"
	"FinCast/internal/service/forecast"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"

	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store     *repository.MemoryStore
	artifacts *repository.FileArtifactStore
	events    *recordingPublisher
	assets    map[string]*models.Asset
}

func newFixture(t *testing.T, externalIDs ...string) *fixture {
	t.Helper()
	artifacts := repository.NewFileArtifactStore(t.TempDir())
	f := &fixture{
		store:     repository.NewMemoryStore(artifacts),
		artifacts: artifacts,
		events:    &recordingPublisher{},
		assets:    make(map[string]*models.Asset),
	}
	for _, id := range externalIDs {
		a := &models.Asset{ExternalID: id, Symbol: id[:3], Name: id}
		require.NoError(t, f.store.Create(context.Background(), a))
		f.assets[id] = a
	}
	return f
}

// seed stores n daily closes shaped like a trend with a weekly wave.
func (f *fixture) seed(t *testing.T, externalID string, n int, base float64) {
	t.Helper()
	a := f.assets[externalID]
	points := make([]models.HistoryPoint, n)
	for i := range points {
		v := base + 0.5*base/100*float64(i) + base/50*math.Sin(2*math.Pi*float64(i)/7) + float64(i%3)
		points[i] = models.HistoryPoint{
			AssetID:   a.ID,
			Timestamp: day0.AddDate(0, 0, i),
			Open:      v,
			High:      v,
			Low:       v,
			Close:     v,
			Volume:    1000,
		}
	}
	require.NoError(t, f.store.UpsertHistory(context.Background(), points))
}

func (f *fixture) trainer(cfg TrainConfig) *TrainUseCase {
	if cfg.ReferenceAsset == "" {
		cfg.ReferenceAsset = "bitcoin"
	}
	if cfg.ReferenceDelay == 0 {
		cfg.ReferenceDelay = time.Millisecond
	}
	uc := NewTrainUseCase(f.store, f.store, f.store, f.artifacts, forecast.New(), f.events, metrics.Nop{}, logger.Nop(), cfg)
	uc.now = func() time.Time { return day0.AddDate(0, 0, 60) }
	return uc
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ModelPublished
}

func (p *recordingPublisher) PublishModel(_ context.Context, ev models.ModelPublished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) all() []models.ModelPublished {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ModelPublished(nil), p.events...)
}

var _ queue.Queue = (*recordingQueue)(nil)

type enqueued struct {
	msgType string
	delay   time.Duration
	payload AssetJob
}

// recordingQueue captures messages instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	msgs []enqueued
}

func (q *recordingQueue) RegisterJob(queue.Job) {}

func (q *recordingQueue) Start() error { return nil }

func (q *recordingQueue) Stop(context.Context) error { return nil }

func (q *recordingQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return q.EnqueueIn(ctx, 0, msgType, payload)
}

func (q *recordingQueue) EnqueueIn(_ context.Context, delay time.Duration, msgType string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var job AssetJob
	_ = json.Unmarshal(b, &job)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, enqueued{msgType: msgType, delay: delay, payload: job})
	return nil
}

func (q *recordingQueue) messages() []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]enqueued(nil), q.msgs...)
}
