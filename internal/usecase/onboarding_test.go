package usecase

import (
	"context"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOnboarding(f *fixture, p *scriptedProvider, q *recordingQueue, delay time.Duration) *OnboardingUseCase {
	return NewOnboardingUseCase(f.store, newFetcher(f, p), f.trainer(TrainConfig{}), q, delay, logger.Nop())
}

func TestRegisterQueuesOnboarding(t *testing.T) {
	f := newFixture(t)
	q := &recordingQueue{}
	uc := newOnboarding(f, newScriptedProvider(60), q, time.Millisecond)

	a, err := uc.Register(context.Background(), models.RegisterAssetRequest{ExternalID: "cardano", Symbol: "ADA", Name: "Cardano"})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	msgs := q.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, JobOnboardAsset, msgs[0].msgType)
	assert.Equal(t, a.ID, msgs[0].payload.AssetID)

	_, err = uc.Register(context.Background(), models.RegisterAssetRequest{ExternalID: "cardano", Symbol: "ADA", Name: "Cardano"})
	assert.ErrorIs(t, err, domrepo.ErrAlreadyExists)
	assert.Len(t, q.messages(), 1)
}

func TestOnboardFetchesWaitsAndTrains(t *testing.T) {
	f := newFixture(t, "bitcoin")
	uc := newOnboarding(f, newScriptedProvider(60), &recordingQueue{}, 10*time.Millisecond)

	start := time.Now()
	res, err := uc.Onboard(context.Background(), f.assets["bitcoin"].ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, 60, res.Fetch.Points)
	require.NotNil(t, res.Train)
	assert.Equal(t, models.RunSucceeded, res.Train.Status)
	assert.Equal(t, 1, res.Train.Version)
}

func TestOnboardStopsWhenFetchFails(t *testing.T) {
	f := newFixture(t, "bitcoin")
	p := newScriptedProvider(60)
	p.fail("bitcoin", serverError("bitcoin"), serverError("bitcoin"))
	uc := newOnboarding(f, p, &recordingQueue{}, time.Millisecond)

	res, err := uc.Onboard(context.Background(), f.assets["bitcoin"].ID)
	require.Error(t, err)
	assert.Nil(t, res.Train)
	_, err = f.store.GetActive(context.Background(), f.assets["bitcoin"].ID)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestOnboardReportsTrainingFailureAndKeepsHistory(t *testing.T) {
	f := newFixture(t, "bitcoin")
	uc := newOnboarding(f, newScriptedProvider(30), &recordingQueue{}, time.Millisecond)

	res, err := uc.Onboard(context.Background(), f.assets["bitcoin"].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Train)
	assert.Equal(t, models.RunSkipped, res.Train.Status)

	n, err := f.store.CountHistory(context.Background(), f.assets["bitcoin"].ID)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestOnboardQueuedSchedulesDelayedTraining(t *testing.T) {
	f := newFixture(t, "bitcoin")
	q := &recordingQueue{}
	uc := newOnboarding(f, newScriptedProvider(60), q, 5*time.Second)

	require.NoError(t, uc.OnboardQueued(context.Background(), f.assets["bitcoin"].ID))
	msgs := q.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, JobTrainAsset, msgs[0].msgType)
	assert.Equal(t, 5*time.Second, msgs[0].delay)
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	f := newFixture(t, "bitcoin")
	uc := newOnboarding(f, newScriptedProvider(60), &recordingQueue{}, time.Millisecond)

	created, err := uc.EnsureDefaults(context.Background())
	require.NoError(t, err)
	assert.Len(t, created, len(models.DefaultAssets)-1)

	created, err = uc.EnsureDefaults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
}
