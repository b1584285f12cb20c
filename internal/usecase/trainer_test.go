package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainSkipsShortHistory(t *testing.T) {
	f := newFixture(t, "bitcoin")
	f.seed(t, "bitcoin", 49, 40000)

	res := f.trainer(TrainConfig{}).Train(context.Background(), *f.assets["bitcoin"])
	assert.Equal(t, models.RunSkipped, res.Status)
	assert.ErrorIs(t, res.Err, domrepo.ErrInsufficientData)

	versions, err := f.store.ListVersions(context.Background(), f.assets["bitcoin"].ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
	assert.Empty(t, f.events.all())
}

func TestTrainReferencePublishesUnivariateModel(t *testing.T) {
	f := newFixture(t, "bitcoin")
	f.seed(t, "bitcoin", 60, 40000)
	ctx := context.Background()

	res := f.trainer(TrainConfig{}).Train(ctx, *f.assets["bitcoin"])
	require.Equal(t, models.RunSucceeded, res.Status, res.Error)
	assert.Equal(t, 1, res.Version)

	mv, points, err := f.store.GetForecast(ctx, f.assets["bitcoin"].ID, models.HorizonFull, day0)
	require.NoError(t, err)
	assert.False(t, mv.UsesAuxiliaryRegressor)
	assert.Len(t, points, 63)
	assert.Equal(t, day0.AddDate(0, 0, 62), points[len(points)-1].Timestamp)
	for _, p := range points {
		assert.LessOrEqual(t, p.Lower, p.Point)
		assert.GreaterOrEqual(t, p.Upper, p.Point)
	}

	var fm models.FitMetrics
	require.NoError(t, json.Unmarshal(mv.Metrics, &fm))
	assert.Equal(t, 60, fm.Samples)
	assert.Equal(t, 3, fm.Horizon)

	events := f.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, "bitcoin", events[0].ExternalID)
	assert.Equal(t, 1, events[0].Version)
	assert.Zero(t, events[0].PreviousVersion)
	assert.Equal(t, 63, events[0].Points)
}

func TestTrainDependentUsesReferenceForecast(t *testing.T) {
	f := newFixture(t, "bitcoin", "ethereum")
	f.seed(t, "bitcoin", 60, 40000)
	f.seed(t, "ethereum", 60, 2500)
	ctx := context.Background()
	tr := f.trainer(TrainConfig{})

	require.Equal(t, models.RunSucceeded, tr.Train(ctx, *f.assets["bitcoin"]).Status)
	res := tr.Train(ctx, *f.assets["ethereum"])
	require.Equal(t, models.RunSucceeded, res.Status, res.Error)

	mv, err := f.store.GetActive(ctx, f.assets["ethereum"].ID)
	require.NoError(t, err)
	assert.True(t, mv.UsesAuxiliaryRegressor)

	_, points, err := f.store.GetForecast(ctx, f.assets["ethereum"].ID, models.HorizonFull, day0)
	require.NoError(t, err)
	assert.Len(t, points, 63)
}

func TestTrainDependentFailsWithoutReferenceModel(t *testing.T) {
	f := newFixture(t, "bitcoin", "ethereum")
	f.seed(t, "bitcoin", 60, 40000)
	f.seed(t, "ethereum", 60, 2500)

	start := time.Now()
	res := f.trainer(TrainConfig{ReferenceTries: 2, ReferenceDelay: 5 * time.Millisecond}).
		Train(context.Background(), *f.assets["ethereum"])

	assert.Equal(t, models.RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, domrepo.ErrMissingDependency)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	_, err := f.store.GetActive(context.Background(), f.assets["ethereum"].ID)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestTrainDependentDegradesOnShortOverlap(t *testing.T) {
	f := newFixture(t, "bitcoin", "ethereum")
	f.seed(t, "bitcoin", 20, 40000)
	f.seed(t, "ethereum", 60, 2500)
	ctx := context.Background()

	res := f.trainer(TrainConfig{}).Train(ctx, *f.assets["ethereum"])
	require.Equal(t, models.RunSucceeded, res.Status, res.Error)

	mv, err := f.store.GetActive(ctx, f.assets["ethereum"].ID)
	require.NoError(t, err)
	assert.False(t, mv.UsesAuxiliaryRegressor)
}

func TestTrainPrunesOldArtifacts(t *testing.T) {
	f := newFixture(t, "bitcoin")
	f.seed(t, "bitcoin", 60, 40000)
	ctx := context.Background()
	tr := f.trainer(TrainConfig{KeepVersions: 2})

	for i := 0; i < 4; i++ {
		require.Equal(t, models.RunSucceeded, tr.Train(ctx, *f.assets["bitcoin"]).Status)
	}

	versions, err := f.store.ListVersions(ctx, f.assets["bitcoin"].ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	for i, v := range versions {
		_, err := f.artifacts.Read(ctx, v.ArtifactPath)
		if i < 2 {
			assert.NoError(t, err, "version %d", v.Version)
		} else {
			assert.ErrorIs(t, err, domrepo.ErrNotFound, "version %d", v.Version)
		}
	}

	events := f.events.all()
	require.Len(t, events, 4)
	assert.Equal(t, 3, events[3].PreviousVersion)
}
