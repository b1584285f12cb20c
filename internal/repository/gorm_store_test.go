package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
	"FinCast/pkg/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postgresDSNEnv names a disposable database for the GormStore tests.
const postgresDSNEnv = "FINCAST_TEST_POSTGRES_DSN"

func TestTranslate(t *testing.T) {
	err := translate("asset 7", gorm.ErrRecordNotFound)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	assert.Contains(t, err.Error(), "asset 7")

	assert.ErrorIs(t, translate(`asset "bitcoin"`, gorm.ErrDuplicatedKey), domrepo.ErrAlreadyExists)

	other := errors.New("connection reset")
	err = translate("asset 7", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, domrepo.ErrNotFound)
}

func newGormStore(t *testing.T, arts domrepo.ArtifactStore) (*GormStore, *gorm.DB, *models.Asset) {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	db, err := postgres.Open(dsn, postgres.WithPool(8, 2, 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewGormStore(db.Gorm, arts, logger.Nop())
	require.NoError(t, s.Migrate(context.Background()))

	a := &models.Asset{ExternalID: "test-" + uuid.NewString()[:8], Symbol: "TST", Name: "Test"}
	require.NoError(t, s.Create(context.Background(), a))
	t.Cleanup(func() {
		db.Gorm.Where("asset_id = ?", a.ID).Delete(&models.ForecastPoint{})
		db.Gorm.Where("asset_id = ?", a.ID).Delete(&models.ModelVersion{})
		db.Gorm.Delete(&models.Asset{}, a.ID)
	})
	return s, db.Gorm, a
}

func TestGormPublishSwapsActiveVersion(t *testing.T) {
	s, db, a := newGormStore(t, NewFileArtifactStore(t.TempDir()))
	ctx := context.Background()

	first, err := s.Publish(ctx, domrepo.PublishRequest{Asset: *a, Artifact: []byte(`{"v":1}`), Points: predictions(3, 100), Metrics: json.RawMessage(`{"mae":1}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version.Version)
	assert.Zero(t, first.PreviousVersion)

	second, err := s.Publish(ctx, domrepo.PublishRequest{Asset: *a, Artifact: []byte(`{"v":2}`), Points: predictions(4, 200), UsesAuxiliaryRegressor: true, Metrics: json.RawMessage(`{"mae":2}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version.Version)
	assert.Equal(t, 1, second.PreviousVersion)

	active, err := s.GetActive(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
	assert.True(t, active.UsesAuxiliaryRegressor)

	var activeCount int64
	require.NoError(t, db.Model(&models.ModelVersion{}).Where("asset_id = ? AND active = ?", a.ID, true).Count(&activeCount).Error)
	assert.Equal(t, int64(1), activeCount)

	var stale int64
	require.NoError(t, db.Model(&models.ForecastPoint{}).Where("model_version_id = ?", first.Version.ID).Count(&stale).Error)
	assert.Zero(t, stale, "points of the superseded version are gone")

	mv, pts, err := s.GetForecast(ctx, a.ID, models.HorizonFull, day0)
	require.NoError(t, err)
	assert.Equal(t, second.Version.ID, mv.ID)
	require.Len(t, pts, 4)
	assert.True(t, pts[0].Timestamp.Before(pts[1].Timestamp))

	_, future, err := s.GetForecast(ctx, a.ID, models.HorizonFuture, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, future, 2)

	data, err := s.LoadArtifact(ctx, active)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestGormPublishRollbackRemovesArtifact(t *testing.T) {
	arts := &recordingArtifacts{ArtifactStore: NewFileArtifactStore(t.TempDir())}
	s, _, a := newGormStore(t, arts)

	_, err := s.Publish(context.Background(), domrepo.PublishRequest{Asset: *a, Artifact: []byte(`{}`), Points: predictions(2, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	arts.onWrite = cancel
	_, err = s.Publish(ctx, domrepo.PublishRequest{Asset: *a, Artifact: []byte(`{}`), Points: predictions(5, 9)})
	require.Error(t, err)
	require.Len(t, arts.removed, 1)
	_, statErr := os.Stat(arts.removed[0])
	assert.True(t, os.IsNotExist(statErr))

	active, err := s.GetActive(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)
	_, pts, err := s.GetForecast(context.Background(), a.ID, models.HorizonFull, day0)
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

func TestGormConcurrentPublishesSerialize(t *testing.T) {
	s, _, a := newGormStore(t, NewFileArtifactStore(t.TempDir()))
	const n = 6

	var wg sync.WaitGroup
	versions := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Publish(context.Background(), domrepo.PublishRequest{Asset: *a, Artifact: []byte(`{}`), Points: predictions(2, 1)})
			if assert.NoError(t, err) {
				versions <- res.Version.Version
			}
		}()
	}
	wg.Wait()
	close(versions)

	seen := map[int]bool{}
	for v := range versions {
		assert.False(t, seen[v], "version %d issued twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)

	active, err := s.GetActive(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, n, active.Version)
}

func TestGormMissingRowsMapToNotFound(t *testing.T) {
	s, _, a := newGormStore(t, NewFileArtifactStore(t.TempDir()))
	ctx := context.Background()

	_, _, err := s.GetForecast(ctx, a.ID, models.HorizonFull, day0)
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	_, err = s.GetByExternalID(ctx, "no-such-asset-"+uuid.NewString())
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
	err = s.Create(ctx, &models.Asset{ExternalID: a.ExternalID, Symbol: "DUP", Name: "dup"})
	assert.ErrorIs(t, err, domrepo.ErrAlreadyExists)
}
