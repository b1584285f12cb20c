package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

var (
	_ domrepo.AssetRepository = (*MemoryStore)(nil)
	_ domrepo.HistoryStore    = (*MemoryStore)(nil)
	_ domrepo.ModelStore      = (*MemoryStore)(nil)
)

// MemoryStore keeps assets, history and models in process. A single lock
// makes every publish atomic for readers.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts domrepo.ArtifactStore
	now       func() time.Time

	nextAssetID   int64
	nextVersionID int64
	nextPointID   int64

	assets     map[int64]models.Asset
	byExternal map[string]int64
	history    map[int64]map[int64]models.HistoryPoint
	versions   map[int64][]models.ModelVersion
	points     map[int64][]models.ForecastPoint
}

func NewMemoryStore(artifacts domrepo.ArtifactStore) *MemoryStore {
	return &MemoryStore{
		artifacts:  artifacts,
		now:        time.Now,
		assets:     make(map[int64]models.Asset),
		byExternal: make(map[string]int64),
		history:    make(map[int64]map[int64]models.HistoryPoint),
		versions:   make(map[int64][]models.ModelVersion),
		points:     make(map[int64][]models.ForecastPoint),
	}
}

func (s *MemoryStore) List(_ context.Context) ([]models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %d: %w", id, domrepo.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", externalID, domrepo.ErrNotFound)
	}
	a := s.assets[id]
	return &a, nil
}

func (s *MemoryStore) Create(_ context.Context, a *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byExternal[a.ExternalID]; ok {
		return fmt.Errorf("asset %q: %w", a.ExternalID, domrepo.ErrAlreadyExists)
	}
	s.nextAssetID++
	a.ID = s.nextAssetID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	s.assets[a.ID] = *a
	s.byExternal[a.ExternalID] = a.ID
	return nil
}

func (s *MemoryStore) UpsertHistory(_ context.Context, points []models.HistoryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		byTS, ok := s.history[p.AssetID]
		if !ok {
			byTS = make(map[int64]models.HistoryPoint)
			s.history[p.AssetID] = byTS
		}
		p.Timestamp = p.Timestamp.UTC()
		byTS[p.Timestamp.UnixNano()] = p
	}
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, assetID int64, from, to time.Time) ([]models.HistoryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryPoint, 0, len(s.history[assetID]))
	for _, p := range s.history[assetID] {
		if !from.IsZero() && p.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) CountHistory(_ context.Context, assetID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[assetID]), nil
}

func (s *MemoryStore) DeleteHistory(_ context.Context, assetID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, assetID)
	return nil
}

// Publish writes the artifact and swaps the active version and its points
// under the store lock. The artifact is removed again if anything fails.
func (s *MemoryStore) Publish(ctx context.Context, req domrepo.PublishRequest) (*domrepo.PublishResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset, ok := s.assets[req.Asset.ID]
	if !ok {
		return nil, fmt.Errorf("publish asset %d: %w", req.Asset.ID, domrepo.ErrNotFound)
	}

	versions := s.versions[asset.ID]
	next, previous := 1, 0
	for _, v := range versions {
		if v.Version >= next {
			next = v.Version + 1
		}
		if v.Active {
			previous = v.Version
		}
	}

	path, err := s.artifacts.Write(ctx, asset.ExternalID, next, req.Artifact)
	if err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.artifacts.Remove(context.Background(), path)
		return nil, fmt.Errorf("publish %s: %w", asset.ExternalID, err)
	}

	trainedAt := req.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = s.now()
	}
	s.nextVersionID++
	mv := models.ModelVersion{
		ID:                     s.nextVersionID,
		AssetID:                asset.ID,
		Version:                next,
		ArtifactPath:           path,
		TrainedAt:              trainedAt.UTC(),
		Active:                 true,
		UsesAuxiliaryRegressor: req.UsesAuxiliaryRegressor,
		Metrics:                req.Metrics,
	}

	updated := make([]models.ModelVersion, 0, len(versions)+1)
	for _, v := range versions {
		v.Active = false
		updated = append(updated, v)
	}
	s.versions[asset.ID] = append(updated, mv)

	points := make([]models.ForecastPoint, 0, len(req.Points))
	for _, p := range req.Points {
		s.nextPointID++
		points = append(points, toForecastPoint(s.nextPointID, asset.ID, mv.ID, p))
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	s.points[asset.ID] = points

	return &domrepo.PublishResult{Version: mv, PreviousVersion: previous}, nil
}

func (s *MemoryStore) GetActive(_ context.Context, assetID int64) (*models.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mv, ok := s.activeLocked(assetID)
	if !ok {
		return nil, fmt.Errorf("active model for asset %d: %w", assetID, domrepo.ErrNotFound)
	}
	return &mv, nil
}

func (s *MemoryStore) GetForecast(_ context.Context, assetID int64, filter models.HorizonFilter, now time.Time) (*models.ModelVersion, []models.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mv, ok := s.activeLocked(assetID)
	if !ok {
		return nil, nil, fmt.Errorf("active model for asset %d: %w", assetID, domrepo.ErrNotFound)
	}
	out := make([]models.ForecastPoint, 0, len(s.points[assetID]))
	for _, p := range s.points[assetID] {
		if filter == models.HorizonFuture && !p.Timestamp.After(now) {
			continue
		}
		out = append(out, p)
	}
	return &mv, out, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, assetID int64) ([]models.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.versions[assetID]
	out := make([]models.ModelVersion, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v
	}
	return out, nil
}

func (s *MemoryStore) LoadArtifact(ctx context.Context, mv *models.ModelVersion) ([]byte, error) {
	return s.artifacts.Read(ctx, mv.ArtifactPath)
}

func (s *MemoryStore) activeLocked(assetID int64) (models.ModelVersion, bool) {
	for _, v := range s.versions[assetID] {
		if v.Active {
			return v, true
		}
	}
	return models.ModelVersion{}, false
}

func toForecastPoint(id, assetID, versionID int64, p models.Prediction) models.ForecastPoint {
	return models.ForecastPoint{
		ID:             id,
		AssetID:        assetID,
		ModelVersionID: versionID,
		Timestamp:      p.Timestamp.UTC(),
		Point:          p.Point,
		Lower:          p.Lower,
		Upper:          p.Upper,
	}
}
