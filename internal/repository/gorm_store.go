package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	_ domrepo.AssetRepository = (*GormStore)(nil)
	_ domrepo.ModelStore      = (*GormStore)(nil)
)

const pointBatchSize = 500

// GormStore keeps assets, model versions and forecast points in PostgreSQL.
type GormStore struct {
	db        *gorm.DB
	artifacts domrepo.ArtifactStore
	logger    *logger.Logger
}

func NewGormStore(db *gorm.DB, artifacts domrepo.ArtifactStore, lgr *logger.Logger) *GormStore {
	return &GormStore{db: db, artifacts: artifacts, logger: lgr}
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.Asset{}, &models.ModelVersion{}, &models.ForecastPoint{})
}

func (s *GormStore) List(ctx context.Context) ([]models.Asset, error) {
	var items []models.Asset
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return items, nil
}

func (s *GormStore) GetByID(ctx context.Context, id int64) (*models.Asset, error) {
	var a models.Asset
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(fmt.Sprintf("asset %d", id), err)
	}
	return &a, nil
}

func (s *GormStore) GetByExternalID(ctx context.Context, externalID string) (*models.Asset, error) {
	var a models.Asset
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&a).Error; err != nil {
		return nil, translate(fmt.Sprintf("asset %q", externalID), err)
	}
	return &a, nil
}

func (s *GormStore) Create(ctx context.Context, a *models.Asset) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return translate(fmt.Sprintf("asset %q", a.ExternalID), err)
	}
	return nil
}

// Publish runs the whole version swap in one transaction holding a row lock
// on the asset, so concurrent publishes of one asset serialize and readers
// never see a mix of versions.
func (s *GormStore) Publish(ctx context.Context, req domrepo.PublishRequest) (*domrepo.PublishResult, error) {
	var (
		result  *domrepo.PublishResult
		written string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset models.Asset
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&asset, req.Asset.ID).Error; err != nil {
			return translate(fmt.Sprintf("asset %d", req.Asset.ID), err)
		}

		var maxVersion int
		if err := tx.Model(&models.ModelVersion{}).
			Where("asset_id = ?", asset.ID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("max version: %w", err)
		}
		var prev []models.ModelVersion
		if err := tx.Where("asset_id = ? AND active = ?", asset.ID, true).Limit(1).Find(&prev).Error; err != nil {
			return fmt.Errorf("previous version: %w", err)
		}
		next := maxVersion + 1

		path, err := s.artifacts.Write(ctx, asset.ExternalID, next, req.Artifact)
		if err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		written = path

		if err := tx.Model(&models.ModelVersion{}).
			Where("asset_id = ? AND active = ?", asset.ID, true).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate versions: %w", err)
		}

		trainedAt := req.TrainedAt
		if trainedAt.IsZero() {
			trainedAt = time.Now()
		}
		mv := models.ModelVersion{
			AssetID:                asset.ID,
			Version:                next,
			ArtifactPath:           path,
			TrainedAt:              trainedAt.UTC(),
			Active:                 true,
			UsesAuxiliaryRegressor: req.UsesAuxiliaryRegressor,
			Metrics:                req.Metrics,
		}
		if err := tx.Create(&mv).Error; err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		if err := tx.Where("asset_id = ?", asset.ID).Delete(&models.ForecastPoint{}).Error; err != nil {
			return fmt.Errorf("delete points: %w", err)
		}
		if len(req.Points) > 0 {
			points := make([]models.ForecastPoint, 0, len(req.Points))
			for _, p := range req.Points {
				points = append(points, toForecastPoint(0, asset.ID, mv.ID, p))
			}
			if err := tx.CreateInBatches(&points, pointBatchSize).Error; err != nil {
				return fmt.Errorf("insert points: %w", err)
			}
		}

		result = &domrepo.PublishResult{Version: mv}
		if len(prev) > 0 {
			result.PreviousVersion = prev[0].Version
		}
		return nil
	})
	if err != nil {
		if written != "" {
			if rmErr := s.artifacts.Remove(context.Background(), written); rmErr != nil {
				s.logger.Error("remove orphaned artifact", logger.String("path", written), logger.Error(rmErr))
			}
		}
		return nil, fmt.Errorf("publish %s: %w", req.Asset.ExternalID, err)
	}
	return result, nil
}

func (s *GormStore) GetActive(ctx context.Context, assetID int64) (*models.ModelVersion, error) {
	var mv models.ModelVersion
	err := s.db.WithContext(ctx).Where("asset_id = ? AND active = ?", assetID, true).First(&mv).Error
	if err != nil {
		return nil, translate(fmt.Sprintf("active model for asset %d", assetID), err)
	}
	return &mv, nil
}

// GetForecast reads the active version and its points in one read-only
// transaction so both come from the same snapshot.
func (s *GormStore) GetForecast(ctx context.Context, assetID int64, filter models.HorizonFilter, now time.Time) (*models.ModelVersion, []models.ForecastPoint, error) {
	var (
		mv     models.ModelVersion
		points []models.ForecastPoint
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY").Error; err != nil {
			return err
		}
		if err := tx.Where("asset_id = ? AND active = ?", assetID, true).First(&mv).Error; err != nil {
			return translate(fmt.Sprintf("active model for asset %d", assetID), err)
		}
		q := tx.Where("model_version_id = ?", mv.ID)
		if filter == models.HorizonFuture {
			q = q.Where("ts > ?", now.UTC())
		}
		return q.Order("ts asc").Find(&points).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &mv, points, nil
}

func (s *GormStore) ListVersions(ctx context.Context, assetID int64) ([]models.ModelVersion, error) {
	var items []models.ModelVersion
	if err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("version desc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return items, nil
}

func (s *GormStore) LoadArtifact(ctx context.Context, mv *models.ModelVersion) ([]byte, error) {
	return s.artifacts.Read(ctx, mv.ArtifactPath)
}

func translate(what string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, domrepo.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, domrepo.ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
