package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/cache"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
)

// ModelEventsHandler consumes ModelPublished events and drops cached reads
// of the version each event superseded.
type ModelEventsHandler struct {
	topic   string
	cache   *cache.ForecastCache
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewModelEventsHandler(topic string, fc *cache.ForecastCache, metrics domrepo.Metrics, lgr *logger.Logger) *ModelEventsHandler {
	return &ModelEventsHandler{topic: topic, cache: fc, metrics: metrics, logger: lgr}
}

func (h *ModelEventsHandler) Topic() string { return h.topic }

func (h *ModelEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.ModelPublished
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("model_event_decode")
		return fmt.Errorf("decode model event: %w", err)
	}
	if ev.ExternalID == "" {
		h.metrics.RecordError("model_event_decode")
		return fmt.Errorf("model event without external_id")
	}
	if ev.PreviousVersion <= 0 {
		return nil
	}

	var errs []error
	for _, kind := range []string{cache.KindForecast, cache.KindForecastFull, cache.KindComponents} {
		if err := h.cache.InvalidateVersion(ctx, kind, ev.ExternalID, ev.PreviousVersion); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		h.metrics.RecordError("model_event_invalidate")
		return fmt.Errorf("invalidate %s v%d: %w", ev.ExternalID, ev.PreviousVersion, err)
	}

	if !ev.PublishedAt.IsZero() {
		h.metrics.RecordLatency("model_event_lag_seconds", time.Since(ev.PublishedAt).Seconds())
	}
	h.logger.Debug("superseded cache entries dropped",
		logger.Asset(ev.ExternalID),
		logger.Int("version", ev.Version),
		logger.Int("previous_version", ev.PreviousVersion),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*ModelEventsHandler)(nil)
