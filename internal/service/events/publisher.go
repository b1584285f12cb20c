package events

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/pkg/logger"
)

// Producer is the subset of the Kafka producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaPublisher announces published model versions on a Kafka topic, keyed
// by the asset's external id so one asset's events stay ordered.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *logger.Logger
}

func NewKafkaPublisher(producer Producer, topic string, lgr *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: lgr}
}

func (p *KafkaPublisher) PublishModel(ctx context.Context, ev models.ModelPublished) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(ev.ExternalID), ev); err != nil {
		return fmt.Errorf("publish model event for %s: %w", ev.ExternalID, err)
	}
	p.logger.Debug("model event published",
		logger.Asset(ev.ExternalID),
		logger.Int("version", ev.Version),
		logger.String("topic", p.topic),
	)
	return nil
}

// LogPublisher only logs events. Used when Kafka is disabled.
type LogPublisher struct {
	logger *logger.Logger
}

func NewLogPublisher(lgr *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: lgr}
}

func (p *LogPublisher) PublishModel(_ context.Context, ev models.ModelPublished) error {
	p.logger.Info("model published",
		logger.Asset(ev.ExternalID),
		logger.Int("version", ev.Version),
		logger.Int("previous_version", ev.PreviousVersion),
		logger.Bool("uses_auxiliary_regressor", ev.UsesAuxiliaryRegressor),
		logger.Int("points", ev.Points),
	)
	return nil
}

var (
	_ service.EventPublisher = (*KafkaPublisher)(nil)
	_ service.EventPublisher = (*LogPublisher)(nil)
)
