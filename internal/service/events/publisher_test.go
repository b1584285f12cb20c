package events

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"FinCast/internal/domain/models"
	"FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaPublisherKeysByExternalID(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaPublisher(prod, "fincast.models", logger.Nop())

	ev := models.ModelPublished{AssetID: 2, ExternalID: "ethereum", Version: 4, PreviousVersion: 3}
	require.NoError(t, pub.PublishModel(context.Background(), ev))

	assert.Equal(t, "fincast.models", prod.topic)
	assert.Equal(t, []byte("ethereum"), prod.key)
	assert.Equal(t, ev, prod.value)
}

func TestKafkaPublisherWrapsError(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaPublisher(&recordingProducer{err: boom}, "fincast.models", logger.Nop())

	err := pub.PublishModel(context.Background(), models.ModelPublished{ExternalID: "solana"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "solana")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(logger.NewWriter(&buf, "info"))

	require.NoError(t, pub.PublishModel(context.Background(), models.ModelPublished{ExternalID: "bitcoin", Version: 2}))
	assert.Contains(t, buf.String(), "model published")
	assert.Contains(t, buf.String(), "bitcoin")
}
