package scheduler

import (
	"context"
	"testing"

	"FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerComputesUTCSchedule(t *testing.T) {
	r := New(logger.Nop(), context.Background())
	fetch, err := r.Add("fetch", "0 0 2 * * *", func(context.Context) {})
	require.NoError(t, err)
	train, err := r.Add("train", "0 0 3 * * *", func(context.Context) {})
	require.NoError(t, err)

	r.Start()
	defer func() { require.NoError(t, r.Stop(context.Background())) }()

	nf, nt := r.Next(fetch), r.Next(train)
	assert.Equal(t, 2, nf.UTC().Hour())
	assert.Equal(t, 3, nt.UTC().Hour())
	assert.Zero(t, nf.Minute())
}

func TestRunnerRejectsBadSpec(t *testing.T) {
	r := New(logger.Nop(), nil)
	_, err := r.Add("broken", "every day", func(context.Context) {})
	require.Error(t, err)
}
