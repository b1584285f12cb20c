package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Backend.Type)
	assert.Equal(t, "bitcoin", c.Pipeline.ReferenceAsset)
	assert.Equal(t, 50, c.Pipeline.MinSamples)
	assert.Equal(t, 3, c.Pipeline.Horizon)
	assert.Equal(t, 5*time.Second, c.Pipeline.OnboardDelay)
	assert.Equal(t, 60*time.Second, c.Provider.RateLimitDelay)
	assert.Equal(t, 3, c.Provider.RateLimitTries)
	assert.Equal(t, "0 0 2 * * *", c.Schedule.Fetch)
	assert.Equal(t, "0 0 3 * * *", c.Schedule.Train)
}

func TestValidateRejectsDatabaseWithoutDSN(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\nbackend:\n  type: database\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn")
}

func TestValidateRejectsUnknownCache(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\ncache:\n  type: memcached\n"))
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("REFERENCE_ASSET", "ethereum")
	t.Setenv("COINGECKO_API_KEY", "demo-key")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "ethereum", c.Pipeline.ReferenceAsset)
	assert.Equal(t, "demo-key", c.Provider.APIKey)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestExplicitEmptyValuesOverrideDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `environment: test
server:
  cors_origins: []
schedule:
  extra_fetch: ""
`))
	require.NoError(t, err)
	assert.Empty(t, c.Schedule.ExtraFetch, "an empty spec disables the sweep")
	assert.Equal(t, "0 0 2 * * *", c.Schedule.Fetch)
	assert.Empty(t, c.Server.CORSOrigins)

	c, err = Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "0 0 */8 * * *", c.Schedule.ExtraFetch)
	assert.Contains(t, c.Server.CORSOrigins, "http://localhost:5173")
	assert.Equal(t, c.Schedule, Default().Schedule)
}
