package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "fincast",
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: time.Minute,
	})
	assert.Equal(t, "clickhouse://default:p%40ss@ch:9000/fincast?dial_timeout=5s&max_execution_time=60", dsn)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
