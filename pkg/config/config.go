package config

import (
	"fmt"
	"os"
	"time"

	"FinCast/pkg/util"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// CORSOrigins are the browser origins allowed to call the API. An
		// explicit empty list disables CORS.
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	// Backend selects where assets, history and models live: "memory" or "database".
	Backend struct {
		Type string `yaml:"type"`
	} `yaml:"backend"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		LogLevel        string        `yaml:"log_level"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Cache struct {
		// Type is one of memory, redis, layered or none.
		Type       string        `yaml:"type"`
		MaxSize    int           `yaml:"max_size"`
		HotTTL     time.Duration `yaml:"hot_ttl"`
		DefaultTTL time.Duration `yaml:"default_ttl"`
	} `yaml:"cache"`
	Queue struct {
		// Mode is "local" for in-process workers or "redis".
		Mode         string        `yaml:"mode"`
		Name         string        `yaml:"name"`
		Workers      int           `yaml:"workers"`
		RetryLimit   int           `yaml:"retry_limit"`
		RetryDelay   time.Duration `yaml:"retry_delay"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Provider struct {
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout"`
		RequestsPerMin int           `yaml:"requests_per_min"`
		LookbackDays   int           `yaml:"lookback_days"`
		RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
		RateLimitTries int           `yaml:"rate_limit_tries"`
		TransientTries int           `yaml:"transient_tries"`
	} `yaml:"provider"`
	Pipeline struct {
		ReferenceAsset    string        `yaml:"reference_asset"`
		ModelDir          string        `yaml:"model_dir"`
		KeepVersions      int           `yaml:"keep_versions"`
		MinSamples        int           `yaml:"min_samples"`
		Horizon           int           `yaml:"horizon"`
		Concurrency       int           `yaml:"concurrency"`
		RegressorFallback float64       `yaml:"regressor_fallback"`
		ReferenceTries    int           `yaml:"reference_tries"`
		ReferenceDelay    time.Duration `yaml:"reference_delay"`
		OnboardDelay      time.Duration `yaml:"onboard_delay"`
	} `yaml:"pipeline"`
	// Schedule holds cron specs with seconds. An explicit empty spec turns
	// that sweep off.
	Schedule struct {
		Enabled    bool   `yaml:"enabled"`
		Fetch      string `yaml:"fetch"`
		Train      string `yaml:"train"`
		ExtraFetch string `yaml:"extra_fetch"`
	} `yaml:"schedule"`
}

// Default returns a configuration with every default applied: in-memory
// backend, in-memory cache and local queue.
func Default() *Config {
	c := &Config{}
	c.presetDefaults()
	c.applyDefaults()
	return c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	c.presetDefaults()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// LoadWithEnv loads a .env file when present, then the YAML config, and finally
// overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REFERENCE_ASSET"); v != "" {
		c.Pipeline.ReferenceAsset = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "memory"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Queue.Mode == "" {
		c.Queue.Mode = "local"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "fincast:jobs"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "fincast.models"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 15 * time.Second
	}
	if c.Provider.RequestsPerMin <= 0 {
		c.Provider.RequestsPerMin = 30
	}
	if c.Provider.LookbackDays <= 0 {
		c.Provider.LookbackDays = 30
	}
	if c.Provider.RateLimitDelay == 0 {
		c.Provider.RateLimitDelay = 60 * time.Second
	}
	if c.Provider.RateLimitTries <= 0 {
		c.Provider.RateLimitTries = 3
	}
	if c.Provider.TransientTries <= 0 {
		c.Provider.TransientTries = 2
	}
	if c.Pipeline.ReferenceAsset == "" {
		c.Pipeline.ReferenceAsset = "bitcoin"
	}
	if c.Pipeline.ModelDir == "" {
		c.Pipeline.ModelDir = "models"
	}
	if c.Pipeline.KeepVersions <= 0 {
		c.Pipeline.KeepVersions = 5
	}
	if c.Pipeline.MinSamples <= 0 {
		c.Pipeline.MinSamples = 50
	}
	if c.Pipeline.Horizon <= 0 {
		c.Pipeline.Horizon = 3
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 4
	}
	if c.Pipeline.RegressorFallback == 0 {
		c.Pipeline.RegressorFallback = 50000
	}
	if c.Pipeline.ReferenceTries <= 0 {
		c.Pipeline.ReferenceTries = 3
	}
	if c.Pipeline.ReferenceDelay == 0 {
		c.Pipeline.ReferenceDelay = 10 * time.Second
	}
	if c.Pipeline.OnboardDelay == 0 {
		c.Pipeline.OnboardDelay = 5 * time.Second
	}
}

// presetDefaults fills the fields where an explicit empty value is
// meaningful. It runs before the YAML is decoded, so only keys missing from
// the file keep these values.
func (c *Config) presetDefaults() {
	c.Server.CORSOrigins = []string{
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
	c.Schedule.Fetch = "0 0 2 * * *"
	c.Schedule.Train = "0 0 3 * * *"
	c.Schedule.ExtraFetch = "0 0 */8 * * *"
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "memory":
	case "database":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the database backend")
		}
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the database backend")
		}
	default:
		return fmt.Errorf("backend.type must be 'memory' or 'database', got '%s'", c.Backend.Type)
	}
	switch c.Cache.Type {
	case "memory", "none":
	case "redis", "layered":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for cache type '%s'", c.Cache.Type)
		}
	default:
		return fmt.Errorf("cache.type must be one of memory, redis, layered, none; got '%s'", c.Cache.Type)
	}
	switch c.Queue.Mode {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis queue")
		}
	default:
		return fmt.Errorf("queue.mode must be 'local' or 'redis', got '%s'", c.Queue.Mode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Pipeline.ReferenceAsset == "" {
		return fmt.Errorf("pipeline.reference_asset is required")
	}
	return nil
}
