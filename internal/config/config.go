package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/anomalyscore/pkg/cache/redisstore"
	"github.com/hed1ad/anomalyscore/pkg/detectors"
	"github.com/hed1ad/anomalyscore/pkg/resource"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "ANOMALY_CONFIG"

// Config is the complete runtime configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Scoring ScoringConfig `yaml:"scoring"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig locates the platform API and its credentials.
type APIConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	APIKey   string `yaml:"api_key"`
}

// CacheConfig selects the scorer cache backend.
type CacheConfig struct {
	Backend string       `yaml:"backend"`
	Redis   RedisConfig  `yaml:"redis"`
	Badger  BadgerConfig `yaml:"badger"`
}

// RedisConfig configures the redis cache backend. A zero TTL keeps entries
// forever.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// BadgerConfig configures the on-disk badger cache backend.
type BadgerConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP scoring server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScoringConfig holds the anomaly threshold applied to every score.
type ScoringConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: resource.DefaultBaseURL,
		},
		Cache: CacheConfig{
			Backend: CacheNone,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: redisstore.DefaultPrefix,
			},
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Scoring: ScoringConfig{
			Threshold: detectors.DefaultConfig().Threshold,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// $ANOMALY_CONFIG when path is empty) and the environment, in that order.
// envFiles are loaded into the environment first; ".env" when none are
// given. A missing env file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.API.BaseURL = getEnv("ANOMALY_API_URL", c.API.BaseURL)
	c.API.Username = getEnv("BIGML_USERNAME", c.API.Username)
	c.API.APIKey = getEnv("BIGML_API_KEY", c.API.APIKey)

	c.Cache.Backend = getEnv("ANOMALY_CACHE", c.Cache.Backend)
	c.Cache.Redis.Addr = getEnv("ANOMALY_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = getEnv("ANOMALY_REDIS_PASSWORD", c.Cache.Redis.Password)
	c.Cache.Redis.Prefix = getEnv("ANOMALY_REDIS_PREFIX", c.Cache.Redis.Prefix)
	c.Cache.Badger.Dir = getEnv("ANOMALY_BADGER_DIR", c.Cache.Badger.Dir)

	c.Server.Addr = getEnv("ANOMALY_LISTEN_ADDR", c.Server.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var err error
	if c.Cache.Redis.DB, err = getEnvAsInt("ANOMALY_REDIS_DB", c.Cache.Redis.DB); err != nil {
		return err
	}
	if c.Cache.Redis.TTL, err = getEnvAsDuration("ANOMALY_REDIS_TTL", c.Cache.Redis.TTL); err != nil {
		return err
	}
	if c.Cache.Badger.TTL, err = getEnvAsDuration("ANOMALY_BADGER_TTL", c.Cache.Badger.TTL); err != nil {
		return err
	}
	if c.Scoring.Threshold, err = getEnvAsFloat("ANOMALY_THRESHOLD", c.Scoring.Threshold); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheNone, CacheMemory, CacheBadger:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("ANOMALY_REDIS_ADDR is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Scoring.Threshold < 0 || c.Scoring.Threshold > 1 {
		return fmt.Errorf("threshold must be within [0, 1], got %v", c.Scoring.Threshold)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("ANOMALY_LISTEN_ADDR is required")
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %w", key, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return value, nil
}
