package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the dispatcher process.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Queue    Queue          `yaml:"queue"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
}

// Queue holds delivery queue tuning.
type Queue struct {
	RateLimit      float64       `yaml:"rate_limit"` // sends per second
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// BreakerConfig holds transport circuit breaker settings.
type BreakerConfig struct {
	Failures int           `yaml:"failures"` // 0 disables
	Reset    time.Duration `yaml:"reset"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	APIRate         float64       `yaml:"api_rate"`  // enqueue requests per second per client
	APIBurst        int           `yaml:"api_burst"` // burst allowance
}

// StorageConfig holds the dead-letter spool location.
type StorageConfig struct {
	DeadLetterDir string `yaml:"dead_letter_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{APIURL: "https://api.telegram.org"},
		Queue:    DefaultQueue(),
		Breaker:  BreakerConfig{Failures: 5, Reset: 30 * time.Second},
		Server:   ServerConfig{HTTPAddr: ":8080", ShutdownTimeout: 10 * time.Second, APIRate: 50, APIBurst: 100},
		Storage:  StorageConfig{DeadLetterDir: "./data/deadletter"},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultQueue returns the default queue tuning.
func DefaultQueue() Queue {
	return Queue{
		RateLimit:      25,
		MaxAttempts:    5,
		BackoffBase:    2 * time.Second,
		BackoffMax:     30 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present, then the YAML file named by TGD_CONFIG, and
// finally individual TGD_* variables override both.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := String("TGD_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config on top of the defaults without consulting the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Telegram.Token = String("TGD_BOT_TOKEN", c.Telegram.Token)
	c.Telegram.APIURL = String("TGD_API_URL", c.Telegram.APIURL)

	c.Queue.RateLimit = Float("TGD_RATE_LIMIT", c.Queue.RateLimit)
	c.Queue.MaxAttempts = Int("TGD_MAX_ATTEMPTS", c.Queue.MaxAttempts)
	c.Queue.BackoffBase = Duration("TGD_BACKOFF_BASE", c.Queue.BackoffBase)
	c.Queue.BackoffMax = Duration("TGD_BACKOFF_MAX", c.Queue.BackoffMax)
	c.Queue.AttemptTimeout = Duration("TGD_ATTEMPT_TIMEOUT", c.Queue.AttemptTimeout)

	c.Breaker.Failures = Count("TGD_BREAKER_FAILURES", c.Breaker.Failures)
	c.Breaker.Reset = Duration("TGD_BREAKER_RESET", c.Breaker.Reset)

	c.Server.HTTPAddr = String("TGD_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.ShutdownTimeout = Duration("TGD_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.APIRate = Float("TGD_API_RATE", c.Server.APIRate)
	c.Server.APIBurst = Int("TGD_API_BURST", c.Server.APIBurst)

	c.Storage.DeadLetterDir = String("TGD_DEADLETTER_DIR", c.Storage.DeadLetterDir)

	c.Log.Level = strings.ToLower(String("TGD_LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(String("TGD_LOG_FORMAT", c.Log.Format))
}

// Validate reports configuration that cannot run.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("TGD_BOT_TOKEN is required")
	}
	if c.Queue.RateLimit <= 0 {
		return fmt.Errorf("queue rate limit must be positive, got %v", c.Queue.RateLimit)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue max attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.BackoffMax < c.Queue.BackoffBase {
		return fmt.Errorf("queue backoff max %s is below base %s", c.Queue.BackoffMax, c.Queue.BackoffBase)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
