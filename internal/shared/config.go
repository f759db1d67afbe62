package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	App      AppConfig      `toml:"app"`
	Sender   SenderConfig   `toml:"sender"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
}

// AppConfig describes the running environment.
type AppConfig struct {
	Env string `toml:"env"`
}

// SenderConfig contains Sender.net API credentials and sync tuning.
type SenderConfig struct {
	APIKey       string   `toml:"api_key"`
	BaseURL      string   `toml:"base_url"`
	Enabled      bool     `toml:"enabled"`
	CacheTTL     int      `toml:"cache_ttl"` // seconds
	Timeout      int      `toml:"timeout"`   // seconds
	DelayMS      int      `toml:"delay_ms"`
	RateLimit    float64  `toml:"rate_limit"` // requests per second
	MaxRetries   int      `toml:"max_retries"`
	PerPage      int      `toml:"per_page"`
	MaxPages     int      `toml:"max_pages"`
	DisabledEnvs []string `toml:"disabled_envs"`
	CacheDriver  string   `toml:"cache_driver"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig points the group cache at a shared Redis instance when sender.cache_driver is "redis".
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// CacheTTLDuration returns the group cache TTL as a [time.Duration].
func (s SenderConfig) CacheTTLDuration() time.Duration {
	return time.Duration(s.CacheTTL) * time.Second
}

// TimeoutDuration returns the per-call timeout as a [time.Duration].
func (s SenderConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Delay returns the minimum spacing between mutating calls.
func (s SenderConfig) Delay() time.Duration {
	return time.Duration(s.DelayMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads the given dotenv files (missing files are ignored) and overrides config values from the environment.
//
// Recognized variables: APP_ENV, SENDER_API_KEY, SENDER_ENABLED, SENDER_CACHE_TTL, SENDER_TIMEOUT,
// SENDER_BASE_URL, REDIS_ADDR.
func ApplyEnv(config *Config, files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%w: failed to load %s: %v", ErrInvalidConfig, f, err)
		}
	}

	if v, ok := os.LookupEnv("APP_ENV"); ok {
		config.App.Env = v
	}
	if v, ok := os.LookupEnv("SENDER_API_KEY"); ok {
		config.Sender.APIKey = v
	}
	if v, ok := os.LookupEnv("SENDER_BASE_URL"); ok && v != "" {
		config.Sender.BaseURL = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		config.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("SENDER_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: SENDER_ENABLED=%q", ErrInvalidConfig, v)
		}
		config.Sender.Enabled = enabled
	}
	if v, ok := os.LookupEnv("SENDER_CACHE_TTL"); ok && v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl < 0 {
			return fmt.Errorf("%w: SENDER_CACHE_TTL=%q", ErrInvalidConfig, v)
		}
		config.Sender.CacheTTL = ttl
	}
	if v, ok := os.LookupEnv("SENDER_TIMEOUT"); ok && v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil || timeout <= 0 {
			return fmt.Errorf("%w: SENDER_TIMEOUT=%q", ErrInvalidConfig, v)
		}
		config.Sender.Timeout = timeout
	}

	return nil
}

// Validate checks value ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	s := c.Sender
	switch s.CacheDriver {
	case "", "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("%w: sender.cache_driver %q (want memory, sqlite or redis)", ErrInvalidConfig, s.CacheDriver)
	}
	if s.CacheDriver == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("%w: sender.cache_driver is redis but redis.addr is empty", ErrInvalidConfig)
	}
	if s.PerPage < 1 || s.PerPage > 100 {
		return fmt.Errorf("%w: sender.per_page must be between 1 and 100, got %d", ErrInvalidConfig, s.PerPage)
	}
	if s.MaxPages < 1 {
		return fmt.Errorf("%w: sender.max_pages must be positive, got %d", ErrInvalidConfig, s.MaxPages)
	}
	if s.Timeout < 1 {
		return fmt.Errorf("%w: sender.timeout must be positive, got %d", ErrInvalidConfig, s.Timeout)
	}
	if s.DelayMS < 0 || s.RateLimit < 0 || s.CacheTTL < 0 {
		return fmt.Errorf("%w: sender delay_ms, rate_limit and cache_ttl must not be negative", ErrInvalidConfig)
	}
	return nil
}
