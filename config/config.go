// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. A .env file is honored if present; for
// secrets (the API key) the environment is the only source.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"circuit_breaker"`
	Validator ValidatorConfig `yaml:"validator"`
	Redis     RedisConfig     `yaml:"redis,omitempty"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type OpenAIConfig struct {
	// APIKey comes from the environment only (OPENAI_API_KEY); it is never
	// read from or written to the YAML file.
	APIKey string `yaml:"-"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxTokens caps completion length per request.
	MaxTokens int `yaml:"max_tokens"`

	// UpstreamRPS smooths outgoing provider calls; 0 disables smoothing.
	UpstreamRPS   float64 `yaml:"upstream_rps,omitempty"`
	UpstreamBurst int     `yaml:"upstream_burst,omitempty"`
}

type RateLimitConfig struct {
	MaxPerMinute int `yaml:"max_per_minute"`
	MaxPerHour   int `yaml:"max_per_hour"`

	// ReapInterval is how often idle clients are evicted. Format: "10m", "1h".
	ReapInterval string `yaml:"reap_interval"`
}

type BreakerConfig struct {
	// Threshold is the consecutive-failure count before the circuit opens.
	Threshold int `yaml:"threshold"`

	// TimeoutSeconds is how long the circuit stays open before admitting a
	// recovery probe.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ValidatorConfig struct {
	MaxQueryLength   int     `yaml:"max_query_length"`
	SpecialCharRatio float64 `yaml:"special_char_ratio"`
}

// RedisConfig is optional; when Addr is set the rate limiter uses Redis so
// several instances share quotas.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: "8080"},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 500,
		},
		RateLimit: RateLimitConfig{
			MaxPerMinute: 20,
			MaxPerHour:   100,
			ReapInterval: "10m",
		},
		Breaker: BreakerConfig{
			Threshold:      5,
			TimeoutSeconds: 60,
		},
		Validator: ValidatorConfig{
			MaxQueryLength:   1000,
			SpecialCharRatio: 0.3,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides, then validation.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
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

// applyEnv layers environment variables over the file values. Env always wins.
func (c *Config) applyEnv() error {
	c.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))

	setString(&c.Server.Host, "SERVER_HOST")
	setString(&c.Server.Port, "SERVER_PORT")
	setString(&c.OpenAI.Model, "OPENAI_CHAT_MODEL")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	for _, v := range []struct {
		dst  *int
		name string
	}{
		{&c.RateLimit.MaxPerMinute, "MAX_REQUESTS_PER_MINUTE"},
		{&c.RateLimit.MaxPerHour, "MAX_REQUESTS_PER_HOUR"},
		{&c.Breaker.Threshold, "CIRCUIT_BREAKER_THRESHOLD"},
		{&c.Breaker.TimeoutSeconds, "CIRCUIT_BREAKER_TIMEOUT_SECONDS"},
		{&c.Validator.MaxQueryLength, "MAX_QUERY_LENGTH"},
		{&c.Redis.DB, "REDIS_DB"},
	} {
		if err := setInt(v.dst, v.name); err != nil {
			return err
		}
	}

	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s must be a number: %v", ErrInvalidConfig, name, err)
	}
	*dst = n
	return nil
}

// Validate checks that the configuration can actually run the service.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" || c.OpenAI.APIKey == "sk-your-api-key-here" {
		return fmt.Errorf("%w: OPENAI_API_KEY must be set to a valid API key", ErrInvalidConfig)
	}
	if c.Server.Port == "" || c.Server.Port == "0" {
		return fmt.Errorf("%w: server port must be a valid port number", ErrInvalidConfig)
	}
	if c.RateLimit.MaxPerMinute <= 0 || c.RateLimit.MaxPerHour <= 0 {
		return fmt.Errorf("%w: rate limits must be positive", ErrInvalidConfig)
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("%w: circuit breaker threshold must be positive", ErrInvalidConfig)
	}
	if c.Breaker.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: circuit breaker timeout must be positive", ErrInvalidConfig)
	}
	if c.Validator.MaxQueryLength <= 0 {
		return fmt.Errorf("%w: max query length must be positive", ErrInvalidConfig)
	}
	if c.Validator.SpecialCharRatio <= 0 || c.Validator.SpecialCharRatio > 1 {
		return fmt.Errorf("%w: special char ratio must be in (0, 1]", ErrInvalidConfig)
	}
	if _, err := c.ReapInterval(); err != nil {
		return err
	}
	return nil
}

// ReapInterval parses the idle-eviction interval.
func (c *Config) ReapInterval() (time.Duration, error) {
	if c.RateLimit.ReapInterval == "" {
		return 10 * time.Minute, nil
	}
	d, err := time.ParseDuration(c.RateLimit.ReapInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid reap_interval: %v", ErrInvalidConfig, err)
	}
	return d, nil
}

// BreakerTimeout returns the open-circuit timeout as a duration.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Breaker.TimeoutSeconds) * time.Second
}
