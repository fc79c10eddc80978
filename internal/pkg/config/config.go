// Package config loads relay settings from defaults, an optional YAML file and the
// environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when Load is given an empty path.
const DefaultPath = "config.yaml"

// EnvPrefix marks relay environment variables; "__" separates levels,
// e.g. RELAY_LLM__MODEL sets llm.model.
const EnvPrefix = "RELAY_"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	LLM        LLMConfig        `koanf:"llm"`
	HTTPClient HTTPClientConfig `koanf:"http_client"`
	Action     ActionConfig     `koanf:"action"`
	Delivery   DeliveryConfig   `koanf:"delivery"`
	Storage    StorageConfig    `koanf:"storage"`
	Events     EventsConfig     `koanf:"events"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Port           int            `koanf:"port"`
	RequestTimeout time.Duration  `koanf:"request_timeout"`
	MaxBodyBytes   int64          `koanf:"max_body_bytes"`
	APIKeys        []APIKeyConfig `koanf:"api_keys"` // Empty disables inbound auth
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

// LLMConfig points at an OpenAI-compatible chat-completions backend.
type LLMConfig struct {
	BaseURL              string        `koanf:"base_url"`
	APIKey               string        `koanf:"api_key"`
	Model                string        `koanf:"model"`
	Timeout              time.Duration `koanf:"timeout"`
	JSONMode             bool          `koanf:"json_mode"`
	MaxDescriptionTokens int           `koanf:"max_description_tokens"` // 0 disables the check
	Temperature          *float64      `koanf:"temperature"`
}

// HTTPClientConfig configures the shared outbound client actions run with.
type HTTPClientConfig struct {
	Timeout              time.Duration `koanf:"timeout"`
	ConnectTimeout       time.Duration `koanf:"connect_timeout"`
	InsecureSkipVerify   bool          `koanf:"insecure_skip_verify"`
	BlockPrivateNetworks bool          `koanf:"block_private_networks"`
}

type ActionConfig struct {
	Timeout          time.Duration `koanf:"timeout"`
	MaxResponseBytes int64         `koanf:"max_response_bytes"`
}

type DeliveryConfig struct {
	Timeout       time.Duration     `koanf:"timeout"`
	Concurrency   int               `koanf:"concurrency"`    // 0 means unlimited
	FailurePolicy string            `koanf:"failure_policy"` // log, notify
	Headers       map[string]string `koanf:"headers"`
	UserAgent     string            `koanf:"user_agent"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, bolt, none
	Memory MemoryConfig `koanf:"memory"`
	SQLite SQLiteConfig `koanf:"sqlite"`
	Bolt   BoltConfig   `koanf:"bolt"`
}

type MemoryConfig struct {
	// MaxInvocations caps the journal; the oldest invocation is evicted first
	MaxInvocations int `koanf:"max_invocations"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type BoltConfig struct {
	Path string `koanf:"path"`
}

type EventsConfig struct {
	Type  string      `koanf:"type"` // direct, redis, none
	Redis RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Stream   string `koanf:"stream"`
	MaxLen   int64  `koanf:"max_len"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

var defaults = map[string]any{
	"server.port":                        8080,
	"server.request_timeout":             "60s",
	"server.max_body_bytes":              1 << 20,
	"llm.base_url":                       "https://api.openai.com/v1",
	"llm.model":                          "gpt-4o-mini",
	"llm.timeout":                        "60s",
	"llm.json_mode":                      true,
	"http_client.timeout":                "500s",
	"http_client.connect_timeout":        "10s",
	"http_client.insecure_skip_verify":   false,
	"http_client.block_private_networks": false,
	"action.timeout":                     "500s",
	"action.max_response_bytes":          10 << 20,
	"delivery.timeout":                   "30s",
	"delivery.concurrency":               0,
	"delivery.failure_policy":            "log",
	"delivery.user_agent":                "polyglot-webhook-relay/1.0",
	"storage.type":                       "memory",
	"storage.memory.max_invocations":     10000,
	"storage.sqlite.path":                "./data/relay.db",
	"storage.bolt.path":                  "./data/relay.bolt",
	"events.type":                        "direct",
	"events.redis.stream":                "relay:invocation_events",
	"metrics.enabled":                    true,
	"telemetry.enabled":                  false,
	"log.level":                          "info",
	"log.format":                         "json",
}

// legacyEnv maps the original deployment's variable names onto config keys.
var legacyEnv = map[string]string{
	"OPENAI_BASE_URL": "llm.base_url",
	"OPENAI_API_KEY":  "llm.api_key",
	"MODEL":           "llm.model",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	// Prefixed environment variables override everything else
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Events.Redis.Password = substituteEnvVars(cfg.Events.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime. The LLM
// credential is not checked; a bad key surfaces as a synthesis error.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive"))
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("llm.base_url is required"))
	}
	if c.Delivery.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("delivery.concurrency must not be negative"))
	}
	switch c.Delivery.FailurePolicy {
	case "log", "notify":
	default:
		errs = append(errs, fmt.Errorf("delivery.failure_policy %q must be log or notify", c.Delivery.FailurePolicy))
	}
	switch c.Storage.Type {
	case "memory", "sqlite", "bolt", "none":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not supported", c.Storage.Type))
	}
	if c.Storage.Memory.MaxInvocations <= 0 {
		errs = append(errs, fmt.Errorf("storage.memory.max_invocations must be positive"))
	}
	switch c.Events.Type {
	case "direct", "none":
	case "redis":
		if c.Events.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("events.redis.addr is required for redis events"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.type %q is not supported", c.Events.Type))
	}
	if c.Events.Type == "direct" && c.Storage.Type == "none" {
		errs = append(errs, fmt.Errorf("events.type direct needs a storage backend"))
	}
	for i, key := range c.Server.APIKeys {
		if len(key.KeyHash) != 64 {
			errs = append(errs, fmt.Errorf("server.api_keys[%d].key_hash must be a hex SHA-256 digest", i))
		}
	}
	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
