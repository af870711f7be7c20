package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/dyluth/tessera/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "tessera.yml"

// Environment overrides, applied after the file is read.
const (
	EnvRedisURL = "TESSERA_REDIS_URL"
	EnvInstance = "TESSERA_INSTANCE"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	defaultInstance = "default"
	fastSuffix      = "-fast"
)

// Fast tier store kinds.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// TesseraConfig represents the top-level tessera.yml configuration
type TesseraConfig struct {
	Version  string          `yaml:"version"`
	Canvas   *CanvasConfig   `yaml:"canvas,omitempty"`
	Cooldown *CooldownConfig `yaml:"cooldown,omitempty"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	FastTier *FastTierConfig `yaml:"fast_tier,omitempty"`
	Logging  *LoggingConfig  `yaml:"logging,omitempty"`
}

// CanvasConfig fixes the canvas geometry. It cannot change once shards exist.
type CanvasConfig struct {
	Resolution     uint32 `yaml:"resolution"`
	ShardDimension uint32 `yaml:"shard_dimension"`
	BitDepth       uint8  `yaml:"bit_depth"` // 4 or 8
}

// CooldownConfig bounds per-session write throughput.
type CooldownConfig struct {
	BurstLimit    *int `yaml:"burst_limit,omitempty"`    // Writes per window (default 50)
	WindowSeconds *int `yaml:"window_seconds,omitempty"` // Lockout after the burst (default 30)
}

// LedgerConfig locates the durable ledger.
type LedgerConfig struct {
	RedisURL string `yaml:"redis_url"`
	Instance string `yaml:"instance"`
}

// FastTierConfig locates the fast tier's record store.
type FastTierConfig struct {
	Store    string `yaml:"store"` // "redis" or "memory"
	RedisURL string `yaml:"redis_url,omitempty"`
	Instance string `yaml:"instance,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file exists.
func Default() *TesseraConfig {
	c := &TesseraConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic("config: defaults are invalid: " + err.Error())
	}
	return c
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *TesseraConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Canvas == nil {
		g := canvas.DefaultGeometry()
		c.Canvas = &CanvasConfig{Resolution: g.Resolution, ShardDimension: g.ShardDimension, BitDepth: uint8(g.BitDepth)}
	}
	if err := c.Geometry().Validate(); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}

	if c.Cooldown == nil {
		c.Cooldown = &CooldownConfig{}
	}
	if c.Cooldown.BurstLimit == nil {
		limit := int(canvas.DefaultBurstLimit)
		c.Cooldown.BurstLimit = &limit
	}
	if c.Cooldown.WindowSeconds == nil {
		window := int(canvas.DefaultWindow / time.Second)
		c.Cooldown.WindowSeconds = &window
	}
	if *c.Cooldown.BurstLimit < 1 || *c.Cooldown.BurstLimit > 255 {
		return fmt.Errorf("cooldown.burst_limit must be between 1 and 255, got %d", *c.Cooldown.BurstLimit)
	}
	if *c.Cooldown.WindowSeconds < 1 {
		return fmt.Errorf("cooldown.window_seconds must be >= 1, got %d", *c.Cooldown.WindowSeconds)
	}

	if c.Ledger.RedisURL == "" {
		c.Ledger.RedisURL = defaultRedisURL
	}
	if c.Ledger.Instance == "" {
		c.Ledger.Instance = defaultInstance
	}
	if _, err := redis.ParseURL(c.Ledger.RedisURL); err != nil {
		return fmt.Errorf("ledger.redis_url: %w", err)
	}
	if err := ledger.ValidateInstanceName(c.Ledger.Instance); err != nil {
		return fmt.Errorf("ledger.instance: %w", err)
	}

	if c.FastTier == nil {
		c.FastTier = &FastTierConfig{}
	}
	if c.FastTier.Store == "" {
		c.FastTier.Store = StoreRedis
	}
	switch c.FastTier.Store {
	case StoreRedis:
		if c.FastTier.RedisURL == "" {
			c.FastTier.RedisURL = c.Ledger.RedisURL
		}
		if c.FastTier.Instance == "" {
			c.FastTier.Instance = c.Ledger.Instance + fastSuffix
		}
		if _, err := redis.ParseURL(c.FastTier.RedisURL); err != nil {
			return fmt.Errorf("fast_tier.redis_url: %w", err)
		}
		if err := ledger.ValidateInstanceName(c.FastTier.Instance); err != nil {
			return fmt.Errorf("fast_tier.instance: %w", err)
		}
		if c.FastTier.RedisURL == c.Ledger.RedisURL && c.FastTier.Instance == c.Ledger.Instance {
			return fmt.Errorf("fast_tier.instance must differ from ledger.instance on the same Redis")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid fast_tier.store: %s (must be 'redis' or 'memory')", c.FastTier.Store)
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s (must be 'text' or 'json')", c.Logging.Format)
	}

	return nil
}

// Geometry returns the canvas geometry.
func (c *TesseraConfig) Geometry() canvas.Geometry {
	return canvas.Geometry{
		Resolution:     c.Canvas.Resolution,
		ShardDimension: c.Canvas.ShardDimension,
		BitDepth:       canvas.BitDepth(c.Canvas.BitDepth),
	}
}

// CooldownPolicy returns the cooldown limiter settings. Call after Validate.
func (c *TesseraConfig) CooldownPolicy() canvas.Cooldown {
	return canvas.Cooldown{
		BurstLimit: uint8(*c.Cooldown.BurstLimit),
		Window:     time.Duration(*c.Cooldown.WindowSeconds) * time.Second,
	}
}

// ApplyEnv overrides ledger settings from the environment.
func (c *TesseraConfig) ApplyEnv() {
	if url := os.Getenv(EnvRedisURL); url != "" {
		c.Ledger.RedisURL = url
	}
	if instance := os.Getenv(EnvInstance); instance != "" {
		c.Ledger.Instance = instance
	}
}

// Load reads and validates tessera.yml from the specified path
func Load(path string) (*TesseraConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config TesseraConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, or returns the defaults (with environment
// overrides) if the file does not exist.
func LoadOrDefault(path string) (*TesseraConfig, error) {
	config, err := Load(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return config, err
	}

	config = &TesseraConfig{Version: "1.0"}
	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
