package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Session    SessionConfig    `mapstructure:"session"`
	Generation GenerationConfig `mapstructure:"generation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Tension    TensionConfig    `mapstructure:"tension"`
	Content    ContentConfig    `mapstructure:"content"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type SessionConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	EventBuffer  int           `mapstructure:"event_buffer"`
}

type GenerationConfig struct {
	Provider   string `mapstructure:"provider"` // "openai" or "gemini"
	Model      string `mapstructure:"model"`
	APIURL     string `mapstructure:"api_url"`
	APIKey     string `mapstructure:"api_key"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	QueueSize  int    `mapstructure:"queue_size"`
	MemorySize int    `mapstructure:"memory_size"`
}

type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // "inmem" or "redis"
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"` // 0 keeps entries forever
}

type TensionConfig struct {
	MinEventInterval float64 `mapstructure:"min_event_interval"` // seconds
	MaxEventInterval float64 `mapstructure:"max_event_interval"` // seconds
	SourceDecayRate  float64 `mapstructure:"source_decay_rate"`  // units per second
}

type ContentConfig struct {
	TemplateDir string `mapstructure:"template_dir"`
}

// Load reads config.yaml from path (or the working directory), applies
// ECHO_MANOR_* environment overrides and falls back to defaults for
// everything else. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	} else {
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("ECHO_MANOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Provider keys may come from the plain conventional variables too.
	if cfg.Generation.APIKey == "" {
		switch cfg.Generation.Provider {
		case "gemini":
			cfg.Generation.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("session.tick_interval", "100ms")
	v.SetDefault("session.event_buffer", 32)

	v.SetDefault("generation.provider", "openai")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.api_url", "https://api.openai.com/v1")
	v.SetDefault("generation.max_tokens", 300)
	v.SetDefault("generation.queue_size", 64)
	v.SetDefault("generation.memory_size", 10)

	v.SetDefault("cache.backend", "inmem")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.prefix", "gen")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("tension.min_event_interval", 15.0)
	v.SetDefault("tension.max_event_interval", 45.0)
	v.SetDefault("tension.source_decay_rate", 0.05)

	v.SetDefault("content.template_dir", "content/templates")
}

// Validate rejects configurations the service cannot run with. The API
// key is checked later, when the backend is actually built, so tools
// that never call the provider can still load the config.
func (c *Config) Validate() error {
	switch c.Generation.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown generation provider %q", c.Generation.Provider)
	}

	switch c.Cache.Backend {
	case "inmem", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	return nil
}

// Addr is the listen address for the API server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
