// Package config provides configuration management for the Hub and the
// Client Runtime. Hub settings load from environment variables, an
// optional config file, and defaults (LoadHub); Client Runtime settings
// load from environment variables and defaults only (LoadRuntime).
// Keepalive mode and wait budgets live in these records rather than in
// scattered environment lookups. The Request Classifier's table is not
// part of this configuration: it is the built-in
// classifier.DefaultTable().
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HubConfig holds all configuration for the Coordination Hub process.
type HubConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Logging LoggingConfig `mapstructure:"logging"`
	Wait    WaitConfig    `mapstructure:"wait"`
	Buffer  BufferConfig  `mapstructure:"buffer"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// AuthConfig gates session opens behind a shared application key. An
// empty key disables the check (open Hub, the developer default).
type AuthConfig struct {
	ApplicationKey string `mapstructure:"applicationKey"`
}

// ServerConfig holds HTTP/SSE server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// NATSConfig holds event-bus configuration. An empty URL selects the
// in-memory event bus instead of a real NATS connection.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig mirrors logger.Config so viper can unmarshal directly into it.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// WaitConfig bounds waitForMentions semantics.
type WaitConfig struct {
	MaxTimeoutMs     int `mapstructure:"maxTimeoutMs"`     // hard cap on a wait's timeoutMs argument
	DrainCap         int `mapstructure:"drainCap"`         // max deliveries returned per wait
	ReconnectGraceMs int `mapstructure:"reconnectGraceMs"` // grace window for registry eviction
}

// BufferConfig bounds the per-agent mention buffer.
type BufferConfig struct {
	SoftCap int `mapstructure:"softCap"`
}

// RuntimeConfig holds all configuration consumed by the Client Runtime,
// matching its recognized environment variables one for one.
type RuntimeConfig struct {
	HubURL                string
	AgentID               string
	KeepaliveMode         string // "off" or "active"
	KeepaliveIntervalMs   int
	WaitTimeoutMs         int
	ReconnectMaxBackoffMs int
}

func setHubDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "coordhub")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("wait.maxTimeoutMs", 60000)
	v.SetDefault("wait.drainCap", 64)
	v.SetDefault("wait.reconnectGraceMs", 30000)

	v.SetDefault("buffer.softCap", 1024)

	v.SetDefault("auth.applicationKey", "")
}

// LoadHub reads Hub configuration from environment variables, an optional
// config.yaml, and defaults.
func LoadHub() (*HubConfig, error) {
	return LoadHubWithPath("")
}

// LoadHubWithPath is LoadHub with an explicit config file search path.
func LoadHubWithPath(configPath string) (*HubConfig, error) {
	v := viper.New()
	setHubDefaults(v)

	v.SetEnvPrefix("HUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "HUB_PORT")
	_ = v.BindEnv("logging.level", "HUB_LOG_LEVEL")
	_ = v.BindEnv("nats.url", "HUB_NATS_URL")
	_ = v.BindEnv("wait.maxTimeoutMs", "HUB_WAIT_MAX_TIMEOUT_MS")
	_ = v.BindEnv("auth.applicationKey", "HUB_APPLICATION_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/coordhub/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg HubConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateHub(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateHub(cfg *HubConfig) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Wait.MaxTimeoutMs <= 0 {
		errs = append(errs, "wait.maxTimeoutMs must be positive")
	}
	if cfg.Buffer.SoftCap <= 0 {
		errs = append(errs, "buffer.softCap must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadRuntime reads Client Runtime configuration purely from environment
// variables, applying the documented defaults where unset.
func LoadRuntime() (*RuntimeConfig, error) {
	v := viper.New()
	v.SetDefault("KEEPALIVE_MODE", "off")
	v.SetDefault("KEEPALIVE_INTERVAL_MS", 3000)
	v.SetDefault("WAIT_TIMEOUT_MS", 20000)
	v.SetDefault("RECONNECT_MAX_BACKOFF_MS", 16000)
	v.AutomaticEnv()

	cfg := &RuntimeConfig{
		HubURL:                v.GetString("HUB_URL"),
		AgentID:               v.GetString("AGENT_ID"),
		KeepaliveMode:         v.GetString("KEEPALIVE_MODE"),
		KeepaliveIntervalMs:   v.GetInt("KEEPALIVE_INTERVAL_MS"),
		WaitTimeoutMs:         v.GetInt("WAIT_TIMEOUT_MS"),
		ReconnectMaxBackoffMs: v.GetInt("RECONNECT_MAX_BACKOFF_MS"),
	}

	if cfg.HubURL == "" {
		return nil, fmt.Errorf("HUB_URL is required")
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("AGENT_ID is required")
	}
	if cfg.KeepaliveMode != "off" && cfg.KeepaliveMode != "active" {
		return nil, fmt.Errorf("KEEPALIVE_MODE must be 'off' or 'active', got %q", cfg.KeepaliveMode)
	}

	return cfg, nil
}
