package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// APIConfig holds the REST backend settings.
type APIConfig struct {
	// BaseURL is the API root, e.g. https://ggcraft.example.com/api.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single REST call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// AuthEndpoint returns the private channel authorization URL. The
// endpoint lives under /api; it is appended when the base URL does not
// already end there.
func (c APIConfig) AuthEndpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.HasSuffix(base, "/api") {
		return base + "/broadcasting/auth"
	}
	return base + "/api/broadcasting/auth"
}

// WebSocketConfig holds the push channel server settings.
type WebSocketConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	Key    string `mapstructure:"key" yaml:"key"`
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
}

// URL returns the websocket URL for the configured application key.
func (c WebSocketConfig) URL() string {
	scheme := "ws"
	if c.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/app/%s", scheme, c.Host, c.Port, c.Key)
}

// StorageConfig selects the durable store backing the notification cache.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "redis".
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// RedisURL is used when Driver is "redis".
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"`

	// RedisPrefix namespaces keys written to Redis.
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// ReconnectConfig controls how a dropped channel is re-established.
type ReconnectConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	InitialIntervalMs int  `mapstructure:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalSec    int  `mapstructure:"max_interval_sec" yaml:"max_interval_sec"`
	MaxAttempts       int  `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// InitialInterval returns the first backoff delay.
func (c ReconnectConfig) InitialInterval() time.Duration {
	if c.InitialIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.InitialIntervalMs) * time.Millisecond
}

// MaxInterval returns the backoff delay cap.
func (c ReconnectConfig) MaxInterval() time.Duration {
	if c.MaxIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.MaxIntervalSec) * time.Second
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig holds the optional Prometheus endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API        APIConfig       `mapstructure:"api" yaml:"api"`
	WebSockets WebSocketConfig `mapstructure:"websockets" yaml:"websockets"`
	Storage    StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Reconnect  ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// ConfigDir returns ~/.config/ggcraft, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ggcraft")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ggcraft/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaults returns the default value of every config key. Keys must be
// registered here for GGCRAFT_* environment overrides to apply.
func defaults() map[string]any {
	dir := ConfigDir()
	return map[string]any{
		"api.base_url":                  "http://localhost:8000/api",
		"api.timeout_sec":               30,
		"websockets.host":               "localhost",
		"websockets.port":               6001,
		"websockets.key":                "local",
		"websockets.scheme":             "http",
		"storage.driver":                "sqlite",
		"storage.path":                  filepath.Join(dir, "ggcraft.db"),
		"storage.redis_url":             "",
		"storage.redis_prefix":          "ggcraft:",
		"reconnect.enabled":             true,
		"reconnect.initial_interval_ms": 1000,
		"reconnect.max_interval_sec":    30,
		"reconnect.max_attempts":        8,
		"log.level":                     "info",
		"log.file":                      filepath.Join(dir, "ggcraft.log"),
		"metrics.addr":                  "",
	}
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"api-url":      "api.base_url",
	"ws-host":      "websockets.host",
	"ws-port":      "websockets.port",
	"ws-key":       "websockets.key",
	"ws-scheme":    "websockets.scheme",
	"store":        "storage.driver",
	"db":           "storage.path",
	"redis-url":    "storage.redis_url",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"metrics-addr": "metrics.addr",
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values are layered as defaults < file < GGCRAFT_* environment < flags.
// A missing file is not an error. flags may be nil.
func LoadConfig(path string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("GGCRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	switch cfg.Storage.Driver {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "redis" && cfg.Storage.RedisURL == "" {
		return nil, fmt.Errorf("storage.redis_url is required for the redis driver")
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("websockets", cfg.WebSockets)
	v.Set("storage", cfg.Storage)
	v.Set("reconnect", cfg.Reconnect)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
