package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	User     UserConfig     `mapstructure:"user"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// UserConfig names the user signed in when the daemon starts. Leave ID empty
// to wait for a sign-in through the API.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// TrackingConfig defines timer intervals and platform behaviour
type TrackingConfig struct {
	PollInterval     string `mapstructure:"poll_interval"`
	SessionTick      string `mapstructure:"session_tick"`
	LookbackDays     int    `mapstructure:"lookback_days"`
	AssumeForeground bool   `mapstructure:"assume_foreground"`
	HostCounter      bool   `mapstructure:"host_counter"`
}

// StorageConfig defines the durable local cache
type StorageConfig struct {
	Type string `mapstructure:"type"` // "bolt" or "file"
	Path string `mapstructure:"path"` // bolt file, or directory for "file"
	Key  string `mapstructure:"key"`
}

// RemoteConfig defines the remote per-day record store
type RemoteConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	Type          string      `mapstructure:"type"`
	SyncInterval  string      `mapstructure:"sync_interval"`
	PushCacheSize int         `mapstructure:"push_cache_size"`
	Redis         RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults and environment only
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8787)
	v.SetDefault("server.metrics_port", 9787)

	v.SetDefault("user.id", "")

	v.SetDefault("tracking.poll_interval", "60s")
	v.SetDefault("tracking.session_tick", "30s")
	v.SetDefault("tracking.lookback_days", 7)
	v.SetDefault("tracking.assume_foreground", true)
	v.SetDefault("tracking.host_counter", true)

	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/kwell/kwell.bolt")
	v.SetDefault("storage.key", "dailyStats")

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.type", "redis")
	v.SetDefault("remote.sync_interval", "5m")
	v.SetDefault("remote.push_cache_size", 64)
	v.SetDefault("remote.redis.host", "localhost")
	v.SetDefault("remote.redis.port", 6379)
	v.SetDefault("remote.redis.db", 0)
	v.SetDefault("remote.redis.pool_size", 10)
	v.SetDefault("remote.redis.min_idle_conns", 2)
	v.SetDefault("remote.redis.dial_timeout", "5s")
	v.SetDefault("remote.redis.read_timeout", "3s")
	v.SetDefault("remote.redis.write_timeout", "3s")
	v.SetDefault("remote.redis.key_prefix", "kwell")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate checks a loaded configuration. It does not touch the filesystem.
func Validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	for name, value := range map[string]string{
		"tracking.poll_interval": cfg.Tracking.PollInterval,
		"tracking.session_tick":  cfg.Tracking.SessionTick,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.Tracking.LookbackDays <= 0 {
		return fmt.Errorf("tracking.lookback_days must be positive")
	}

	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if cfg.Storage.Key == "" {
		cfg.Storage.Key = "dailyStats"
	}
	switch cfg.Storage.Type {
	case "":
		cfg.Storage.Type = "bolt"
	case "bolt", "file":
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt or file)", cfg.Storage.Type)
	}

	if cfg.Remote.Enabled {
		if cfg.Remote.Type != "redis" {
			return fmt.Errorf("unsupported remote type: %s (only 'redis' is supported)", cfg.Remote.Type)
		}
		if cfg.Remote.Redis.Host == "" {
			return fmt.Errorf("remote.redis.host is required when remote sync is enabled")
		}
		if _, err := time.ParseDuration(cfg.Remote.SyncInterval); err != nil {
			return fmt.Errorf("invalid remote.sync_interval: %w", err)
		}
	}

	return nil
}

// Defaults returns the configuration used when no file or environment
// override is present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// KnownKeys returns the set of recognised configuration keys.
func KnownKeys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	// optional keys with no default
	keys["remote.redis.password"] = true
	return keys
}
