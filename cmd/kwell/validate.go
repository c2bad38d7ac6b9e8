package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goodtune/kwell/internal/config"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the kwell configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// findUnknownKeys reads the config file and returns keys kwell does not use
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	valid := config.KnownKeys()
	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	_, _ = cyan.Println("\n[user]")
	dumpField("  id", cfg.User.ID, defaultCfg.User.ID, yellow, green)

	_, _ = cyan.Println("\n[tracking]")
	dumpField("  poll_interval", cfg.Tracking.PollInterval, defaultCfg.Tracking.PollInterval, yellow, green)
	dumpField("  session_tick", cfg.Tracking.SessionTick, defaultCfg.Tracking.SessionTick, yellow, green)
	dumpField("  lookback_days", cfg.Tracking.LookbackDays, defaultCfg.Tracking.LookbackDays, yellow, green)
	dumpField("  assume_foreground", cfg.Tracking.AssumeForeground, defaultCfg.Tracking.AssumeForeground, yellow, green)
	dumpField("  host_counter", cfg.Tracking.HostCounter, defaultCfg.Tracking.HostCounter, yellow, green)

	_, _ = cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	dumpField("  key", cfg.Storage.Key, defaultCfg.Storage.Key, yellow, green)

	_, _ = cyan.Println("\n[remote]")
	dumpField("  enabled", cfg.Remote.Enabled, defaultCfg.Remote.Enabled, yellow, green)
	dumpField("  type", cfg.Remote.Type, defaultCfg.Remote.Type, yellow, green)
	dumpField("  sync_interval", cfg.Remote.SyncInterval, defaultCfg.Remote.SyncInterval, yellow, green)
	dumpField("  push_cache_size", cfg.Remote.PushCacheSize, defaultCfg.Remote.PushCacheSize, yellow, green)
	_, _ = cyan.Println("  [remote.redis]")
	dumpField("    host", cfg.Remote.Redis.Host, defaultCfg.Remote.Redis.Host, yellow, green)
	dumpField("    port", cfg.Remote.Redis.Port, defaultCfg.Remote.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Remote.Redis.Password), redactPassword(defaultCfg.Remote.Redis.Password), yellow, green)
	dumpField("    db", cfg.Remote.Redis.DB, defaultCfg.Remote.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Remote.Redis.PoolSize, defaultCfg.Remote.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Remote.Redis.MinIdleConns, defaultCfg.Remote.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Remote.Redis.DialTimeout, defaultCfg.Remote.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Remote.Redis.ReadTimeout, defaultCfg.Remote.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Remote.Redis.WriteTimeout, defaultCfg.Remote.Redis.WriteTimeout, yellow, green)
	dumpField("    key_prefix", cfg.Remote.Redis.KeyPrefix, defaultCfg.Remote.Redis.KeyPrefix, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)
	dumpField("  file", cfg.Logging.File, defaultCfg.Logging.File, yellow, green)
	dumpField("  max_size_mb", cfg.Logging.MaxSizeMB, defaultCfg.Logging.MaxSizeMB, yellow, green)
	dumpField("  max_backups", cfg.Logging.MaxBackups, defaultCfg.Logging.MaxBackups, yellow, green)
	dumpField("  max_age_days", cfg.Logging.MaxAgeDays, defaultCfg.Logging.MaxAgeDays, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue any, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
