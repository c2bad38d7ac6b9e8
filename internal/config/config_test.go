package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tracking.PollInterval != "60s" {
		t.Errorf("expected 60s poll interval, got %s", cfg.Tracking.PollInterval)
	}
	if cfg.Tracking.SessionTick != "30s" {
		t.Errorf("expected 30s session tick, got %s", cfg.Tracking.SessionTick)
	}
	if cfg.Tracking.LookbackDays != 7 {
		t.Errorf("expected 7 lookback days, got %d", cfg.Tracking.LookbackDays)
	}
	if cfg.Storage.Key != "dailyStats" {
		t.Errorf("expected dailyStats key, got %s", cfg.Storage.Key)
	}
	if cfg.Remote.Enabled {
		t.Error("expected remote sync to be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kwell.yaml")
	content := `
user:
  id: alice
storage:
  type: file
  path: /tmp/kwell-test
remote:
  enabled: true
  redis:
    host: redis.internal
    port: 6380
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.User.ID != "alice" {
		t.Errorf("expected user alice, got %q", cfg.User.ID)
	}
	if cfg.Storage.Type != "file" {
		t.Errorf("expected file storage, got %s", cfg.Storage.Type)
	}
	if cfg.Remote.Redis.Host != "redis.internal" || cfg.Remote.Redis.Port != 6380 {
		t.Errorf("unexpected redis settings: %+v", cfg.Remote.Redis)
	}
	if cfg.Remote.Redis.DialTimeout != "5s" {
		t.Errorf("expected default dial timeout, got %s", cfg.Remote.Redis.DialTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("KWELL_USER_ID", "bob")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.User.ID != "bob" {
		t.Errorf("expected user from environment, got %q", cfg.User.ID)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:   ServerConfig{APIPort: 8787, MetricsPort: 9787},
			Tracking: TrackingConfig{PollInterval: "60s", SessionTick: "30s", LookbackDays: 7},
			Storage:  StorageConfig{Type: "bolt", Path: "/tmp/x.bolt", Key: "dailyStats"},
			Remote:   RemoteConfig{Type: "redis", SyncInterval: "5m", Redis: RedisConfig{Host: "localhost"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad api port", func(c *Config) { c.Server.APIPort = 0 }, true},
		{"bad poll interval", func(c *Config) { c.Tracking.PollInterval = "soon" }, true},
		{"zero tick", func(c *Config) { c.Tracking.SessionTick = "0s" }, true},
		{"no lookback", func(c *Config) { c.Tracking.LookbackDays = 0 }, true},
		{"unknown storage", func(c *Config) { c.Storage.Type = "sqlite" }, true},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, true},
		{"remote without host", func(c *Config) {
			c.Remote.Enabled = true
			c.Remote.Redis.Host = ""
		}, true},
		{"remote enabled", func(c *Config) { c.Remote.Enabled = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsMatchLoad(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.APIPort != 8787 {
		t.Errorf("expected API port 8787, got %d", cfg.Server.APIPort)
	}
	if cfg.Remote.SyncInterval != "5m" {
		t.Errorf("expected 5m sync interval, got %s", cfg.Remote.SyncInterval)
	}
}

func TestKnownKeys(t *testing.T) {
	keys := KnownKeys()
	for _, key := range []string{"tracking.poll_interval", "remote.redis.host", "remote.redis.password", "logging.max_age_days"} {
		if !keys[key] {
			t.Errorf("expected %s to be a known key", key)
		}
	}
	if keys["tracking.poll_interal"] {
		t.Error("misspelled key reported as known")
	}
}
