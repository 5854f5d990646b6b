package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOGUARD_JWT_SECRET", "secret")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Backend != "memory" || cfg.HTTP.Addr != ":8080" || cfg.MaintenanceInterval != time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.HTTP.StrictSessions || cfg.TwoFactor.MaxAttempts != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "goguard.yaml")
	yaml := "backend: redis\nredis:\n  addr: cache:6379\nhttp:\n  addr: \":9000\"\njwt:\n  secret: from-file\nkafka:\n  brokers: [\"k1:9092\"]\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOGUARD_HTTP_ADDR", ":9100")
	t.Setenv("GOGUARD_MAINTENANCE_INTERVAL", "10m")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Backend != "redis" || cfg.Redis.Addr != "cache:6379" || cfg.JWT.Secret != "from-file" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.HTTP.Addr != ":9100" || cfg.MaintenanceInterval != 10*time.Minute {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOGUARD_JWT_SECRET=dotenv-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GOGUARD_JWT_SECRET") })

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.JWT.Secret != "dotenv-secret" {
		t.Fatalf("expected secret from .env, got %q", cfg.JWT.Secret)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]map[string]string{
		"backend":  {"GOGUARD_BACKEND": "postgres", "GOGUARD_JWT_SECRET": "s"},
		"secret":   {},
		"method":   {"GOGUARD_JWT_METHOD": "rs256", "GOGUARD_JWT_SECRET": "s"},
		"ed25519":  {"GOGUARD_JWT_METHOD": "ed25519"},
		"interval": {"GOGUARD_MAINTENANCE_INTERVAL": "-1m", "GOGUARD_JWT_SECRET": "s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(""); err == nil {
				t.Fatal("expected invalid config to be rejected")
			}
		})
	}
}

func TestNewVerifierHS256(t *testing.T) {
	m, err := newVerifier(jwtConfig{Method: "hs256", Secret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("newVerifier failed: %v", err)
	}
	token, err := m.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
}
