package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/gatewayctl/internal/gateway"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("GATEWAYCTL_EXAMPLE_TOKEN", "from-env")
	path := filepath.Join("..", "..", "cmd", "gatewayctl", "ex.config.toml")

	rt, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg := rt.Gateway
	if cfg.Token != "from-env" {
		t.Fatalf("unexpected token: %q", cfg.Token)
	}
	if cfg.GatewayURL != gateway.DefaultGatewayURL {
		t.Fatalf("unexpected gateway url: %q", cfg.GatewayURL)
	}
	if cfg.MaxReconnectAttempts != 10 {
		t.Fatalf("unexpected max attempts: %d", cfg.MaxReconnectAttempts)
	}
	if cfg.Session.HelloTimeout != 20*time.Second {
		t.Fatalf("unexpected hello timeout: %v", cfg.Session.HelloTimeout)
	}
	if cfg.Session.Backoff.InitialDelay != time.Second || cfg.Session.Backoff.MaxDelay != time.Minute {
		t.Fatalf("unexpected backoff: %+v", cfg.Session.Backoff)
	}
	if !cfg.Cache.Users || !cfg.Cache.Guilds || cfg.Cache.Relationships {
		t.Fatalf("unexpected cache toggles: %+v", cfg.Cache)
	}
	if rt.MetricsAddr != "127.0.0.1:9464" || rt.LogLevel != "info" {
		t.Fatalf("unexpected runtime: addr=%q level=%q", rt.MetricsAddr, rt.LogLevel)
	}
}

func TestLoadDefaultsWhenKeysAbsent(t *testing.T) {
	path := writeConfig(t, `token = "abc"`)
	rt, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := gateway.DefaultConfig()
	cfg := rt.Gateway
	if cfg.Token != "abc" || cfg.GatewayURL != def.GatewayURL {
		t.Fatalf("unexpected config: token=%q url=%q", cfg.Token, cfg.GatewayURL)
	}
	if cfg.Session != session.DefaultConfig() {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Cache != def.Cache || cfg.Intents != nil {
		t.Fatalf("unexpected cache/intents: %+v %v", cfg.Cache, cfg.Intents)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
token = "abc"
gateway_url = ""
status = "idle"
intents = 513
max_reconnect_attempts = 3
hello_timeout = "5s"

[backoff]
initial = "250ms"
multiplier = 1.5
max = "10s"
jitter = 0.1

[cache]
users = false
`)
	rt, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg := rt.Gateway
	if cfg.GatewayURL != "" {
		t.Fatalf("empty gateway_url should request discovery, got %q", cfg.GatewayURL)
	}
	if cfg.Presence.Status != session.StatusIdle {
		t.Fatalf("unexpected status: %q", cfg.Presence.Status)
	}
	if cfg.Intents == nil || *cfg.Intents != 513 {
		t.Fatalf("unexpected intents: %v", cfg.Intents)
	}
	if cfg.MaxReconnectAttempts != 3 || cfg.Session.HelloTimeout != 5*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	want := session.BackoffConfig{InitialDelay: 250 * time.Millisecond, Multiplier: 1.5, MaxDelay: 10 * time.Second, Jitter: 0.1}
	if cfg.Session.Backoff != want {
		t.Fatalf("unexpected backoff: %+v", cfg.Session.Backoff)
	}
	if cfg.Cache.Users || !cfg.Cache.Channels {
		t.Fatalf("unexpected cache toggles: %+v", cfg.Cache)
	}
}

func TestLoadTokenFromDefaultEnv(t *testing.T) {
	t.Setenv(DefaultTokenEnv, " env-token ")
	rt, err := Load(writeConfig(t, `max_reconnect_attempts = 1`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if rt.Gateway.Token != "env-token" {
		t.Fatalf("unexpected token: %q", rt.Gateway.Token)
	}
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv(DefaultTokenEnv, "")
	_, err := Load(writeConfig(t, `token_env = "GATEWAYCTL_UNSET_TOKEN"`))
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad duration":   "token = \"x\"\nhello_timeout = \"abc\"",
		"zero duration":  "token = \"x\"\nwrite_timeout = \"0s\"",
		"bad status":     "token = \"x\"\nstatus = \"busy\"",
		"negative max":   "token = \"x\"\nmax_reconnect_attempts = -1",
		"low multiplier": "token = \"x\"\n[backoff]\nmultiplier = 0.5",
		"wide jitter":    "token = \"x\"\n[backoff]\njitter = 2.0",
		"inverted caps":  "token = \"x\"\n[backoff]\ninitial = \"2m\"\nmax = \"1m\"",
		"unknown key":    "token = \"x\"\nheartbeat = \"1s\"",
		"syntax":         "token = ",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}
