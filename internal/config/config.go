// Package config loads gatewayctl TOML files into runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/gatewayctl/internal/gateway"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
)

// DefaultTokenEnv is consulted when the file names neither a token nor a
// token_env.
const DefaultTokenEnv = "GATEWAYCTL_TOKEN"

var ErrMissingToken = errors.New("config: no token in file or environment")

// Runtime is everything a gatewayctl process needs to start.
type Runtime struct {
	Gateway     gateway.Config
	MetricsAddr string
	LogLevel    string
}

type fileConfig struct {
	Token                string      `toml:"token"`
	TokenEnv             string      `toml:"token_env"`
	GatewayURL           string      `toml:"gateway_url"`
	RESTBaseURL          string      `toml:"rest_base_url"`
	Status               string      `toml:"status"`
	Intents              int         `toml:"intents"`
	Compress             bool        `toml:"compress"`
	MaxReconnectAttempts int         `toml:"max_reconnect_attempts"`
	ConnectTimeout       string      `toml:"connect_timeout"`
	HelloTimeout         string      `toml:"hello_timeout"`
	HandshakeTimeout     string      `toml:"handshake_timeout"`
	WriteTimeout         string      `toml:"write_timeout"`
	Backoff              fileBackoff `toml:"backoff"`
	Cache                fileCache   `toml:"cache"`
	MetricsAddr          string      `toml:"metrics_addr"`
	LogLevel             string      `toml:"log_level"`
}

type fileBackoff struct {
	Initial    string  `toml:"initial"`
	Multiplier float64 `toml:"multiplier"`
	Max        string  `toml:"max"`
	Jitter     float64 `toml:"jitter"`
}

type fileCache struct {
	Users         bool `toml:"users"`
	Channels      bool `toml:"channels"`
	Guilds        bool `toml:"guilds"`
	Relationships bool `toml:"relationships"`
}

// Load reads path over gateway.DefaultConfig. Keys absent from the file keep
// their defaults.
func Load(path string) (Runtime, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Runtime{}, fmt.Errorf("load gatewayctl config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Runtime{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return resolve(raw, meta)
}

func resolve(raw fileConfig, meta toml.MetaData) (Runtime, error) {
	cfg := gateway.DefaultConfig()
	rt := Runtime{LogLevel: strings.TrimSpace(raw.LogLevel), MetricsAddr: strings.TrimSpace(raw.MetricsAddr)}

	token, err := resolveToken(raw, meta)
	if err != nil {
		return Runtime{}, err
	}
	cfg.Token = token

	if meta.IsDefined("gateway_url") {
		// An empty gateway_url asks the engine to discover it through REST.
		cfg.GatewayURL = strings.TrimSpace(raw.GatewayURL)
	}
	if meta.IsDefined("rest_base_url") {
		cfg.RESTBaseURL = strings.TrimSpace(raw.RESTBaseURL)
	}
	if meta.IsDefined("status") {
		cfg.Presence.Status = strings.TrimSpace(raw.Status)
		if err := cfg.Presence.Validate(); err != nil {
			return Runtime{}, fmt.Errorf("parse status: %w", err)
		}
	}
	if meta.IsDefined("intents") {
		intents := raw.Intents
		cfg.Intents = &intents
	}
	if meta.IsDefined("compress") {
		cfg.Compress = raw.Compress
	}
	if meta.IsDefined("max_reconnect_attempts") {
		if raw.MaxReconnectAttempts < 0 {
			return Runtime{}, fmt.Errorf("max_reconnect_attempts must be >= 0, got %d", raw.MaxReconnectAttempts)
		}
		cfg.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"hello_timeout", raw.HelloTimeout, &cfg.Session.HelloTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"backoff.initial", raw.Backoff.Initial, &cfg.Session.Backoff.InitialDelay},
		{"backoff.max", raw.Backoff.Max, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := parsePositiveDuration(d.raw)
		if err != nil {
			return Runtime{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("backoff", "multiplier") {
		if raw.Backoff.Multiplier < 1 {
			return Runtime{}, fmt.Errorf("backoff.multiplier must be >= 1, got %v", raw.Backoff.Multiplier)
		}
		cfg.Session.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		if raw.Backoff.Jitter < 0 || raw.Backoff.Jitter > 1 {
			return Runtime{}, fmt.Errorf("backoff.jitter must be within [0,1], got %v", raw.Backoff.Jitter)
		}
		cfg.Session.Backoff.Jitter = raw.Backoff.Jitter
	}
	if err := validateBackoff(cfg.Session.Backoff); err != nil {
		return Runtime{}, err
	}

	if meta.IsDefined("cache", "users") {
		cfg.Cache.Users = raw.Cache.Users
	}
	if meta.IsDefined("cache", "channels") {
		cfg.Cache.Channels = raw.Cache.Channels
	}
	if meta.IsDefined("cache", "guilds") {
		cfg.Cache.Guilds = raw.Cache.Guilds
	}
	if meta.IsDefined("cache", "relationships") {
		cfg.Cache.Relationships = raw.Cache.Relationships
	}

	rt.Gateway = cfg
	return rt, nil
}

// resolveToken prefers an inline token, then the variable named by
// token_env, then DefaultTokenEnv.
func resolveToken(raw fileConfig, meta toml.MetaData) (string, error) {
	if token := strings.TrimSpace(raw.Token); token != "" {
		return token, nil
	}
	env := DefaultTokenEnv
	if meta.IsDefined("token_env") {
		env = strings.TrimSpace(raw.TokenEnv)
	}
	if env != "" {
		if token := strings.TrimSpace(os.Getenv(env)); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("%w (token_env=%q)", ErrMissingToken, env)
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %v", d)
	}
	return d, nil
}

func validateBackoff(cfg session.BackoffConfig) error {
	if cfg.MaxDelay < cfg.InitialDelay {
		return fmt.Errorf("backoff.max %v below backoff.initial %v", cfg.MaxDelay, cfg.InitialDelay)
	}
	return nil
}
