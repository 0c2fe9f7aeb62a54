package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter is the multiplicative spread, 0.2 means +/-20%.
	Jitter float64
}

// Config defines gateway session timing defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HelloTimeout     time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// FirstBeatJitter shortens the first heartbeat interval by up to this
	// fraction so reconnecting clients do not beat in lockstep.
	FirstBeatJitter float64
	Backoff         BackoffConfig
}

// DefaultConfig returns the stock session timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		HelloTimeout:     20 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
		FirstBeatJitter:  0.1,
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     60 * time.Second,
			Jitter:       0.2,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HelloTimeout <= 0 {
		c.HelloTimeout = def.HelloTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.FirstBeatJitter < 0 || c.FirstBeatJitter >= 1 {
		c.FirstBeatJitter = def.FirstBeatJitter
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		c.Backoff.Jitter = def.Backoff.Jitter
	}
	return c
}
