package gateway

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/danmuck/gatewayctl/internal/cache"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
	"github.com/danmuck/gatewayctl/internal/rest"
	"github.com/danmuck/gatewayctl/internal/transport"
)

const (
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// The peer allows 120 outbound frames per 60 seconds.
	DefaultSendRate  = rate.Limit(120.0 / 60.0)
	DefaultSendBurst = 120
)

// Config is fixed before Start and never mutated afterwards.
type Config struct {
	Token string
	// GatewayURL is dialled for fresh sessions. Empty means discover it
	// through REST.
	GatewayURL   string
	Properties   session.Properties
	Presence     session.Presence
	Intents      *int
	Capabilities int
	Compress     bool

	Cache   cache.Config
	Session session.Config
	// MaxReconnectAttempts bounds consecutive failures; 0 retries forever.
	MaxReconnectAttempts int

	SendRate  rate.Limit
	SendBurst int

	Dialer         transport.Dialer
	REST           *rest.Client
	RESTBaseURL    string
	CaptchaHandler rest.CaptchaHandler
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
	// Seed fixes the jitter source; 0 seeds from the clock.
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		GatewayURL:   DefaultGatewayURL,
		Properties:   session.DefaultProperties(),
		Presence:     session.DefaultPresence(),
		Capabilities: session.DefaultCapabilities,
		Cache:        cache.DefaultConfig(),
		Session:      session.DefaultConfig(),
		SendRate:     DefaultSendRate,
		SendBurst:    DefaultSendBurst,
	}
}

// WithDefaults fills zero-valued fields. Cache toggles are taken as given.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Token = strings.TrimSpace(c.Token)
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if c.Properties == (session.Properties{}) {
		c.Properties = def.Properties
	}
	if c.Presence.Status == "" {
		c.Presence.Status = def.Presence.Status
	}
	if c.Presence.Activities == nil {
		c.Presence.Activities = []session.Activity{}
	}
	if c.Capabilities == 0 {
		c.Capabilities = def.Capabilities
	}
	c.Session = c.Session.WithDefaults()
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.SendRate <= 0 {
		c.SendRate = def.SendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = def.SendBurst
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

func (c Config) identify() session.Identify {
	return session.Identify{
		Token:        c.Token,
		Properties:   c.Properties,
		Presence:     c.Presence,
		Compress:     c.Compress,
		Capabilities: c.Capabilities,
		Intents:      c.Intents,
	}
}
