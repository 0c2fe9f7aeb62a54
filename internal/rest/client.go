package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gatewayctl/internal/model"
)

const (
	DefaultBaseURL   = "https://discord.com/api/v10"
	DefaultUserAgent = "gatewayctl (https://github.com/danmuck/gatewayctl, 0.1.0)"
	DefaultTimeout   = 15 * time.Second

	maxResponseBytes = 4 << 20
	maxErrorBody     = 512
)

// CaptchaHandler solves a challenge and returns the captcha key.
type CaptchaHandler func(ctx context.Context, challenge CaptchaChallenge) (string, error)

type Config struct {
	BaseURL        string
	Token          string
	UserAgent      string
	Timeout        time.Duration
	CaptchaHandler CaptchaHandler
	HTTPClient     *http.Client
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	return &Client{
		cfg:  cfg,
		http: client,
		log:  base.With().Str("component", "rest").Logger(),
	}, nil
}

// Gateway returns the websocket url advertised by GET /gateway.
func (c *Client) Gateway(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.Do(ctx, http.MethodGet, "/gateway", nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("rest: gateway response missing url")
	}
	return out.URL, nil
}

func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var user model.User
	err := c.Do(ctx, http.MethodGet, "/users/@me", nil, &user)
	return user, err
}

func (c *Client) SendMessage(ctx context.Context, channelID, content string) (model.Message, error) {
	var msg model.Message
	body := map[string]string{"content": content}
	err := c.Do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", body, &msg)
	return msg, err
}

// Do issues one request. body is JSON encoded when non-nil and out receives
// the decoded response when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		payload = raw
	}
	err := c.do(ctx, method, path, payload, nil, out)
	var challenge *CaptchaRequiredError
	if !errors.As(err, &challenge) || c.cfg.CaptchaHandler == nil {
		return err
	}

	c.log.Info().Str("path", path).Str("service", challenge.Challenge.Service).Msg("captcha required; calling handler")
	key, herr := c.cfg.CaptchaHandler(ctx, challenge.Challenge)
	if herr != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, herr)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrCaptchaFailed)
	}
	header := http.Header{}
	header.Set("X-Captcha-Key", key)
	if challenge.Challenge.SessionID != "" {
		header.Set("X-Captcha-Session-Id", challenge.Challenge.SessionID)
	}
	if challenge.Challenge.RqToken != "" {
		header.Set("X-Captcha-Rqtoken", challenge.Challenge.RqToken)
	}
	return c.do(ctx, method, path, payload, header, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, extra http.Header, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("rest: create %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("rest: read %s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("rest: decode %s %s: %w", method, path, err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
			Global     bool    `json:"global"`
		}
		if err := json.Unmarshal(raw, &rl); err != nil || rl.RetryAfter <= 0 {
			rl.RetryAfter = 1
		}
		return &RateLimitError{
			RetryAfter: time.Duration(rl.RetryAfter * float64(time.Second)),
			Global:     rl.Global,
		}
	case resp.StatusCode == http.StatusBadRequest:
		var challenge CaptchaChallenge
		if json.Unmarshal(raw, &challenge) == nil && challenge.SiteKey != "" {
			return &CaptchaRequiredError{Challenge: challenge}
		}
	}
	return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(raw)}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
