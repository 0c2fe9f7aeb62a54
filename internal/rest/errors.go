package rest

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnauthorized  = errors.New("rest: unauthorized")
	ErrCaptchaFailed = errors.New("rest: captcha handler failed")
	ErrMissingToken  = errors.New("rest: missing token")
)

// CaptchaChallenge is the body of a 400 response that asks for a captcha.
type CaptchaChallenge struct {
	Keys      []string `json:"captcha_key"`
	SiteKey   string   `json:"captcha_sitekey"`
	Service   string   `json:"captcha_service"`
	SessionID string   `json:"captcha_session_id,omitempty"`
	RqData    string   `json:"captcha_rqdata,omitempty"`
	RqToken   string   `json:"captcha_rqtoken,omitempty"`
}

// CaptchaRequiredError is returned when a challenge arrives and no handler
// is configured.
type CaptchaRequiredError struct {
	Challenge CaptchaChallenge
}

func (e *CaptchaRequiredError) Error() string {
	return fmt.Sprintf("rest: captcha required service=%s", e.Challenge.Service)
}

type RateLimitError struct {
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rest: rate limited retry_after=%s global=%v", e.RetryAfter, e.Global)
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: %s %s status=%d body=%q", e.Method, e.Path, e.Status, e.Body)
}
