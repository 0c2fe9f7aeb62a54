package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/danmuck/gatewayctl/internal/cache"
	"github.com/danmuck/gatewayctl/internal/model"
	"github.com/danmuck/gatewayctl/internal/observability"
	"github.com/danmuck/gatewayctl/internal/protocol"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
	"github.com/danmuck/gatewayctl/internal/rest"
	"github.com/danmuck/gatewayctl/internal/transport"
)

// Engine drives one gateway session from Start until it terminates.
type Engine struct {
	cfg     Config
	handler Handler
	log     zerolog.Logger

	ledger  *session.Ledger
	cache   *cache.Cache
	rest    *rest.Client
	dialer  transport.Dialer
	limiter *rate.Limiter
	rng     *rand.Rand

	state    atomic.Int32
	attempts atomic.Int64
	started  atomic.Bool

	shutdown      *shutdownSignal
	terminateOnce sync.Once
	done          chan struct{}
	lifetime      context.Context

	// sendMu serialises every outbound frame and guards conn and sealed.
	sendMu sync.Mutex
	conn   *connection
	sealed bool

	heartbeat  atomic.Pointer[session.Heartbeater]
	gatewayURL string
	messages   *collectorSet[model.Message]
	reactions  *collectorSet[ReactionEvent]
}

func New(cfg Config, handler Handler) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if handler == nil {
		handler = NopHandler{}
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	logger := observability.ComponentLogger(base, "gateway")

	restClient := cfg.REST
	if restClient == nil {
		c, err := rest.New(rest.Config{
			BaseURL:        cfg.RESTBaseURL,
			Token:          cfg.Token,
			UserAgent:      cfg.Properties.BrowserUserAgent,
			CaptchaHandler: cfg.CaptchaHandler,
			Logger:         &base,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway: rest client: %w", err)
		}
		restClient = c
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &transport.WebsocketDialer{
			HandshakeTimeout: cfg.Session.ConnectTimeout,
			WriteTimeout:     cfg.Session.WriteTimeout,
			ReadLimit:        transport.DefaultReadLimit,
		}
	}

	e := &Engine{
		cfg:        cfg,
		handler:    handler,
		log:        logger,
		ledger:     session.NewLedger(),
		cache:      cache.New(cfg.Cache),
		rest:       restClient,
		dialer:     dialer,
		limiter:    rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		shutdown:   newShutdownSignal(),
		done:       make(chan struct{}),
		lifetime:   context.Background(),
		gatewayURL: cfg.GatewayURL,
		messages:   newCollectorSet[model.Message](),
		reactions:  newCollectorSet[ReactionEvent](),
	}
	e.state.Store(int32(StateDisconnected))
	return e, nil
}

// Start runs the session until Shutdown, a cancelled ctx (both return nil)
// or an unrecoverable failure. It may be called once.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.lifetime = runCtx

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			e.Shutdown()
		case <-e.shutdown.Done():
			cancel()
		case <-stop:
		}
	}()

	defer e.terminate()
	if e.shutdown.Fired() {
		return nil
	}
	e.log.Info().Str("gateway_url", e.gatewayURL).Msg("engine starting")
	return e.run(runCtx)
}

// Shutdown stops the session. It is safe to call concurrently and more than
// once. Once it returns no further frame is written.
func (e *Engine) Shutdown() {
	if e.shutdown.Fire() {
		e.log.Info().Str("state", e.State().String()).Msg("shutdown requested")
	}
	e.setState(StateShuttingDown)
	e.seal(protocol.CloseNormal)
	if e.started.CompareAndSwap(false, true) {
		e.terminate()
	}
}

// Done is closed once the engine reaches Terminated.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) State() State              { return State(e.state.Load()) }
func (e *Engine) IsReady() bool             { return e.State() == StateReady }
func (e *Engine) Session() session.Snapshot { return e.ledger.Snapshot() }
func (e *Engine) Cache() *cache.Cache       { return e.cache }
func (e *Engine) REST() *rest.Client        { return e.rest }

// Attempts is the number of consecutive failed connections since the last
// Ready.
func (e *Engine) Attempts() int { return int(e.attempts.Load()) }

// Heartbeat reports the current connection's heartbeat bookkeeping.
func (e *Engine) Heartbeat() (session.HeartbeatStatus, bool) {
	hb := e.heartbeat.Load()
	if hb == nil {
		return session.HeartbeatStatus{}, false
	}
	return hb.Status(), true
}

// UpdatePresence sends a presence update. The session must be Ready.
func (e *Engine) UpdatePresence(ctx context.Context, p session.Presence) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !e.IsReady() {
		return ErrNotReady
	}
	if p.Activities == nil {
		p.Activities = []session.Activity{}
	}
	frame, err := protocol.Encode(protocol.OpPresenceUpdate, p)
	if err != nil {
		return err
	}
	e.sendMu.Lock()
	conn := e.conn
	e.sendMu.Unlock()
	return e.send(ctx, conn, frame)
}

// CollectMessages registers a message collector.
func (e *Engine) CollectMessages(opts CollectorOptions, filter func(model.Message) bool) *MessageCollector {
	return e.messages.add(opts, filter)
}

// CollectReactions registers a collector for reaction adds and removes.
func (e *Engine) CollectReactions(opts CollectorOptions, filter func(ReactionEvent) bool) *ReactionCollector {
	return e.reactions.add(opts, filter)
}

func (e *Engine) run(ctx context.Context) error {
	for {
		if e.stopping(ctx) {
			return nil
		}
		err := e.runConnection(ctx)
		if e.stopping(ctx) {
			return nil
		}
		if fatal(err) {
			e.log.Error().Err(err).Msg("unrecoverable gateway failure")
			return err
		}

		attempt := int(e.attempts.Add(1))
		reason := failureReason(err)
		observability.RecordReconnect(reason)
		if limit := e.cfg.MaxReconnectAttempts; limit > 0 && attempt > limit {
			e.log.Error().Err(err).Int("attempts", attempt).Msg("reconnect attempts exhausted")
			return fmt.Errorf("%w: %d consecutive failures: %w", ErrMaxReconnectAttempts, attempt, err)
		}
		if !e.setState(StateReconnecting) {
			return nil
		}
		delay := session.NextBackoffDelay(e.cfg.Session.Backoff, attempt, e.rng)
		e.log.Warn().
			Err(err).
			Str("reason", reason).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Bool("resumable", e.ledger.Snapshot().Resumable()).
			Msg("connection lost; reconnecting")
		if !e.wait(ctx, delay) {
			return nil
		}
	}
}

func (e *Engine) stopping(ctx context.Context) bool {
	return e.shutdown.Fired() || ctx.Err() != nil
}

// wait sleeps for d and reports false when shutdown interrupted it.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !e.stopping(ctx)
	case <-ctx.Done():
		return false
	case <-e.shutdown.Done():
		return false
	}
}

func (e *Engine) terminate() {
	e.terminateOnce.Do(func() {
		e.setState(StateShuttingDown)
		e.seal(protocol.CloseNormal)
		e.ledger.Clear()
		e.messages.closeAll()
		e.reactions.closeAll()
		e.heartbeat.Store(nil)
		e.setState(StateTerminated)
		e.log.Info().Msg("engine terminated")
		close(e.done)
	})
}

// setState applies one transition. Nothing leaves ShuttingDown except
// Terminated, and nothing leaves Terminated.
func (e *Engine) setState(next State) bool {
	for {
		cur := State(e.state.Load())
		if cur == next {
			return true
		}
		if cur.Final() && next != StateTerminated {
			return false
		}
		if e.state.CompareAndSwap(int32(cur), int32(next)) {
			e.log.Debug().Str("from", cur.String()).Str("to", next.String()).Msg("state transition")
			observability.RecordStateTransition(cur.String(), next.String())
			return true
		}
	}
}

// fatal reports errors that end Start instead of triggering a reconnect.
func fatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrHandshakeRejected),
		errors.Is(err, ErrMissingToken),
		errors.Is(err, rest.ErrUnauthorized),
		errors.Is(err, rest.ErrCaptchaFailed),
		errors.Is(err, session.ErrInvalidIdentify),
		errors.Is(err, session.ErrInvalidPresence):
		return true
	}
	var captcha *rest.CaptchaRequiredError
	return errors.As(err, &captcha)
}

func failureReason(err error) string {
	var te *TransportError
	var de *protocol.DecodeError
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, ErrLivenessTimeout):
		return "liveness_timeout"
	case errors.Is(err, ErrReconnectRequested):
		return "reconnect_requested"
	case errors.Is(err, ErrHelloTimeout):
		return "hello_timeout"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.As(err, &de), errors.Is(err, protocol.ErrInvalidPayload), errors.Is(err, protocol.ErrUnexpectedOpcode):
		return "decode_error"
	case errors.As(err, &te):
		if ce, ok := transport.AsCloseError(te.Err); ok {
			return "closed_" + protocol.CloseCode(ce.Code).String()
		}
		return "transport_" + te.Op
	default:
		return "other"
	}
}
