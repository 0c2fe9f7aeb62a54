package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/gatewayctl/internal/observability"
	"github.com/danmuck/gatewayctl/internal/protocol"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
	"github.com/danmuck/gatewayctl/internal/transport"
)

// connection is one dialled transport and the tasks bound to it.
type connection struct {
	id  string
	tr  transport.Transport
	log zerolog.Logger
	hb  *session.Heartbeater

	closeOnce sync.Once

	hsMu       sync.Mutex
	hsDeadline time.Time
	hsKick     chan struct{}
}

func newConnection(id string, tr transport.Transport, log zerolog.Logger) *connection {
	return &connection{id: id, tr: tr, log: log, hsKick: make(chan struct{}, 1)}
}

// armHandshake gives the handshake started now until d to reach Ready,
// replacing any deadline still pending.
func (c *connection) armHandshake(d time.Duration) {
	c.hsMu.Lock()
	c.hsDeadline = time.Now().Add(d)
	c.hsMu.Unlock()
	c.kickHandshake()
}

// markReady clears the pending handshake deadline.
func (c *connection) markReady() {
	c.hsMu.Lock()
	c.hsDeadline = time.Time{}
	c.hsMu.Unlock()
	c.kickHandshake()
}

func (c *connection) kickHandshake() {
	select {
	case c.hsKick <- struct{}{}:
	default:
	}
}

func (c *connection) handshakeDeadline() (time.Time, bool) {
	c.hsMu.Lock()
	defer c.hsMu.Unlock()
	return c.hsDeadline, !c.hsDeadline.IsZero()
}

// watchHandshake fails with ErrHandshakeTimeout once a pending handshake
// deadline passes. Every Identify or Resume on conn re-arms it.
func (e *Engine) watchHandshake(ctx context.Context, conn *connection) error {
	for {
		var expired <-chan time.Time
		var timer *time.Timer
		if deadline, armed := conn.handshakeDeadline(); armed {
			timer = time.NewTimer(time.Until(deadline))
			expired = timer.C
		}
		select {
		case <-ctx.Done():
		case <-conn.hsKick:
		case <-expired:
		}
		if timer != nil {
			timer.Stop()
		}
		if ctx.Err() != nil {
			return nil
		}
		if deadline, armed := conn.handshakeDeadline(); armed && !time.Now().Before(deadline) {
			conn.log.Warn().Str("state", e.State().String()).Msg("handshake timed out")
			return ErrHandshakeTimeout
		}
	}
}

func (c *connection) close(code protocol.CloseCode, reason string) {
	c.closeOnce.Do(func() {
		if err := c.tr.Close(int(code), reason); err != nil && !errors.Is(err, transport.ErrClosed) {
			c.log.Debug().Err(err).Int("code", int(code)).Msg("transport close")
		}
	})
}

// runConnection dials once and returns when the connection is gone.
func (e *Engine) runConnection(ctx context.Context) error {
	target, err := e.connectURL(ctx)
	if err != nil {
		return err
	}
	if !e.setState(StateConnecting) {
		return nil
	}

	id := uuid.NewString()
	logger := e.log.With().Str("conn_id", id).Logger()
	logger.Info().Str("url", target).Msg("dialing gateway")

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.Session.ConnectTimeout)
	tr, err := e.dialer.Dial(dialCtx, target)
	cancel()
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	conn := newConnection(id, tr, logger)
	if !e.attach(conn) {
		conn.close(protocol.CloseNormal, "shutdown")
		return nil
	}
	defer func() {
		e.detach(conn)
		code := protocol.CloseReconnect
		if e.stopping(ctx) {
			code = protocol.CloseNormal
		}
		conn.close(code, "")
	}()

	if !e.setState(StateAwaitingHello) {
		return nil
	}
	interval, err := e.awaitHello(ctx, conn)
	if err != nil {
		return err
	}
	logger.Debug().Dur("heartbeat_interval", interval).Msg("hello received")

	hb, err := session.NewHeartbeater(session.HeartbeatConfig{
		Interval:        interval,
		FirstBeatJitter: e.cfg.Session.FirstBeatJitter,
		Sequence:        e.ledger.Sequence,
		Rand:            rand.New(rand.NewSource(e.rng.Int63())),
		Send: func(ctx context.Context, seq uint64, ok bool) error {
			frame, err := protocol.EncodeHeartbeat(seq, ok)
			if err != nil {
				return err
			}
			return e.write(ctx, conn, frame)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrInvalidPayload, err)
	}
	conn.hb = hb
	e.heartbeat.Store(hb)

	conn.armHandshake(e.cfg.Session.HandshakeTimeout)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hb.Run(gctx)
	})
	g.Go(func() error {
		if err := e.handshake(gctx, conn); err != nil {
			return err
		}
		return e.readLoop(gctx, conn)
	})
	g.Go(func() error {
		// Unblocks Receive once any task fails or shutdown begins.
		<-gctx.Done()
		code := protocol.CloseReconnect
		if e.stopping(ctx) {
			code = protocol.CloseNormal
		}
		conn.close(code, "")
		return nil
	})
	g.Go(func() error {
		return e.watchHandshake(gctx, conn)
	})
	err = g.Wait()
	if err != nil && !e.stopping(ctx) {
		logger.Debug().Err(err).Msg("connection ended")
	}
	return err
}

// connectURL picks the resume url for a resumable session and the fresh
// gateway url otherwise, discovering the latter through REST when unset.
func (e *Engine) connectURL(ctx context.Context) (string, error) {
	if e.gatewayURL == "" {
		discovered, err := e.rest.Gateway(ctx)
		if err != nil {
			return "", fmt.Errorf("gateway: discover url: %w", err)
		}
		e.gatewayURL = withGatewayQuery(discovered, DefaultGatewayURL)
		e.log.Info().Str("gateway_url", e.gatewayURL).Msg("gateway url discovered")
	}
	snap := e.ledger.Snapshot()
	if snap.Resumable() && snap.ResumeURL != "" {
		return withGatewayQuery(snap.ResumeURL, e.gatewayURL), nil
	}
	return e.gatewayURL, nil
}

// withGatewayQuery copies the version/encoding query of base onto raw when
// raw has none.
func withGatewayQuery(raw, base string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery != "" {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil {
		return raw
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = b.RawQuery
	return u.String()
}

func (e *Engine) attach(conn *connection) bool {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.sealed {
		return false
	}
	e.conn = conn
	return true
}

func (e *Engine) detach(conn *connection) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.conn == conn {
		e.conn = nil
	}
}

// seal stops every future send and closes the current transport.
func (e *Engine) seal(code protocol.CloseCode) {
	e.sendMu.Lock()
	e.sealed = true
	conn := e.conn
	e.sendMu.Unlock()
	if conn != nil {
		conn.close(code, "shutdown")
	}
}

// send writes one rate-limited frame on conn if conn is still the live
// connection.
func (e *Engine) send(ctx context.Context, conn *connection, frame []byte) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	return e.write(ctx, conn, frame)
}

// write is send without the limiter. Heartbeats go through it directly and
// never queue behind user frames.
func (e *Engine) write(ctx context.Context, conn *connection, frame []byte) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	switch {
	case e.sealed:
		return ErrSealed
	case ctx.Err() != nil:
		return ctx.Err()
	case conn == nil || e.conn != conn:
		return ErrStaleConnection
	}
	wctx, cancel := context.WithTimeout(ctx, e.cfg.Session.WriteTimeout)
	defer cancel()
	if err := conn.tr.Send(wctx, frame); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (e *Engine) awaitHello(ctx context.Context, conn *connection) (time.Duration, error) {
	hctx, cancel := context.WithTimeout(ctx, e.cfg.Session.HelloTimeout)
	defer cancel()
	frame, err := conn.tr.Receive(hctx)
	if err != nil {
		if ctx.Err() == nil && (hctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)) {
			return 0, ErrHelloTimeout
		}
		return 0, e.receiveError(err)
	}
	env, err := protocol.Decode(frame)
	if err != nil {
		return 0, err
	}
	e.observe(env)
	return protocol.DecodeHello(env)
}

// handshake sends Resume when the ledger holds a session and Identify
// otherwise.
func (e *Engine) handshake(ctx context.Context, conn *connection) error {
	snap := e.ledger.Snapshot()
	if snap.Resumable() {
		return e.resume(ctx, conn, snap)
	}
	return e.identify(ctx, conn)
}

func (e *Engine) identify(ctx context.Context, conn *connection) error {
	e.ledger.Clear()
	if !e.setState(StateIdentifying) {
		return nil
	}
	payload := e.cfg.identify()
	if err := payload.Validate(); err != nil {
		return err
	}
	conn.armHandshake(e.cfg.Session.HandshakeTimeout)
	frame, err := protocol.Encode(protocol.OpIdentify, payload)
	if err != nil {
		return err
	}
	conn.log.Info().Msg("identifying")
	return e.send(ctx, conn, frame)
}

func (e *Engine) resume(ctx context.Context, conn *connection, snap session.Snapshot) error {
	if !e.setState(StateResuming) {
		return nil
	}
	payload := session.ResumeFrom(e.cfg.Token, snap)
	if err := payload.Validate(); err != nil {
		return err
	}
	conn.armHandshake(e.cfg.Session.HandshakeTimeout)
	frame, err := protocol.Encode(protocol.OpResume, payload)
	if err != nil {
		return err
	}
	conn.log.Info().Str("session_id", snap.SessionID).Uint64("seq", snap.Sequence).Msg("resuming")
	return e.send(ctx, conn, frame)
}

func (e *Engine) readLoop(ctx context.Context, conn *connection) error {
	for {
		frame, err := conn.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return e.receiveError(err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			conn.log.Warn().Err(err).Msg("undecodable frame")
			return err
		}
		if err := e.handleEnvelope(ctx, conn, env); err != nil {
			return err
		}
	}
}

// receiveError classifies a failed Receive. Peer closes carrying a fatal
// code end the engine and session-invalidating codes drop the ledger.
func (e *Engine) receiveError(err error) error {
	ce, ok := transport.AsCloseError(err)
	if !ok {
		return &TransportError{Op: "receive", Err: err}
	}
	code := protocol.CloseCode(ce.Code)
	switch {
	case code.Fatal():
		return fmt.Errorf("%w: close %d %s %q: %w", ErrHandshakeRejected, ce.Code, code, ce.Reason, ce)
	case code.InvalidatesSession():
		e.ledger.Clear()
	}
	return &TransportError{Op: "receive", Err: ce}
}

func (e *Engine) handleEnvelope(ctx context.Context, conn *connection, env protocol.Envelope) error {
	if env.HasSequence() {
		e.ledger.Advance(*env.Sequence)
	}
	e.observe(env)
	switch env.Op {
	case protocol.OpDispatch:
		return e.dispatch(conn, env)
	case protocol.OpHeartbeat:
		conn.hb.Trigger()
	case protocol.OpHeartbeatAck:
		conn.hb.RecordAck()
		observability.RecordHeartbeatLatency(conn.hb.Status().Latency)
	case protocol.OpReconnect:
		conn.log.Info().Msg("peer requested reconnect")
		return ErrReconnectRequested
	case protocol.OpInvalidSession:
		resumable, err := protocol.DecodeInvalidSession(env)
		if err != nil {
			return err
		}
		return e.invalidSession(ctx, conn, resumable)
	case protocol.OpHello:
		conn.log.Debug().Msg("duplicate hello ignored")
	default:
		conn.log.Trace().Int("op", int(env.Op)).Msg("unknown opcode ignored")
	}
	return nil
}

// invalidSession re-handshakes on the same connection without backoff.
func (e *Engine) invalidSession(ctx context.Context, conn *connection, resumable bool) error {
	state := e.State()
	conn.log.Warn().
		Bool("resumable", resumable).
		Str("state", state.String()).
		Bool("mid_handshake", state.Handshaking()).
		Msg("session invalidated")
	if resumable {
		if snap := e.ledger.Snapshot(); snap.Resumable() {
			return e.resume(ctx, conn, snap)
		}
	}
	return e.identify(ctx, conn)
}
