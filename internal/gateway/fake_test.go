package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/gatewayctl/internal/model"
	"github.com/danmuck/gatewayctl/internal/protocol"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
	"github.com/danmuck/gatewayctl/internal/testutil/testlog"
	"github.com/danmuck/gatewayctl/internal/transport"
)

const (
	testGatewayURL = "wss://gateway.test/?v=10&encoding=json"
	testResumeURL  = "wss://resume.test"
	waitFor        = 2 * time.Second
	quietInterval  = 60000
)

// fakeTransport is the engine's side of an in-memory connection. The test
// plays the peer through the matching peer value.
type fakeTransport struct {
	in        chan []byte
	peerClose chan *transport.CloseError
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	code      atomic.Int32
	sends     atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:        make(chan []byte, 64),
		peerClose: make(chan *transport.CloseError, 1),
		out:       make(chan []byte, 1024),
		closed:    make(chan struct{}),
	}
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-f.closed:
		return nil, transport.ErrClosed
	default:
	}
	select {
	case frame := <-f.in:
		return frame, nil
	case ce := <-f.peerClose:
		return nil, ce
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Send(_ context.Context, frame []byte) error {
	f.sends.Add(1)
	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case f.out <- append([]byte(nil), frame...):
		return nil
	default:
		return errors.New("fake transport: out buffer full")
	}
}

func (f *fakeTransport) Close(code int, _ string) error {
	f.closeOnce.Do(func() {
		f.code.Store(int32(code))
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	fail  func(n int) error
	conns chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, url string) (transport.Transport, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	n := len(d.urls)
	fail := d.fail
	d.mu.Unlock()
	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}
	tr := newFakeTransport()
	d.conns <- tr
	return tr, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) url(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

// next waits for the engine to dial and returns the peer side.
func (d *fakeDialer) next(t *testing.T) *peer {
	t.Helper()
	select {
	case tr := <-d.conns:
		return &peer{t: t, tr: tr}
	case <-time.After(waitFor):
		t.Fatalf("engine did not dial within %v", waitFor)
		return nil
	}
}

type peer struct {
	t  *testing.T
	tr *fakeTransport
}

func (p *peer) send(op protocol.Opcode, seq *uint64, event string, data any) {
	p.t.Helper()
	frame := map[string]any{"op": int(op), "d": data}
	if seq != nil {
		frame["s"] = *seq
	}
	if event != "" {
		frame["t"] = event
	}
	raw, err := json.Marshal(frame)
	require.NoError(p.t, err)
	p.tr.in <- raw
}

func (p *peer) hello(intervalMS int) {
	p.t.Helper()
	p.send(protocol.OpHello, nil, "", map[string]int{"heartbeat_interval": intervalMS})
}

func (p *peer) dispatch(seq uint64, event string, data any) {
	p.t.Helper()
	p.send(protocol.OpDispatch, &seq, event, data)
}

func (p *peer) ready(seq uint64, sessionID string) {
	p.t.Helper()
	p.dispatch(seq, EventReady, map[string]any{
		"v":                  10,
		"user":               map[string]string{"id": "me", "username": "self"},
		"session_id":         sessionID,
		"resume_gateway_url": testResumeURL,
	})
}

func (p *peer) closeWith(code int, reason string) {
	p.tr.peerClose <- &transport.CloseError{Code: code, Reason: reason}
}

// expect returns the next frame with opcode op, skipping heartbeats unless
// a heartbeat is what is expected.
func (p *peer) expect(op protocol.Opcode) protocol.Envelope {
	p.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case raw := <-p.tr.out:
			env, err := protocol.Decode(raw)
			require.NoError(p.t, err)
			if env.Op == protocol.OpHeartbeat && op != protocol.OpHeartbeat {
				continue
			}
			require.Equal(p.t, op, env.Op, "unexpected frame %s", raw)
			return env
		case <-deadline:
			p.t.Fatalf("no %s frame within %v", op, waitFor)
			return protocol.Envelope{}
		}
	}
}

func (p *peer) expectIdentify() session.Identify {
	p.t.Helper()
	env := p.expect(protocol.OpIdentify)
	var ident session.Identify
	require.NoError(p.t, json.Unmarshal(env.Data, &ident))
	return ident
}

func (p *peer) expectResume() session.Resume {
	p.t.Helper()
	env := p.expect(protocol.OpResume)
	var resume session.Resume
	require.NoError(p.t, json.Unmarshal(env.Data, &resume))
	return resume
}

// waitClosed waits for the engine to close the transport and returns the code.
func (p *peer) waitClosed() int {
	p.t.Helper()
	select {
	case <-p.tr.closed:
		return int(p.tr.code.Load())
	case <-time.After(waitFor):
		p.t.Fatalf("transport not closed within %v", waitFor)
		return 0
	}
}

type recordingHandler struct {
	NopHandler
	ready        chan model.Ready
	supplemental chan json.RawMessage
	resumed      chan struct{}
	messages     chan model.Message
	reactions    chan model.MessageReaction
	channels     chan model.Channel
	dispatches   atomic.Int32
	panicOn      string
	onMessage    func(*Context, model.Message)

	mu    sync.Mutex
	trace []string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		ready:        make(chan model.Ready, 16),
		supplemental: make(chan json.RawMessage, 16),
		resumed:      make(chan struct{}, 16),
		messages:     make(chan model.Message, 16),
		reactions:    make(chan model.MessageReaction, 16),
		channels:     make(chan model.Channel, 16),
	}
}

func (h *recordingHandler) record(entry string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trace = append(h.trace, entry)
}

// traced returns the hook calls seen so far, oldest first.
func (h *recordingHandler) traced() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.trace...)
}

func (h *recordingHandler) OnReady(_ *Context, r model.Ready) error {
	h.ready <- r
	return nil
}

func (h *recordingHandler) OnReadySupplemental(_ *Context, data json.RawMessage) error {
	h.supplemental <- data
	return nil
}

func (h *recordingHandler) OnReactionAdd(_ *Context, r model.MessageReaction) error {
	h.reactions <- r
	return nil
}

func (h *recordingHandler) OnGatewayPayload(_ *Context, env protocol.Envelope) error {
	entry := "payload " + env.Op.String()
	if env.Event != "" {
		entry += " " + env.Event
	}
	h.record(entry)
	return nil
}

func (h *recordingHandler) OnResumed(*Context) error {
	h.resumed <- struct{}{}
	return nil
}

func (h *recordingHandler) OnMessageCreate(ctx *Context, msg model.Message) error {
	if h.panicOn == EventMessageCreate {
		panic("boom")
	}
	if h.onMessage != nil {
		h.onMessage(ctx, msg)
	}
	h.messages <- msg
	return nil
}

func (h *recordingHandler) OnChannelCreate(_ *Context, ch model.Channel) error {
	h.channels <- ch
	return nil
}

func (h *recordingHandler) OnDispatch(_ *Context, d Dispatch) error {
	h.dispatches.Add(1)
	h.record("dispatch " + d.Event)
	if d.Event == "FAILING_EVENT" {
		return fmt.Errorf("rejected %s", d.Event)
	}
	return nil
}

func testConfig(t *testing.T, dialer transport.Dialer) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Token = "tok"
	cfg.GatewayURL = testGatewayURL
	cfg.Dialer = dialer
	cfg.Seed = 1
	cfg.Session.FirstBeatJitter = 0
	cfg.Session.HelloTimeout = waitFor
	cfg.Session.HandshakeTimeout = waitFor
	cfg.Session.Backoff = session.BackoffConfig{
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		MaxDelay:     2 * time.Millisecond,
	}
	logger := testlog.Logger(t)
	cfg.Logger = &logger
	return cfg
}

type running struct {
	engine *Engine
	result chan error
}

// start runs the engine in the background and stops it at test cleanup.
func start(t *testing.T, cfg Config, h Handler) *running {
	t.Helper()
	e, err := New(cfg, h)
	require.NoError(t, err)
	r := &running{engine: e, result: make(chan error, 1)}
	go func() { r.result <- e.Start(context.Background()) }()
	t.Cleanup(func() {
		e.Shutdown()
		select {
		case <-e.Done():
		case <-time.After(waitFor):
			t.Errorf("engine did not terminate")
		}
	})
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.result:
		return err
	case <-time.After(waitFor):
		t.Fatalf("Start did not return within %v", waitFor)
		return nil
	}
}

func waitState(t *testing.T, e *Engine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return e.State() == want }, waitFor, time.Millisecond,
		"state=%s want=%s", e.State(), want)
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		var zero T
		t.Fatalf("nothing received within %v", waitFor)
		return zero
	}
}

// connectReady drives a fresh connection through Hello, Identify and READY.
func connectReady(t *testing.T, d *fakeDialer, h *recordingHandler, seq uint64, sessionID string) *peer {
	t.Helper()
	p := d.next(t)
	p.hello(quietInterval)
	p.expectIdentify()
	p.ready(seq, sessionID)
	receive(t, h.ready)
	return p
}
