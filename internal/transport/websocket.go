package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultReadLimit        = 16 << 20
	closeWriteGrace         = time.Second
)

// WebsocketDialer dials gateway transports with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Header           http.Header
	// TLSConfig overrides the system trust for wss urls.
	TLSConfig *tls.Config
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
		TLSClientConfig:  d.TLSConfig,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s status=%d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", u.Host, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	write := d.WriteTimeout
	if write <= 0 {
		write = DefaultWriteTimeout
	}
	return newWebsocketTransport(conn, write), nil
}

type websocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newWebsocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *websocketTransport {
	return &websocketTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

// Receive must be called from a single goroutine.
func (t *websocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := t.checkOpen(ctx); err != nil {
		return nil, err
	}
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, t.mapErr(err)
	}
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, t.mapErr(err)
		}
		switch kind {
		case websocket.TextMessage, websocket.BinaryMessage:
			return data, nil
		}
	}
}

func (t *websocketTransport) Send(ctx context.Context, frame []byte) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if err := t.checkOpen(ctx); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return t.mapErr(err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return t.mapErr(err)
	}
	return nil
}

func (t *websocketTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteGrace))
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *websocketTransport) checkOpen(ctx context.Context) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

func (t *websocketTransport) mapErr(err error) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: ce.Code, Reason: ce.Text}
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	return err
}
