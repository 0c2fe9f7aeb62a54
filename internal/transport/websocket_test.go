package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gatewayctl/internal/testutil/testlog"
	"github.com/danmuck/gatewayctl/internal/testutil/tlstest"
	"github.com/gorilla/websocket"
)

// echoHandler echoes text frames until it receives "close:<code>", then
// closes the stream with that code.
func echoHandler() http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msg := string(data); strings.HasPrefix(msg, "close:") {
				frame := websocket.FormatCloseMessage(4009, strings.TrimPrefix(msg, "close:"))
				_ = conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	})
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(echoHandler())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketSendReceive(t *testing.T) {
	testlog.Start(t)
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := NewWebsocketDialer().Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close(1000, "")

	if err := tr.Send(ctx, []byte(`{"op":1,"d":null}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := tr.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != `{"op":1,"d":null}` {
		t.Fatalf("unexpected echo %s", got)
	}
}

func TestWebsocketPeerCloseIsCloseError(t *testing.T) {
	testlog.Start(t)
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := NewWebsocketDialer().Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close(1000, "")

	if err := tr.Send(ctx, []byte("close:session timed out")); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, err = tr.Receive(ctx)
	ce, ok := AsCloseError(err)
	if !ok {
		t.Fatalf("expected *CloseError, got %T %v", err, err)
	}
	if ce.Code != 4009 || ce.Reason != "session timed out" {
		t.Fatalf("unexpected close: %+v", ce)
	}
}

func TestWebsocketCloseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	srv := echoServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := NewWebsocketDialer().Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	first := tr.Close(1000, "bye")
	second := tr.Close(4900, "again")
	if second != first {
		t.Fatalf("repeated close returned a different result first=%v second=%v", first, second)
	}
	if err := tr.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close err=%v", err)
	}
	if _, err := tr.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("receive after close err=%v", err)
	}
}

func TestWebsocketDialRejectsBadURL(t *testing.T) {
	testlog.Start(t)
	for _, raw := range []string{"", "http://example.com", "wss://", "::"} {
		if _, err := NewWebsocketDialer().Dial(context.Background(), raw); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("Dial(%q) err=%v", raw, err)
		}
	}
}

func TestWebsocketSendRejectsEmptyFrame(t *testing.T) {
	testlog.Start(t)
	srv := echoServer(t)
	tr, err := NewWebsocketDialer().Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close(1000, "")
	if err := tr.Send(context.Background(), nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestWebsocketDialsTLSWithCustomRoots(t *testing.T) {
	testlog.Start(t)
	authority := tlstest.NewAuthority(t, "gatewayctl test ca")
	srv := httptest.NewUnstartedServer(echoHandler())
	srv.TLS = authority.ServerConfig(t)
	srv.StartTLS()
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !strings.HasPrefix(wsURL(srv), "wss://") {
		t.Fatalf("expected wss url, got %s", wsURL(srv))
	}

	dialer := NewWebsocketDialer()
	dialer.TLSConfig = authority.ClientConfig()
	tr, err := dialer.Dial(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close(1000, "")
	if err := tr.Send(ctx, []byte(`{"op":1}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got, err := tr.Receive(ctx); err != nil || string(got) != `{"op":1}` {
		t.Fatalf("receive got=%s err=%v", got, err)
	}

	if _, err := NewWebsocketDialer().Dial(ctx, wsURL(srv)); err == nil {
		t.Fatalf("dial without the test ca should fail verification")
	}
}
