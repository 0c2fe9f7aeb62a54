package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/gatewayctl/internal/cache"
	"github.com/danmuck/gatewayctl/internal/gateway"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
)

type healthView struct {
	State       string `json:"state"`
	Ready       bool   `json:"ready"`
	Handshaking bool   `json:"handshaking"`
	Attempts    int    `json:"attempts"`
	SessionID   string `json:"session_id,omitempty"`
	Sequence    uint64 `json:"sequence"`
	LatencyMS   int64  `json:"heartbeat_latency_ms,omitempty"`
	CacheUsers  int    `json:"cache_users"`
}

type engineView interface {
	State() gateway.State
	Attempts() int
	Session() session.Snapshot
	Heartbeat() (session.HeartbeatStatus, bool)
	Cache() *cache.Cache
}

func routes(engine engineView) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(engine))
	return mux
}

// healthHandler answers 200 while the session is Ready and 503 otherwise.
func healthHandler(engine engineView) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := engine.State()
		snap := engine.Session()
		view := healthView{
			State:       state.String(),
			Ready:       state == gateway.StateReady,
			Handshaking: state.Handshaking(),
			Attempts:    engine.Attempts(),
			SessionID:   snap.SessionID,
			Sequence:    snap.Sequence,
			CacheUsers:  engine.Cache().Stats().Users,
		}
		if hb, ok := engine.Heartbeat(); ok {
			view.LatencyMS = hb.Latency.Milliseconds()
		}
		w.Header().Set("Content-Type", "application/json")
		if !view.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(view)
	}
}
