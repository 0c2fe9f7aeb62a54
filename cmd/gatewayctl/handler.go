package main

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/danmuck/gatewayctl/internal/gateway"
	"github.com/danmuck/gatewayctl/internal/model"
)

// logHandler reports session milestones and traffic to the process log.
type logHandler struct {
	gateway.NopHandler
	log zerolog.Logger
}

func newLogHandler(base zerolog.Logger) *logHandler {
	return &logHandler{log: base.With().Str("component", "handler").Logger()}
}

func (h *logHandler) OnReady(ctx *gateway.Context, r model.Ready) error {
	stats := ctx.Cache().Stats()
	h.log.Info().
		Str("user", r.User.DisplayName()).
		Str("session_id", r.SessionID).
		Int("guilds", stats.Guilds).
		Int("channels", stats.Channels).
		Int("friends", len(ctx.Cache().Friends())).
		Msg("ready")
	return nil
}

func (h *logHandler) OnReadySupplemental(_ *gateway.Context, data json.RawMessage) error {
	h.log.Debug().Int("bytes", len(data)).Msg("ready supplemental")
	return nil
}

func (h *logHandler) OnResumed(ctx *gateway.Context) error {
	h.log.Info().Uint64("seq", ctx.Session().Sequence).Msg("resumed")
	return nil
}

func (h *logHandler) OnMessageCreate(_ *gateway.Context, msg model.Message) error {
	h.log.Debug().
		Str("channel_id", msg.ChannelID).
		Str("author", msg.Author.DisplayName()).
		Int("length", len(msg.Content)).
		Msg("message")
	return nil
}

func (h *logHandler) OnRelationshipAdd(_ *gateway.Context, r model.Relationship) error {
	h.log.Info().Str("user_id", r.ID).Int("type", int(r.Type)).Msg("relationship added")
	return nil
}

func (h *logHandler) OnDispatch(_ *gateway.Context, d gateway.Dispatch) error {
	h.log.Trace().Str("event", d.Event).Uint64("seq", d.Sequence).Msg("dispatch")
	return nil
}
