package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/danmuck/gatewayctl/internal/cache"
	"github.com/danmuck/gatewayctl/internal/model"
	"github.com/danmuck/gatewayctl/internal/observability"
	"github.com/danmuck/gatewayctl/internal/protocol"
)

// dispatch routes one dispatch event. The ledger has already advanced. The
// cache is updated before any hook runs, collectors see messages and
// reactions before the handler, and OnDispatch runs before the typed hook.
func (e *Engine) dispatch(conn *connection, env protocol.Envelope) error {
	name := env.Event
	observability.RecordDispatch(name)
	hc := &Context{ctx: e.lifetime, engine: e, event: name}
	raw := Dispatch{Event: name, Data: env.Data}
	if env.HasSequence() {
		raw.Sequence, raw.HasSequence = *env.Sequence, true
	}

	switch name {
	case EventReady:
		var ready model.Ready
		if err := json.Unmarshal(env.Data, &ready); err != nil {
			return fmt.Errorf("%w: READY: %v", protocol.ErrInvalidPayload, err)
		}
		if ready.SessionID == "" {
			return fmt.Errorf("%w: READY without session_id", protocol.ErrInvalidPayload)
		}
		e.ledger.Establish(ready.SessionID, ready.ResumeGatewayURL)
		if err := e.cache.Populate(env.Data); err != nil {
			conn.log.Warn().Err(err).Msg("ready snapshot partially cached")
		}
		e.markReady(conn)
		conn.log.Info().
			Str("session_id", ready.SessionID).
			Str("user_id", ready.User.ID).
			Int("guilds", len(ready.Guilds)).
			Msg("session ready")
		e.deliver(hc, raw, func() error { return e.handler.OnReady(hc, ready) })

	case EventReadySupplemental:
		e.deliver(hc, raw, func() error { return e.handler.OnReadySupplemental(hc, env.Data) })

	case EventResumed:
		e.markReady(conn)
		snap := e.ledger.Snapshot()
		conn.log.Info().Str("session_id", snap.SessionID).Uint64("seq", snap.Sequence).Msg("session resumed")
		e.deliver(hc, raw, func() error { return e.handler.OnResumed(hc) })

	case EventMessageCreate, EventMessageUpdate:
		msg, ok := decodeEvent[model.Message](conn, env)
		if !ok {
			return nil
		}
		mode := cache.ModeReplace
		hook := e.handler.OnMessageCreate
		if name == EventMessageUpdate {
			mode, hook = cache.ModeMerge, e.handler.OnMessageUpdate
		}
		e.cacheMessageUsers(conn, env.Data, mode)
		if name == EventMessageCreate {
			e.messages.publish(msg)
		}
		e.deliver(hc, raw, func() error { return hook(hc, msg) })

	case EventMessageDelete:
		del, ok := decodeEvent[model.MessageDelete](conn, env)
		if !ok {
			return nil
		}
		e.deliver(hc, raw, func() error { return e.handler.OnMessageDelete(hc, del) })

	case EventMessageReactionAdd, EventMessageReactionRemove:
		r, ok := decodeEvent[model.MessageReaction](conn, env)
		if !ok {
			return nil
		}
		kind, hook := ReactionAdd, e.handler.OnReactionAdd
		if name == EventMessageReactionRemove {
			kind, hook = ReactionRemove, e.handler.OnReactionRemove
		}
		if ev, ok := reactionEvent(kind, r); ok {
			e.reactions.publish(ev)
		}
		e.deliver(hc, raw, func() error { return hook(hc, r) })

	case EventChannelCreate, EventChannelUpdate:
		mode, hook := cache.ModeReplace, e.handler.OnChannelCreate
		if name == EventChannelUpdate {
			mode, hook = cache.ModeMerge, e.handler.OnChannelUpdate
		}
		ch, err := e.cache.UpsertGuildChannel("", env.Data, mode)
		if err != nil {
			skip(conn, env, err)
			return nil
		}
		e.deliver(hc, raw, func() error { return hook(hc, ch) })

	case EventChannelDelete:
		ch, ok := decodeEvent[model.Channel](conn, env)
		if !ok {
			return nil
		}
		e.cache.Channels.Remove(ch.ID)
		e.deliver(hc, raw, func() error { return e.handler.OnChannelDelete(hc, ch) })

	case EventGuildCreate, EventGuildUpdate:
		mode, hook := cache.ModeReplace, e.handler.OnGuildCreate
		if name == EventGuildUpdate {
			mode, hook = cache.ModeMerge, e.handler.OnGuildUpdate
		}
		g, err := e.cache.UpsertGuild(env.Data, mode)
		if err != nil {
			skip(conn, env, err)
			return nil
		}
		e.deliver(hc, raw, func() error { return hook(hc, g) })

	case EventGuildDelete:
		g, ok := decodeEvent[model.UnavailableGuild](conn, env)
		if !ok {
			return nil
		}
		if g.Unavailable {
			// An outage, not a removal: keep the guild and flag it.
			if _, err := e.cache.Guilds.Upsert(env.Data, cache.ModeMerge); err != nil {
				conn.log.Warn().Err(err).Str("guild_id", g.ID).Msg("flag unavailable guild")
			}
		} else {
			e.cache.RemoveGuild(g.ID)
		}
		e.deliver(hc, raw, func() error { return e.handler.OnGuildDelete(hc, g) })

	case EventRelationshipAdd, EventRelationshipUpdate:
		mode, hook := cache.ModeReplace, e.handler.OnRelationshipAdd
		if name == EventRelationshipUpdate {
			mode, hook = cache.ModeMerge, e.handler.OnRelationshipUpdate
		}
		r, err := e.cache.UpsertRelationship(env.Data, mode)
		if err != nil {
			skip(conn, env, err)
			return nil
		}
		e.deliver(hc, raw, func() error { return hook(hc, r) })

	case EventRelationshipRemove:
		r, ok := decodeEvent[model.RelationshipRemove](conn, env)
		if !ok {
			return nil
		}
		e.cache.Relationships.Remove(r.ID)
		e.deliver(hc, raw, func() error { return e.handler.OnRelationshipRemove(hc, r) })

	case EventUserUpdate:
		u, err := e.cache.SetCurrentUser(env.Data, cache.ModeMerge)
		if err != nil {
			skip(conn, env, err)
			return nil
		}
		e.deliver(hc, raw, func() error { return e.handler.OnUserUpdate(hc, u) })

	default:
		e.deliver(hc, raw, nil)
	}
	return nil
}

// observe hands env to OnGatewayPayload before the engine acts on it.
func (e *Engine) observe(env protocol.Envelope) {
	hc := &Context{ctx: e.lifetime, engine: e, event: env.Event}
	label := env.Event
	if label == "" {
		label = env.Op.String()
	}
	e.guard(label, func() error { return e.handler.OnGatewayPayload(hc, env) })
}

func (e *Engine) markReady(conn *connection) {
	e.attempts.Store(0)
	e.setState(StateReady)
	conn.markReady()
}

// cacheMessageUsers stores the author and mentioned users of a message.
func (e *Engine) cacheMessageUsers(conn *connection, data json.RawMessage, mode cache.Mode) {
	var users struct {
		Author   json.RawMessage   `json:"author"`
		Mentions []json.RawMessage `json:"mentions"`
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return
	}
	for _, doc := range append([]json.RawMessage{users.Author}, users.Mentions...) {
		if len(doc) == 0 {
			continue
		}
		if _, err := e.cache.UpsertUser(doc, mode); err != nil {
			conn.log.Debug().Err(err).Msg("message user not cached")
		}
	}
}

// deliver runs OnDispatch and then typed, each isolated from the other.
func (e *Engine) deliver(hc *Context, d Dispatch, typed func() error) {
	e.guard(d.Event, func() error { return e.handler.OnDispatch(hc, d) })
	if typed != nil {
		e.guard(d.Event, typed)
	}
}

// guard converts handler errors and panics into logged HandlerErrors.
func (e *Engine) guard(event string, fn func() error) {
	var herr *HandlerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				herr = &HandlerError{Event: event, Panic: true, Err: err}
				e.log.Error().
					Str("event", event).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
			}
		}()
		if err := fn(); err != nil {
			herr = &HandlerError{Event: event, Err: err}
			e.log.Error().Err(err).Str("event", event).Msg("handler failed")
		}
	}()
	if herr == nil {
		return
	}
	kind := "error"
	if herr.Panic {
		kind = "panic"
	}
	observability.RecordHandlerError(event, kind)
}

func decodeEvent[T any](conn *connection, env protocol.Envelope) (T, bool) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		skip(conn, env, fmt.Errorf("%w: %v", protocol.ErrInvalidPayload, err))
		return v, false
	}
	return v, true
}

func skip(conn *connection, env protocol.Envelope, err error) {
	ev := conn.log.Warn().Err(err).Str("event", env.Event)
	if errors.Is(err, cache.ErrMissingKey) {
		ev = conn.log.Debug().Err(err).Str("event", env.Event)
	}
	ev.Msg("dispatch skipped")
}
