package gateway

import (
	"encoding/json"

	"github.com/danmuck/gatewayctl/internal/model"
	"github.com/danmuck/gatewayctl/internal/protocol"
)

const (
	EventReady                 = "READY"
	EventReadySupplemental     = "READY_SUPPLEMENTAL"
	EventResumed               = "RESUMED"
	EventMessageCreate         = "MESSAGE_CREATE"
	EventMessageUpdate         = "MESSAGE_UPDATE"
	EventMessageDelete         = "MESSAGE_DELETE"
	EventMessageReactionAdd    = "MESSAGE_REACTION_ADD"
	EventMessageReactionRemove = "MESSAGE_REACTION_REMOVE"
	EventChannelCreate         = "CHANNEL_CREATE"
	EventChannelUpdate         = "CHANNEL_UPDATE"
	EventChannelDelete         = "CHANNEL_DELETE"
	EventGuildCreate           = "GUILD_CREATE"
	EventGuildUpdate           = "GUILD_UPDATE"
	EventGuildDelete           = "GUILD_DELETE"
	EventRelationshipAdd       = "RELATIONSHIP_ADD"
	EventRelationshipUpdate    = "RELATIONSHIP_UPDATE"
	EventRelationshipRemove    = "RELATIONSHIP_REMOVE"
	EventUserUpdate            = "USER_UPDATE"
)

// Dispatch is the raw form of every dispatch event.
type Dispatch struct {
	Event       string
	Sequence    uint64
	HasSequence bool
	Data        json.RawMessage
}

// Handler receives session events. Hooks run one at a time in wire order on
// the read loop; a hook that blocks stalls the session. Returned errors and
// panics are logged and counted and never end the session.
type Handler interface {
	OnReady(ctx *Context, ready model.Ready) error
	// OnReadySupplemental receives the READY_SUPPLEMENTAL payload as sent.
	OnReadySupplemental(ctx *Context, data json.RawMessage) error
	OnResumed(ctx *Context) error

	OnMessageCreate(ctx *Context, msg model.Message) error
	OnMessageUpdate(ctx *Context, msg model.Message) error
	OnMessageDelete(ctx *Context, del model.MessageDelete) error

	OnReactionAdd(ctx *Context, r model.MessageReaction) error
	OnReactionRemove(ctx *Context, r model.MessageReaction) error

	OnChannelCreate(ctx *Context, ch model.Channel) error
	OnChannelUpdate(ctx *Context, ch model.Channel) error
	OnChannelDelete(ctx *Context, ch model.Channel) error

	OnGuildCreate(ctx *Context, g model.Guild) error
	OnGuildUpdate(ctx *Context, g model.Guild) error
	OnGuildDelete(ctx *Context, g model.UnavailableGuild) error

	OnRelationshipAdd(ctx *Context, r model.Relationship) error
	OnRelationshipUpdate(ctx *Context, r model.Relationship) error
	OnRelationshipRemove(ctx *Context, r model.RelationshipRemove) error

	OnUserUpdate(ctx *Context, u model.User) error

	// OnDispatch sees every dispatch event, typed or not, before its hook.
	OnDispatch(ctx *Context, d Dispatch) error

	// OnGatewayPayload sees every decoded frame, Hello included, before the
	// engine acts on it.
	OnGatewayPayload(ctx *Context, env protocol.Envelope) error
}

// NopHandler implements Handler with no-ops; embed it to override a subset.
type NopHandler struct{}

func (NopHandler) OnReady(*Context, model.Ready) error                           { return nil }
func (NopHandler) OnReadySupplemental(*Context, json.RawMessage) error           { return nil }
func (NopHandler) OnResumed(*Context) error                                      { return nil }
func (NopHandler) OnMessageCreate(*Context, model.Message) error                 { return nil }
func (NopHandler) OnMessageUpdate(*Context, model.Message) error                 { return nil }
func (NopHandler) OnMessageDelete(*Context, model.MessageDelete) error           { return nil }
func (NopHandler) OnReactionAdd(*Context, model.MessageReaction) error           { return nil }
func (NopHandler) OnReactionRemove(*Context, model.MessageReaction) error        { return nil }
func (NopHandler) OnChannelCreate(*Context, model.Channel) error                 { return nil }
func (NopHandler) OnChannelUpdate(*Context, model.Channel) error                 { return nil }
func (NopHandler) OnChannelDelete(*Context, model.Channel) error                 { return nil }
func (NopHandler) OnGuildCreate(*Context, model.Guild) error                     { return nil }
func (NopHandler) OnGuildUpdate(*Context, model.Guild) error                     { return nil }
func (NopHandler) OnGuildDelete(*Context, model.UnavailableGuild) error          { return nil }
func (NopHandler) OnRelationshipAdd(*Context, model.Relationship) error          { return nil }
func (NopHandler) OnRelationshipUpdate(*Context, model.Relationship) error       { return nil }
func (NopHandler) OnRelationshipRemove(*Context, model.RelationshipRemove) error { return nil }
func (NopHandler) OnUserUpdate(*Context, model.User) error                       { return nil }
func (NopHandler) OnDispatch(*Context, Dispatch) error                           { return nil }
func (NopHandler) OnGatewayPayload(*Context, protocol.Envelope) error            { return nil }
