package gateway

import (
	"context"

	"github.com/danmuck/gatewayctl/internal/cache"
	"github.com/danmuck/gatewayctl/internal/model"
	"github.com/danmuck/gatewayctl/internal/protocol/session"
	"github.com/danmuck/gatewayctl/internal/rest"
)

// Context is the read-only view of the engine handed to every hook.
type Context struct {
	ctx    context.Context
	engine *Engine
	event  string
}

// Context is cancelled when the engine shuts down.
func (c *Context) Context() context.Context { return c.ctx }

// Event names the dispatch event being handled.
func (c *Context) Event() string                   { return c.event }
func (c *Context) Cache() *cache.Cache             { return c.engine.cache }
func (c *Context) REST() *rest.Client              { return c.engine.rest }
func (c *Context) Session() session.Snapshot       { return c.engine.Session() }
func (c *Context) State() State                    { return c.engine.State() }
func (c *Context) CurrentUser() (model.User, bool) { return c.engine.cache.CurrentUser() }

func (c *Context) UpdatePresence(p session.Presence) error {
	return c.engine.UpdatePresence(c.ctx, p)
}

// CollectMessages starts a collector fed by subsequent MESSAGE_CREATE events.
func (c *Context) CollectMessages(opts CollectorOptions, filter func(model.Message) bool) *MessageCollector {
	return c.engine.CollectMessages(opts, filter)
}

// CollectReactions starts a collector fed by subsequent MESSAGE_REACTION_ADD
// and MESSAGE_REACTION_REMOVE events.
func (c *Context) CollectReactions(opts CollectorOptions, filter func(ReactionEvent) bool) *ReactionCollector {
	return c.engine.CollectReactions(opts, filter)
}
