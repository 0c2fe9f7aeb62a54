package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/danmuck/gatewayctl/internal/model"
)

// Config toggles caching per category.
type Config struct {
	Users         bool
	Channels      bool
	Guilds        bool
	Relationships bool
}

func DefaultConfig() Config {
	return Config{Users: true, Channels: true, Guilds: true, Relationships: true}
}

// Disabled turns every category off.
func Disabled() Config {
	return Config{}
}

// Stats counts cached entries per category.
type Stats struct {
	Users         int
	Channels      int
	Guilds        int
	Relationships int
}

type Cache struct {
	cfg Config

	Users         *Store[model.User]
	Channels      *Store[model.Channel]
	Guilds        *Store[model.Guild]
	Relationships *Store[model.Relationship]

	mu          sync.RWMutex
	currentDoc  []byte
	currentUser *model.User
}

func New(cfg Config) *Cache {
	return &Cache{
		cfg:           cfg,
		Users:         NewStore("users", cfg.Users, func(u model.User) string { return u.ID }),
		Channels:      NewStore("channels", cfg.Channels, func(c model.Channel) string { return c.ID }),
		Guilds:        NewStore("guilds", cfg.Guilds, func(g model.Guild) string { return g.ID }),
		Relationships: NewStore("relationships", cfg.Relationships, func(r model.Relationship) string { return r.ID }),
	}
}

func (c *Cache) Config() Config { return c.cfg }

// CurrentUser is the account the session is authenticated as. It is kept
// regardless of the Users toggle.
func (c *Cache) CurrentUser() (model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentUser == nil {
		return model.User{}, false
	}
	return *c.currentUser, true
}

// SetCurrentUser applies doc to the current user under mode. The resulting
// document is also written to the Users store, subject to its toggle.
func (c *Cache) SetCurrentUser(doc []byte, mode Mode) (model.User, error) {
	next, user, err := c.setCurrentUser(doc, mode)
	if err != nil {
		return model.User{}, err
	}
	if _, err := c.Users.Upsert(next, ModeReplace); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (c *Cache) setCurrentUser(doc []byte, mode Mode) ([]byte, model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := doc
	if mode == ModeMerge && c.currentDoc != nil {
		merged, err := jsonpatch.MergePatch(c.currentDoc, doc)
		if err != nil {
			return nil, model.User{}, fmt.Errorf("%w: current user: %v", ErrInvalidDocument, err)
		}
		next = merged
	}
	user, err := decode[model.User](next)
	if err != nil {
		return nil, model.User{}, fmt.Errorf("%w: current user: %v", ErrInvalidDocument, err)
	}
	if user.ID == "" {
		return nil, model.User{}, fmt.Errorf("%w: current user", ErrMissingKey)
	}
	c.currentDoc = clone(next)
	c.currentUser = &user
	return c.currentDoc, user, nil
}

func (c *Cache) User(id string) (model.User, bool)       { return c.Users.Get(id) }
func (c *Cache) Channel(id string) (model.Channel, bool) { return c.Channels.Get(id) }
func (c *Cache) Guild(id string) (model.Guild, bool)     { return c.Guilds.Get(id) }

// Relationship is looked up by the related user's id.
func (c *Cache) Relationship(userID string) (model.Relationship, bool) {
	return c.Relationships.Get(userID)
}

// Friends lists relationships of type friend ordered by user id.
func (c *Cache) Friends() []model.Relationship {
	var out []model.Relationship
	for _, r := range c.Relationships.All() {
		if r.Type == model.RelationshipFriend {
			out = append(out, r)
		}
	}
	return out
}

// UpsertUser ignores a JSON null document.
func (c *Cache) UpsertUser(doc []byte, mode Mode) (model.User, error) {
	if isNull(doc) {
		return model.User{}, nil
	}
	return c.Users.Upsert(doc, mode)
}

// UpsertRelationship stores the relationship and its embedded user.
func (c *Cache) UpsertRelationship(doc []byte, mode Mode) (model.Relationship, error) {
	rel, err := c.Relationships.Upsert(doc, mode)
	if err != nil {
		return rel, err
	}
	var embedded struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(doc, &embedded); err == nil && len(embedded.User) > 0 {
		if _, err := c.UpsertUser(embedded.User, mode); err != nil {
			return rel, err
		}
	}
	return rel, nil
}

// UpsertGuild stores the guild and every channel listed under it. Channels
// listed inside a guild are tagged with its id when the peer omits it.
func (c *Cache) UpsertGuild(doc []byte, mode Mode) (model.Guild, error) {
	guild, err := c.Guilds.Upsert(doc, mode)
	if err != nil {
		return guild, err
	}
	var embedded struct {
		ID       string            `json:"id"`
		Channels []json.RawMessage `json:"channels"`
	}
	if err := json.Unmarshal(doc, &embedded); err != nil {
		return guild, fmt.Errorf("%w: guild channels: %v", ErrInvalidDocument, err)
	}
	for _, raw := range embedded.Channels {
		if _, err := c.UpsertGuildChannel(embedded.ID, raw, mode); err != nil {
			return guild, err
		}
	}
	return guild, nil
}

// UpsertGuildChannel stores a channel known to belong to guildID.
func (c *Cache) UpsertGuildChannel(guildID string, doc []byte, mode Mode) (model.Channel, error) {
	var probe struct {
		GuildID *string `json:"guild_id"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return model.Channel{}, fmt.Errorf("%w: channel: %v", ErrInvalidDocument, err)
	}
	if probe.GuildID == nil && guildID != "" {
		tag, _ := json.Marshal(map[string]string{"guild_id": guildID})
		tagged, err := jsonpatch.MergePatch(doc, tag)
		if err != nil {
			return model.Channel{}, fmt.Errorf("%w: channel: %v", ErrInvalidDocument, err)
		}
		doc = tagged
	}
	return c.Channels.Upsert(doc, mode)
}

// RemoveGuild drops the guild and the channels that belong to it.
func (c *Cache) RemoveGuild(id string) (model.Guild, bool) {
	g, ok := c.Guilds.Remove(id)
	c.Channels.RemoveWhere(func(ch model.Channel) bool { return ch.InGuild(id) })
	return g, ok
}

type readyDocs struct {
	User            json.RawMessage   `json:"user"`
	Users           []json.RawMessage `json:"users"`
	Guilds          []json.RawMessage `json:"guilds"`
	Relationships   []json.RawMessage `json:"relationships"`
	PrivateChannels []json.RawMessage `json:"private_channels"`
}

// Populate loads the READY snapshot. Each listed entity replaces whatever was
// cached under its id; entries absent from the snapshot are left alone.
func (c *Cache) Populate(ready []byte) error {
	var docs readyDocs
	if err := json.Unmarshal(ready, &docs); err != nil {
		return fmt.Errorf("%w: ready: %v", ErrInvalidDocument, err)
	}
	if len(docs.User) > 0 && !isNull(docs.User) {
		if _, err := c.SetCurrentUser(docs.User, ModeReplace); err != nil {
			return err
		}
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, raw := range docs.Users {
		_, err := c.UpsertUser(raw, ModeReplace)
		keep(err)
	}
	for _, raw := range docs.Guilds {
		_, err := c.UpsertGuild(raw, ModeReplace)
		keep(err)
	}
	for _, raw := range docs.Relationships {
		_, err := c.UpsertRelationship(raw, ModeReplace)
		keep(err)
	}
	for _, raw := range docs.PrivateChannels {
		_, err := c.Channels.Upsert(raw, ModeReplace)
		keep(err)
	}
	return firstErr
}

func (c *Cache) Stats() Stats {
	return Stats{
		Users:         c.Users.Len(),
		Channels:      c.Channels.Len(),
		Guilds:        c.Guilds.Len(),
		Relationships: c.Relationships.Len(),
	}
}

// Clear empties every category and forgets the current user.
func (c *Cache) Clear() {
	c.Users.Clear()
	c.Channels.Clear()
	c.Guilds.Clear()
	c.Relationships.Clear()
	c.mu.Lock()
	c.currentDoc = nil
	c.currentUser = nil
	c.mu.Unlock()
}

func isNull(doc []byte) bool {
	return len(doc) == 0 || string(doc) == "null"
}
