// Package model holds the entity records carried by gateway events.
//
// Only the fields the engine and cache rely on are typed; unknown fields are
// preserved by the cache in the stored JSON document.
package model

import "time"

type User struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator,omitempty"`
	GlobalName    *string `json:"global_name,omitempty"`
	Avatar        *string `json:"avatar,omitempty"`
	Bot           bool    `json:"bot,omitempty"`
	System        bool    `json:"system,omitempty"`
	MFAEnabled    bool    `json:"mfa_enabled,omitempty"`
	Locale        *string `json:"locale,omitempty"`
	Verified      *bool   `json:"verified,omitempty"`
	Email         *string `json:"email,omitempty"`
	Flags         *uint64 `json:"flags,omitempty"`
	PremiumType   *uint8  `json:"premium_type,omitempty"`
	PublicFlags   *uint64 `json:"public_flags,omitempty"`
}

// DisplayName prefers the global name over the username.
func (u User) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

type ChannelType int

const (
	ChannelGuildText  ChannelType = 0
	ChannelDM         ChannelType = 1
	ChannelGuildVoice ChannelType = 2
	ChannelGroupDM    ChannelType = 3
	ChannelCategory   ChannelType = 4
)

type Channel struct {
	ID            string      `json:"id"`
	Type          ChannelType `json:"type"`
	GuildID       *string     `json:"guild_id,omitempty"`
	Position      *int        `json:"position,omitempty"`
	Name          *string     `json:"name,omitempty"`
	Topic         *string     `json:"topic,omitempty"`
	NSFW          bool        `json:"nsfw,omitempty"`
	LastMessageID *string     `json:"last_message_id,omitempty"`
	Recipients    []User      `json:"recipients,omitempty"`
	OwnerID       *string     `json:"owner_id,omitempty"`
	ParentID      *string     `json:"parent_id,omitempty"`
}

// InGuild reports whether the channel belongs to guildID.
func (c Channel) InGuild(guildID string) bool {
	return c.GuildID != nil && *c.GuildID == guildID
}

type Guild struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Icon        *string   `json:"icon,omitempty"`
	OwnerID     *string   `json:"owner_id,omitempty"`
	MemberCount *uint64   `json:"member_count,omitempty"`
	Unavailable bool      `json:"unavailable,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
}

type RelationshipType int

const (
	RelationshipNone RelationshipType = iota
	RelationshipFriend
	RelationshipBlocked
	RelationshipIncomingRequest
	RelationshipOutgoingRequest
	RelationshipImplicit
)

// Relationship is keyed by the related user's id.
type Relationship struct {
	ID       string           `json:"id"`
	Type     RelationshipType `json:"type"`
	User     *User            `json:"user,omitempty"`
	Nickname *string          `json:"nickname,omitempty"`
	Since    *time.Time       `json:"since,omitempty"`
}

type Message struct {
	ID              string     `json:"id"`
	ChannelID       string     `json:"channel_id"`
	GuildID         *string    `json:"guild_id,omitempty"`
	Author          User       `json:"author"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	EditedTimestamp *time.Time `json:"edited_timestamp,omitempty"`
	TTS             bool       `json:"tts,omitempty"`
	MentionEveryone bool       `json:"mention_everyone,omitempty"`
	Mentions        []User     `json:"mentions,omitempty"`
	Pinned          bool       `json:"pinned,omitempty"`
	Type            int        `json:"type,omitempty"`
}

// MessageDelete is the MESSAGE_DELETE payload.
type MessageDelete struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	GuildID   *string `json:"guild_id,omitempty"`
}

// Emoji is a custom or unicode emoji. ID is nil for unicode emoji.
type Emoji struct {
	ID       *string `json:"id,omitempty"`
	Name     *string `json:"name,omitempty"`
	Animated bool    `json:"animated,omitempty"`
}

// MessageReaction is the MESSAGE_REACTION_ADD and MESSAGE_REACTION_REMOVE
// payload.
type MessageReaction struct {
	UserID    string  `json:"user_id"`
	ChannelID string  `json:"channel_id"`
	MessageID string  `json:"message_id"`
	GuildID   *string `json:"guild_id,omitempty"`
	Emoji     *Emoji  `json:"emoji,omitempty"`
}

// UnavailableGuild is the GUILD_DELETE payload.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// RelationshipRemove is the RELATIONSHIP_REMOVE payload.
type RelationshipRemove struct {
	ID   string           `json:"id"`
	Type RelationshipType `json:"type"`
}

// Ready is the READY payload. Guilds carry their channels.
type Ready struct {
	V                int            `json:"v"`
	User             User           `json:"user"`
	SessionID        string         `json:"session_id"`
	ResumeGatewayURL string         `json:"resume_gateway_url"`
	Users            []User         `json:"users,omitempty"`
	Guilds           []Guild        `json:"guilds,omitempty"`
	Relationships    []Relationship `json:"relationships,omitempty"`
	PrivateChannels  []Channel      `json:"private_channels,omitempty"`
}
