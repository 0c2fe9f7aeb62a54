package session

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StatusOnline    = "online"
	StatusIdle      = "idle"
	StatusDND       = "dnd"
	StatusInvisible = "invisible"
	StatusOffline   = "offline"

	// DefaultCapabilities is the capability bitfield a desktop client sends.
	DefaultCapabilities = 16381
)

var (
	ErrInvalidIdentify = errors.New("session: invalid identify")
	ErrInvalidResume   = errors.New("session: invalid resume")
	ErrInvalidPresence = errors.New("session: invalid presence")
)

// Properties describes the connecting client.
type Properties struct {
	OS                string `json:"os"`
	Browser           string `json:"browser"`
	Device            string `json:"device"`
	SystemLocale      string `json:"system_locale"`
	BrowserUserAgent  string `json:"browser_user_agent"`
	BrowserVersion    string `json:"browser_version"`
	OSVersion         string `json:"os_version"`
	Referrer          string `json:"referrer"`
	ReferringDomain   string `json:"referring_domain"`
	ReleaseChannel    string `json:"release_channel"`
	ClientBuildNumber int    `json:"client_build_number"`
	ClientEventSource any    `json:"client_event_source"`
	DesignID          int    `json:"design_id"`
}

func DefaultProperties() Properties {
	return Properties{
		OS:                "Mac OS X",
		Browser:           "Discord Client",
		SystemLocale:      "en-US",
		BrowserUserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) discord/0.0.303 Chrome/118.0.5993.159 Electron/27.0.0 Safari/537.36",
		BrowserVersion:    "27.0.0",
		OSVersion:         "23.0.0",
		ReleaseChannel:    "stable",
		ClientBuildNumber: 275530,
	}
}

type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Presence is sent inside Identify and as a standalone PresenceUpdate.
type Presence struct {
	Status     string     `json:"status"`
	Since      int64      `json:"since"`
	Activities []Activity `json:"activities"`
	AFK        bool       `json:"afk"`
}

func DefaultPresence() Presence {
	return Presence{Status: StatusOnline, Activities: []Activity{}}
}

func (p Presence) Validate() error {
	switch p.Status {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible, StatusOffline:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPresence, p.Status)
	}
	for i, activity := range p.Activities {
		if strings.TrimSpace(activity.Name) == "" {
			return fmt.Errorf("%w: activities[%d] missing name", ErrInvalidPresence, i)
		}
		if activity.Type < 0 {
			return fmt.Errorf("%w: activities[%d] negative type", ErrInvalidPresence, i)
		}
	}
	return nil
}

// Identify is the fresh-session handshake payload.
type Identify struct {
	Token        string     `json:"token"`
	Properties   Properties `json:"properties"`
	Presence     Presence   `json:"presence"`
	Compress     bool       `json:"compress"`
	Capabilities int        `json:"capabilities"`
	Intents      *int       `json:"intents,omitempty"`
}

func (i Identify) Validate() error {
	if strings.TrimSpace(i.Token) == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidIdentify)
	}
	if err := i.Presence.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentify, err)
	}
	return nil
}

// Resume asks the peer to replay events after Seq for SessionID.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

func (r Resume) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidResume)
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidResume)
	}
	return nil
}

// ResumeFrom builds a Resume from a ledger snapshot.
func ResumeFrom(token string, snap Snapshot) Resume {
	return Resume{Token: token, SessionID: snap.SessionID, Seq: snap.Sequence}
}
