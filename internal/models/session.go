package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Turn roles recognized when loading stored history. Anything else is a
// malformed/legacy entry and is dropped on load.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single utterance in a chat session's rolling history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// Valid reports whether the turn has a recognized role and non-empty content.
func (t Turn) Valid() bool {
	return (t.Role == RoleUser || t.Role == RoleAssistant) && t.Content != ""
}

// ChatSession is the rolling conversational context for one
// (Discord user, channel) pair. The row is created lazily on first chat
// message and reused across clears; only the turn history and conversation
// reference are replaced.
type ChatSession struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	DiscordUserID  string `gorm:"size:32;not null;uniqueIndex:idx_session_user_channel"`
	ChannelID      string `gorm:"size:32;not null;uniqueIndex:idx_session_user_channel"`
	ConversationID string `gorm:"size:64"` // backing completion-backend thread
	Turns          string `gorm:"type:text;not null;default:'[]'"`
	IsActive       bool   `gorm:"default:true"`
	LastMessageAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// History decodes the stored turn JSON, dropping malformed entries.
// A corrupt column yields an empty history rather than an error; the
// session service treats that the same as a fresh session.
func (s *ChatSession) History() []Turn {
	var raw []Turn
	if err := json.Unmarshal([]byte(s.Turns), &raw); err != nil {
		return nil
	}
	turns := raw[:0]
	for _, t := range raw {
		if t.Valid() {
			turns = append(turns, t)
		}
	}
	return turns
}

// SetHistory encodes turns into the JSON column.
func (s *ChatSession) SetHistory(turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	s.Turns = string(data)
	return nil
}
