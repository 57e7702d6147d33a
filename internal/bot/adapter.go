// Package bot implements the Matinee chat core: message classification and
// dispatch, media-mark disambiguation, chat sessions, and command auditing.
package bot

import (
	"context"
	"time"
)

// Channel types carried on inbound messages.
const (
	ChannelDM     = "dm"
	ChannelGuild  = "guild"
	ChannelThread = "thread"
)

// Adapter is the interface platform-specific implementations must satisfy.
// Send returns the platform message ID of the delivered message so callers
// can correlate later structural replies against it.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message and returns its platform message ID.
	Send(ctx context.Context, msg OutboundMessage) (string, error)

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	Name string
	URL  string
}

// InboundMessage represents a message received from the chat platform.
// Bot-authored messages are filtered by the adapter and never reach here.
type InboundMessage struct {
	MessageID   string
	ChannelID   string
	ChannelType string // ChannelDM, ChannelGuild, or ChannelThread
	GuildID     string // empty for DMs
	UserID      string
	UserName    string
	Text        string
	MentionsBot bool
	ReplyToID   string // structural reply-to message ID, empty if none
	Attachments []Attachment
	Timestamp   time.Time
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID     string
	Text          string
	ReplyToID     string // reply-to reference to preserve, empty for plain sends
	MentionUserID string // user to mention at the start of the message
}
