package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/matinee/internal/assistant"
	"github.com/zulandar/matinee/internal/models"
	"github.com/zulandar/matinee/internal/redact"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SessionIdleTimeout is how long a session may sit quiet before the
	// next message starts a fresh conversation instead of resuming it.
	SessionIdleTimeout = 30 * time.Minute
	// MaxHistoryTurns bounds the persisted turn history.
	MaxHistoryTurns = 12

	// fallbackReply is sent when redaction leaves nothing of the
	// assistant's answer.
	fallbackReply = "I can help with your Plex library, media requests, and server status. What would you like to know?"
	// redactionNotice is appended when any part of a reply was redacted.
	redactionNotice = "_(Some details were removed from this reply.)_"
)

// ChatService maintains bounded, resumable conversational context per
// (Discord user, channel) and proxies turns to the completion backend.
type ChatService struct {
	db        *gorm.DB
	completer assistant.Completer
	newConvID func() string    // test override, defaults to uuid.NewString
	now       func() time.Time // test override
}

// ChatServiceOpts holds parameters for creating a ChatService.
type ChatServiceOpts struct {
	DB        *gorm.DB
	Completer assistant.Completer
}

// NewChatService creates a ChatService.
func NewChatService(opts ChatServiceOpts) (*ChatService, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bot: chat service: db is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("bot: chat service: completer is required")
	}
	return &ChatService{
		db:        opts.DB,
		completer: opts.Completer,
		newConvID: uuid.NewString,
		now:       time.Now,
	}, nil
}

// Reply runs one chat turn for the user in the channel and returns the
// sanitized assistant reply. On backend failure nothing is persisted — the
// stored session is exactly as it was before the call.
func (s *ChatService) Reply(ctx context.Context, user *models.User, discordUserID, channelID, input string) (string, error) {
	now := s.now()

	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("discord_user_id = ? AND channel_id = ?", discordUserID, channelID).
		First(&sess).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("bot: load session: %w", err)
	}

	// A missing, inactive, or stale session starts a brand-new backing
	// conversation with empty history.
	fresh := !found || !sess.IsActive || now.Sub(sess.LastMessageAt) > SessionIdleTimeout

	var history []models.Turn
	conversationID := s.newConvID()
	if !fresh {
		history = trimTurns(sess.History(), MaxHistoryTurns)
		if sess.ConversationID != "" {
			conversationID = sess.ConversationID
		}
	}

	userTurn := models.Turn{Role: models.RoleUser, Content: input, Timestamp: now}
	turns := append(history, userTurn)

	resp, err := s.completer.Run(ctx, assistant.Request{
		UserID:         user.ID,
		Turns:          turns,
		ConversationID: conversationID,
	})
	if err != nil {
		return "", fmt.Errorf("bot: completion: %w", err)
	}

	res := redact.Sanitize(resp.Message.Content)
	reply := res.Content
	switch {
	case reply == "":
		reply = fallbackReply
	case res.Redacted:
		reply += "\n" + redactionNotice
	}

	assistantTurn := models.Turn{
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: s.now(),
		Sources:   resp.Message.Sources,
	}

	if resp.ConversationID != "" {
		conversationID = resp.ConversationID
	}

	sess.DiscordUserID = discordUserID
	sess.ChannelID = channelID
	sess.ConversationID = conversationID
	sess.IsActive = true
	sess.LastMessageAt = now
	if err := sess.SetHistory(trimTurns(append(turns, assistantTurn), MaxHistoryTurns)); err != nil {
		return "", fmt.Errorf("bot: encode history: %w", err)
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "discord_user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"conversation_id", "turns", "is_active", "last_message_at", "updated_at",
		}),
	}).Create(&sess).Error
	if err != nil {
		return "", fmt.Errorf("bot: persist session: %w", err)
	}

	return reply, nil
}

// ClearContext resets the session for (user, channel): new backing
// conversation, empty history, same row. Clearing a nonexistent session
// succeeds without creating one.
func (s *ChatService) ClearContext(ctx context.Context, discordUserID, channelID string) error {
	var sess models.ChatSession
	err := s.db.WithContext(ctx).
		Where("discord_user_id = ? AND channel_id = ?", discordUserID, channelID).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bot: load session: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&sess).Updates(map[string]interface{}{
		"conversation_id": s.newConvID(),
		"turns":           "[]",
		"is_active":       true,
		"last_message_at": s.now(),
	}).Error
	if err != nil {
		return fmt.Errorf("bot: clear session: %w", err)
	}
	return nil
}

// trimTurns keeps the most recent limit turns, dropping the oldest first.
func trimTurns(turns []models.Turn, limit int) []models.Turn {
	if len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
