package models

import "time"

// CommandKind classifies an audited bot interaction.
type CommandKind string

const (
	KindLinkRequest  CommandKind = "LINK_REQUEST"
	KindClearContext CommandKind = "CLEAR_CONTEXT"
	KindHelp         CommandKind = "HELP"
	KindMediaMark    CommandKind = "MEDIA_MARK"
	KindSelection    CommandKind = "SELECTION"
	KindChat         CommandKind = "CHAT"
)

// Audit statuses.
const (
	AuditPending = "pending"
	AuditSuccess = "success"
	AuditFailed  = "failed"
)

// CommandAudit is one row per classified interaction. Rows are written at
// dispatch time (or in one shot for instantaneous paths) and updated once
// on completion; they are never mutated after CompletedAt is set and never
// read back by the dispatcher.
type CommandAudit struct {
	ID              uint        `gorm:"primaryKey;autoIncrement"`
	DiscordUserID   string      `gorm:"size:32;not null;index"`
	DiscordUserName string      `gorm:"size:64"`
	UserID          *uint       // resolved internal user, nil when not linked
	Kind            CommandKind `gorm:"size:16;not null;index"`
	Command         string      `gorm:"size:256"` // name + args, truncated
	ChannelID       string      `gorm:"size:32"`
	ChannelType     string      `gorm:"size:16"` // "dm", "guild", "thread"
	GuildID         string      `gorm:"size:32"`
	Status          string      `gorm:"size:16;default:pending;index"`
	Error           string      `gorm:"type:text"`
	ResponseTimeMS  *int64
	StartedAt       time.Time
	CompletedAt     *time.Time
}
