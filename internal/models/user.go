package models

import "time"

// User is an internal Matinee account. Rows are created by the account
// linking flow (web) or the `matinee link` CLI.
type User struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64;not null"`
	Email     string `gorm:"size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DiscordLink maps a Discord user ID to an internal User. A non-nil
// RevokedAt means the link is dead and must be treated the same as
// "never linked".
type DiscordLink struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	DiscordUserID string `gorm:"size:32;not null;uniqueIndex"`
	UserID        uint   `gorm:"not null;index"`
	LinkedAt      time.Time
	RevokedAt     *time.Time
	SyncedAt      *time.Time // last Discord metadata sync, informational only

	User User `gorm:"foreignKey:UserID"`
}
