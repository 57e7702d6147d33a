package models

import "time"

// PlexServer is a configured media server. At most one row should be
// active; the bot refuses mark commands when none is. Active carries no
// column default: GORM drops zero-valued fields that have one from the
// INSERT, which would silently re-activate deactivated servers.
type PlexServer struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64;not null;uniqueIndex"`
	BaseURL   string `gorm:"size:256;not null"`
	Token     string `gorm:"size:128;not null"`
	Active    bool   `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ArrService is a configured Sonarr or Radarr instance used for
// best-effort foreign-id cross-referencing of marked items.
type ArrService struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"size:16;not null;uniqueIndex"` // "sonarr" or "radarr"
	BaseURL   string `gorm:"size:256;not null"`
	APIKey    string `gorm:"size:128;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
