package models

import "time"

// Disposition is a user's stated relationship to a media item.
type Disposition string

const (
	FinishedWatching Disposition = "finished_watching"
	NotInterested    Disposition = "not_interested"
	KeepForever      Disposition = "keep_forever"
	RewatchCandidate Disposition = "rewatch_candidate"
	PoorQuality      Disposition = "poor_quality"
)

// Label returns the human-readable form used in confirmation replies.
func (d Disposition) Label() string {
	switch d {
	case FinishedWatching:
		return "finished watching"
	case NotInterested:
		return "not interested"
	case KeepForever:
		return "keep forever"
	case RewatchCandidate:
		return "rewatch candidate"
	case PoorQuality:
		return "poor quality"
	default:
		return string(d)
	}
}

// MediaType is the internal media classification for marked items.
type MediaType string

const (
	MediaMovie   MediaType = "movie"
	MediaShow    MediaType = "show"
	MediaEpisode MediaType = "episode"
)

// MediaMark records one (user, item, disposition) triple. Marking the same
// triple again refreshes MarkedAt and the originating channel instead of
// inserting a second row.
type MediaMark struct {
	ID            uint        `gorm:"primaryKey;autoIncrement"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_mark_user_item"`
	RatingKey     string      `gorm:"size:32;not null;uniqueIndex:idx_mark_user_item"`
	Disposition   Disposition `gorm:"size:32;not null;uniqueIndex:idx_mark_user_item"`
	MediaType     MediaType   `gorm:"size:16;not null"`
	Title         string      `gorm:"size:256;not null"`
	Year          int
	ShowTitle     string `gorm:"size:256"` // parent/grandparent for episodes
	SeasonNumber  int
	EpisodeNumber int
	RadarrID      *int // best-effort cross-reference, nil when no match
	SonarrID      *int
	ChannelID     string `gorm:"size:32"`
	MarkedAt      time.Time
	CreatedAt     time.Time
}
