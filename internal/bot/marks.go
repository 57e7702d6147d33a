package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/matinee/internal/models"
	"github.com/zulandar/matinee/internal/plex"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// markCommands maps command tokens to dispositions. Classification is
// case-insensitive on the first whitespace-delimited token.
var markCommands = map[string]models.Disposition{
	"!finished":      models.FinishedWatching,
	"!done":          models.FinishedWatching,
	"!watched":       models.FinishedWatching,
	"!notinterested": models.NotInterested,
	"!skip":          models.NotInterested,
	"!pass":          models.NotInterested,
	"!keep":          models.KeepForever,
	"!favorite":      models.KeepForever,
	"!fav":           models.KeepForever,
	"!rewatch":       models.RewatchCandidate,
	"!badquality":    models.PoorQuality,
	"!lowquality":    models.PoorQuality,
}

// DispositionFor returns the disposition for a command token, or false when
// the token is not a mark command.
func DispositionFor(token string) (models.Disposition, bool) {
	d, ok := markCommands[strings.ToLower(token)]
	return d, ok
}

// MediaBackend is the slice of the Plex client the mark flow needs.
type MediaBackend interface {
	Search(ctx context.Context, server *models.PlexServer, query string) ([]plex.MediaItem, error)
	MarkWatched(ctx context.Context, server *models.PlexServer, ratingKey string) error
}

// LibraryResolver cross-references items against the library managers.
// Optional; failures and misses leave the foreign IDs null.
type LibraryResolver interface {
	MovieID(ctx context.Context, title string, year int) (int, error)
	SeriesID(ctx context.Context, title string, year int) (int, error)
}

// MarkService resolves a free-text title to one media item and applies a
// disposition mark to it, asking the user to disambiguate multi-result
// searches with a numbered reply.
type MarkService struct {
	db           *gorm.DB
	adapter      Adapter
	media        MediaBackend
	library      LibraryResolver // may be nil
	selections   *SelectionTable
	adminContact string
}

// MarkServiceOpts holds parameters for creating a MarkService.
type MarkServiceOpts struct {
	DB           *gorm.DB
	Adapter      Adapter
	Media        MediaBackend
	Library      LibraryResolver // optional
	Selections   *SelectionTable
	AdminContact string
}

// NewMarkService creates a MarkService.
func NewMarkService(opts MarkServiceOpts) (*MarkService, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bot: mark service: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: mark service: adapter is required")
	}
	if opts.Media == nil {
		return nil, fmt.Errorf("bot: mark service: media backend is required")
	}
	if opts.Selections == nil {
		return nil, fmt.Errorf("bot: mark service: selection table is required")
	}
	contact := opts.AdminContact
	if contact == "" {
		contact = "your server admin"
	}
	return &MarkService{
		db:           opts.DB,
		adapter:      opts.Adapter,
		media:        opts.Media,
		library:      opts.Library,
		selections:   opts.Selections,
		adminContact: contact,
	}, nil
}

// HandleCommand runs a mark command: search the title, apply directly on a
// single hit, or store a pending selection and prompt on multiple hits.
// Validation outcomes (empty title, nothing found) reply to the user and
// return nil; only backend failures return an error.
func (m *MarkService) HandleCommand(ctx context.Context, msg InboundMessage, user *models.User, token, title string) error {
	disposition, ok := DispositionFor(token)
	if !ok {
		// Reaching here means the router matched a token this map does not
		// know — a config bug, not a user mistake. Stay silent in chat.
		log.Printf("bot: mark: unknown disposition token %q from %s", token, msg.UserID)
		return nil
	}

	if strings.TrimSpace(title) == "" {
		return m.reply(ctx, msg, fmt.Sprintf("Tell me what to mark, e.g. `%s The Office`.", strings.ToLower(token)))
	}

	server, err := plex.ActiveServer(m.db)
	if errors.Is(err, plex.ErrNoActiveServer) {
		return m.reply(ctx, msg, fmt.Sprintf("No media server is configured yet — please contact %s.", m.adminContact))
	}
	if err != nil {
		return err
	}

	items, err := m.media.Search(ctx, server, title)
	if err != nil {
		return fmt.Errorf("search %q: %w", title, err)
	}

	switch {
	case len(items) == 0:
		return m.reply(ctx, msg, fmt.Sprintf("I couldn't find anything matching %q in the library.", title))

	case len(items) == 1:
		return m.applyMark(ctx, msg, user, server, items[0], disposition)

	default:
		if len(items) > MaxCandidates {
			items = items[:MaxCandidates]
		}
		sel := &PendingSelection{
			UserID:        user.ID,
			DiscordUserID: msg.UserID,
			ChannelID:     msg.ChannelID,
			Disposition:   disposition,
			Candidates:    items,
		}
		m.selections.Put(msg.ChannelID, msg.UserID, msg.MessageID, sel)

		promptID, err := m.adapter.Send(ctx, OutboundMessage{
			ChannelID: msg.ChannelID,
			ReplyToID: msg.MessageID,
			Text:      formatChoices(title, items),
		})
		if err != nil {
			m.selections.Delete(sel.Key)
			return fmt.Errorf("send choices: %w", err)
		}
		m.selections.SetPromptMessageID(sel.Key, promptID)
		return nil
	}
}

// HasSelection reports whether a numeric reply from this user in this
// channel would resolve against a live pending selection.
func (m *MarkService) HasSelection(channelID, discordUserID, replyToID string) bool {
	return m.selections.Resolve(channelID, discordUserID, replyToID) != nil
}

// HandleSelection resolves a numeric reply against the pending selection it
// correlates to. Out-of-range picks get a corrective reply and keep the
// selection; valid picks consume it and apply the mark. Returns false when
// no selection matched, so the router can fall through to the chat flow.
func (m *MarkService) HandleSelection(ctx context.Context, msg InboundMessage, user *models.User) (bool, error) {
	sel := m.selections.Resolve(msg.ChannelID, msg.UserID, msg.ReplyToID)
	if sel == nil {
		return false, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || n < 1 || n > len(sel.Candidates) {
		return true, m.reply(ctx, msg,
			fmt.Sprintf("Please pick a number between 1 and %d.", len(sel.Candidates)))
	}

	m.selections.Delete(sel.Key)

	server, err := plex.ActiveServer(m.db)
	if errors.Is(err, plex.ErrNoActiveServer) {
		return true, m.reply(ctx, msg, fmt.Sprintf("No media server is configured yet — please contact %s.", m.adminContact))
	}
	if err != nil {
		return true, err
	}

	return true, m.applyMark(ctx, msg, user, server, sel.Candidates[n-1], sel.Disposition)
}

// applyMark upserts the mark row for a resolved item and sends the
// confirmation. Cross-referencing and the watched flag are best-effort.
func (m *MarkService) applyMark(ctx context.Context, msg InboundMessage, user *models.User, server *models.PlexServer, item plex.MediaItem, disposition models.Disposition) error {
	mediaType, ok := mediaTypeFor(item.Type)
	if !ok {
		return m.reply(ctx, msg, fmt.Sprintf("Sorry, I can't mark items of type %q — movies, shows, and episodes only.", item.Type))
	}

	mark := models.MediaMark{
		UserID:      user.ID,
		RatingKey:   item.RatingKey,
		Disposition: disposition,
		MediaType:   mediaType,
		Title:       item.Title,
		Year:        item.Year,
		ChannelID:   msg.ChannelID,
		MarkedAt:    time.Now(),
	}
	if mediaType == models.MediaEpisode {
		mark.ShowTitle = item.GrandparentTitle
		mark.SeasonNumber = item.ParentIndex
		mark.EpisodeNumber = item.Index
	}

	m.crossReference(ctx, &mark)

	// Same (user, item, disposition) triple again only refreshes the
	// timestamp and channel — marking twice never duplicates rows.
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "rating_key"}, {Name: "disposition"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"marked_at", "channel_id"}),
	}).Create(&mark).Error
	if err != nil {
		return fmt.Errorf("upsert mark: %w", err)
	}

	if disposition == models.FinishedWatching {
		if err := m.media.MarkWatched(ctx, server, item.RatingKey); err != nil {
			log.Printf("bot: mark: watched flag for %s: %v", item.RatingKey, err)
		}
	}

	return m.reply(ctx, msg, confirmation(item, disposition))
}

// crossReference attaches Radarr/Sonarr IDs to the mark when the library
// managers know the title. Misses and failures are silent.
func (m *MarkService) crossReference(ctx context.Context, mark *models.MediaMark) {
	if m.library == nil {
		return
	}
	switch mark.MediaType {
	case models.MediaMovie:
		if id, err := m.library.MovieID(ctx, mark.Title, mark.Year); err == nil {
			mark.RadarrID = &id
		}
	case models.MediaShow:
		if id, err := m.library.SeriesID(ctx, mark.Title, mark.Year); err == nil {
			mark.SonarrID = &id
		}
	case models.MediaEpisode:
		if id, err := m.library.SeriesID(ctx, mark.ShowTitle, 0); err == nil {
			mark.SonarrID = &id
		}
	}
}

// reply sends a mention-reply back to the triggering message.
func (m *MarkService) reply(ctx context.Context, msg InboundMessage, text string) error {
	_, err := m.adapter.Send(ctx, OutboundMessage{
		ChannelID:     msg.ChannelID,
		ReplyToID:     msg.MessageID,
		MentionUserID: msg.UserID,
		Text:          text,
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// mediaTypeFor maps a Plex item type to the internal enum.
func mediaTypeFor(plexType string) (models.MediaType, bool) {
	switch plexType {
	case "movie":
		return models.MediaMovie, true
	case "show":
		return models.MediaShow, true
	case "episode":
		return models.MediaEpisode, true
	default:
		return "", false
	}
}

// formatChoices renders the numbered disambiguation list.
func formatChoices(query string, items []plex.MediaItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d matches for %q. Reply with a number to pick one:\n", len(items), query)
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeItem(item))
	}
	return strings.TrimRight(b.String(), "\n")
}

// describeItem renders one candidate: title, show hierarchy for episodes,
// season/episode numbers, and year when known.
func describeItem(item plex.MediaItem) string {
	var b strings.Builder
	b.WriteString(item.Title)
	if item.Type == "episode" && item.GrandparentTitle != "" {
		fmt.Fprintf(&b, " — %s", item.GrandparentTitle)
		if item.ParentIndex > 0 || item.Index > 0 {
			fmt.Fprintf(&b, " S%02dE%02d", item.ParentIndex, item.Index)
		}
	}
	if item.Year > 0 {
		fmt.Fprintf(&b, " (%d)", item.Year)
	}
	return b.String()
}

// confirmation builds the mark confirmation reply. For finished-watching it
// mentions the Plex watched flag based on the disposition alone; the
// scrobble call is best-effort and does not change this text.
func confirmation(item plex.MediaItem, disposition models.Disposition) string {
	text := fmt.Sprintf("Marked %q as %s.", describeItem(item), disposition.Label())
	if disposition == models.FinishedWatching {
		text += " It's also marked as watched in Plex."
	}
	return text
}
