package bot

import (
	"sync"
	"time"

	"github.com/zulandar/matinee/internal/models"
	"github.com/zulandar/matinee/internal/plex"
)

const (
	// SelectionTTL is how long a pending selection stays resolvable.
	SelectionTTL = 5 * time.Minute
	// SweepInterval is how often expired selections are purged.
	SweepInterval = time.Minute
	// MaxCandidates caps the number of choices presented per search.
	MaxCandidates = 5
)

// PendingSelection holds the candidates of one multi-result search while the
// user picks a number. Keyed by the triggering message so two overlapping
// searches by the same user never collide.
type PendingSelection struct {
	Key             string
	UserID          uint // internal account
	DiscordUserID   string
	ChannelID       string
	Disposition     models.Disposition
	Candidates      []plex.MediaItem // at most MaxCandidates
	PromptMessageID string           // the bot's numbered-list reply, set after send
	CreatedAt       time.Time
}

// selectionKey builds the composite map key for a selection.
func selectionKey(channelID, discordUserID, triggerMessageID string) string {
	return channelID + ":" + discordUserID + ":" + triggerMessageID
}

// SelectionTable is the process-local pending-selection store. Entries older
// than the TTL are invisible to lookups and removed by Sweep; deletion is
// idempotent, so a reply handler and the sweep racing on one entry is fine.
type SelectionTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*PendingSelection
	now     func() time.Time // test override
}

// NewSelectionTable creates an empty table with the standard TTL.
func NewSelectionTable() *SelectionTable {
	return &SelectionTable{
		ttl:     SelectionTTL,
		entries: make(map[string]*PendingSelection),
		now:     time.Now,
	}
}

// Put stores a selection keyed by (channel, user, trigger message).
func (t *SelectionTable) Put(channelID, discordUserID, triggerMessageID string, sel *PendingSelection) {
	key := selectionKey(channelID, discordUserID, triggerMessageID)
	sel.Key = key
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = t.now()
	}
	t.mu.Lock()
	t.entries[key] = sel
	t.mu.Unlock()
}

// SetPromptMessageID records the bot's numbered-list message ID on a stored
// selection so later structural replies can be correlated to it.
func (t *SelectionTable) SetPromptMessageID(key, messageID string) {
	t.mu.Lock()
	if sel, ok := t.entries[key]; ok {
		sel.PromptMessageID = messageID
	}
	t.mu.Unlock()
}

// Resolve finds the selection a numeric reply refers to. When replyToID is
// set it must match the stored prompt message for the same channel and user;
// otherwise the most recent live selection for (channel, user) is returned.
// The entry is NOT consumed; callers Delete it after a valid pick.
func (t *SelectionTable) Resolve(channelID, discordUserID, replyToID string) *PendingSelection {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.ttl)

	if replyToID != "" {
		for _, sel := range t.entries {
			if sel.ChannelID == channelID && sel.DiscordUserID == discordUserID &&
				sel.PromptMessageID == replyToID && sel.CreatedAt.After(cutoff) {
				return sel
			}
		}
		// A structural reply to something that is not a live prompt falls
		// back to the latest selection, same as a bare numeric message.
	}

	var latest *PendingSelection
	for _, sel := range t.entries {
		if sel.ChannelID != channelID || sel.DiscordUserID != discordUserID {
			continue
		}
		if !sel.CreatedAt.After(cutoff) {
			continue
		}
		if latest == nil || sel.CreatedAt.After(latest.CreatedAt) {
			latest = sel
		}
	}
	return latest
}

// Delete removes a selection. Deleting an absent key is a no-op.
func (t *SelectionTable) Delete(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Sweep removes all expired entries and returns how many were purged.
func (t *SelectionTable) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.ttl)
	purged := 0
	for key, sel := range t.entries {
		if !sel.CreatedAt.After(cutoff) {
			delete(t.entries, key)
			purged++
		}
	}
	return purged
}

// Len returns the number of stored entries, expired or not.
func (t *SelectionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
