package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/zulandar/matinee/internal/assistant"
	"github.com/zulandar/matinee/internal/identity"
	"github.com/zulandar/matinee/internal/models"
	"github.com/zulandar/matinee/internal/plex"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.DiscordLink{},
		&models.ChatSession{},
		&models.MediaMark{},
		&models.CommandAudit{},
		&models.PlexServer{},
		&models.ArrService{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name, Email: name + "@example.test"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedServer(t *testing.T, db *gorm.DB) *models.PlexServer {
	t.Helper()
	server := &models.PlexServer{Name: "den", BaseURL: "http://plex.local:32400", Token: "tok", Active: true}
	if err := db.Create(server).Error; err != nil {
		t.Fatalf("seed server: %v", err)
	}
	return server
}

// mockMedia implements MediaBackend with scripted results.
type mockMedia struct {
	mu           sync.Mutex
	results      []plex.MediaItem
	searchErr    error
	watchedErr   error
	watchedCalls []string
	lastQuery    string
}

func (m *mockMedia) Search(ctx context.Context, server *models.PlexServer, query string) ([]plex.MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = query
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockMedia) MarkWatched(ctx context.Context, server *models.PlexServer, ratingKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchedCalls = append(m.watchedCalls, ratingKey)
	return m.watchedErr
}

func (m *mockMedia) watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.watchedCalls...)
}

// mockLibrary implements LibraryResolver with fixed IDs.
type mockLibrary struct {
	movieID  int
	seriesID int
	err      error
}

func (m *mockLibrary) MovieID(ctx context.Context, title string, year int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.movieID, nil
}

func (m *mockLibrary) SeriesID(ctx context.Context, title string, year int) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.seriesID, nil
}

// mockCompleter implements assistant.Completer with a scripted reply.
type mockCompleter struct {
	mu      sync.Mutex
	reply   string
	convID  string
	err     error
	lastReq assistant.Request
	calls   int
}

func (m *mockCompleter) Run(ctx context.Context, req assistant.Request) (*assistant.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	convID := m.convID
	if convID == "" {
		convID = req.ConversationID
	}
	return &assistant.Response{
		Message:        models.Turn{Role: models.RoleAssistant, Content: m.reply},
		ConversationID: convID,
	}, nil
}

func (m *mockCompleter) last() assistant.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// mockIdentity implements IdentityVerifier against a fixed map.
type mockIdentity struct {
	users map[string]*models.User
	err   error
}

func (m *mockIdentity) Verify(ctx context.Context, discordUserID string) (identity.VerifyResult, error) {
	if m.err != nil {
		return identity.VerifyResult{}, m.err
	}
	user, ok := m.users[discordUserID]
	if !ok {
		return identity.VerifyResult{}, nil
	}
	return identity.VerifyResult{Linked: true, User: user}, nil
}

// movieItem builds a movie search result.
func movieItem(key, title string, year int) plex.MediaItem {
	return plex.MediaItem{RatingKey: key, Title: title, Type: "movie", Year: year}
}

// episodeItem builds an episode search result.
func episodeItem(key, title, show string, season, ep, year int) plex.MediaItem {
	return plex.MediaItem{
		RatingKey: key, Title: title, Type: "episode", Year: year,
		GrandparentTitle: show, ParentIndex: season, Index: ep,
	}
}

var errBackend = fmt.Errorf("backend unavailable")
