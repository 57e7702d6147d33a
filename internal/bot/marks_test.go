package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/zulandar/matinee/internal/models"
	"github.com/zulandar/matinee/internal/plex"
	"gorm.io/gorm"
)

type marksFixture struct {
	db      *gorm.DB
	adapter *MockAdapter
	media   *mockMedia
	library *mockLibrary
	table   *SelectionTable
	svc     *MarkService
	user    *models.User
}

func newMarksFixture(t *testing.T) *marksFixture {
	t.Helper()
	db := openTestDB(t)
	adapter := NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock adapter: %v", err)
	}
	media := &mockMedia{}
	library := &mockLibrary{movieID: 101, seriesID: 202}
	table := NewSelectionTable()

	svc, err := NewMarkService(MarkServiceOpts{
		DB:           db,
		Adapter:      adapter,
		Media:        media,
		Library:      library,
		Selections:   table,
		AdminContact: "@admin",
	})
	if err != nil {
		t.Fatalf("new mark service: %v", err)
	}
	return &marksFixture{
		db:      db,
		adapter: adapter,
		media:   media,
		library: library,
		table:   table,
		svc:     svc,
		user:    seedUser(t, db, "alice"),
	}
}

func markMessage(text string) InboundMessage {
	return InboundMessage{
		MessageID:   "m1",
		ChannelID:   "c1",
		ChannelType: ChannelGuild,
		UserID:      "d1",
		UserName:    "alice",
		Text:        text,
	}
}

func TestDispositionFor(t *testing.T) {
	cases := []struct {
		token string
		want  models.Disposition
		ok    bool
	}{
		{"!finished", models.FinishedWatching, true},
		{"!done", models.FinishedWatching, true},
		{"!watched", models.FinishedWatching, true},
		{"!notinterested", models.NotInterested, true},
		{"!skip", models.NotInterested, true},
		{"!pass", models.NotInterested, true},
		{"!keep", models.KeepForever, true},
		{"!favorite", models.KeepForever, true},
		{"!fav", models.KeepForever, true},
		{"!rewatch", models.RewatchCandidate, true},
		{"!badquality", models.PoorQuality, true},
		{"!lowquality", models.PoorQuality, true},
		{"!FINISHED", models.FinishedWatching, true},
		{"!delete", "", false},
		{"finished", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := DispositionFor(tc.token)
		if ok != tc.ok || got != tc.want {
			t.Errorf("DispositionFor(%q) = %q, %v; want %q, %v", tc.token, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMarkSingleResult(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{movieItem("rk-1", "The Matrix", 1999)}

	err := f.svc.HandleCommand(context.Background(), markMessage("!keep The Matrix"), f.user, "!keep", "The Matrix")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var mark models.MediaMark
	if err := f.db.First(&mark).Error; err != nil {
		t.Fatalf("load mark: %v", err)
	}
	if mark.Disposition != models.KeepForever {
		t.Errorf("disposition = %q, want %q", mark.Disposition, models.KeepForever)
	}
	if mark.RatingKey != "rk-1" || mark.UserID != f.user.ID {
		t.Errorf("mark = %+v", mark)
	}
	if mark.RadarrID == nil || *mark.RadarrID != 101 {
		t.Errorf("radarr id = %v, want 101", mark.RadarrID)
	}

	sent, _, ok := f.adapter.LastSent()
	if !ok {
		t.Fatal("no confirmation sent")
	}
	if !strings.Contains(sent.Text, "The Matrix") || !strings.Contains(sent.Text, "keep forever") {
		t.Errorf("confirmation = %q", sent.Text)
	}
}

func TestMarkIdempotentUpsert(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{movieItem("rk-1", "The Matrix", 1999)}

	msg := markMessage("!keep The Matrix")
	for i := 0; i < 3; i++ {
		if err := f.svc.HandleCommand(context.Background(), msg, f.user, "!keep", "The Matrix"); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}

	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 1 {
		t.Errorf("mark rows = %d, want 1", count)
	}
}

func TestMarkDistinctDispositionsCoexist(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{movieItem("rk-1", "The Matrix", 1999)}

	msg := markMessage("")
	if err := f.svc.HandleCommand(context.Background(), msg, f.user, "!keep", "The Matrix"); err != nil {
		t.Fatalf("keep: %v", err)
	}
	if err := f.svc.HandleCommand(context.Background(), msg, f.user, "!rewatch", "The Matrix"); err != nil {
		t.Fatalf("rewatch: %v", err)
	}

	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 2 {
		t.Errorf("mark rows = %d, want 2 (one per disposition)", count)
	}
}

func TestMarkEmptyTitle(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished"), f.user, "!finished", "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	sent, _, ok := f.adapter.LastSent()
	if !ok || !strings.Contains(sent.Text, "!finished") {
		t.Errorf("usage reply = %+v", sent)
	}

	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 0 {
		t.Errorf("mark rows = %d, want 0", count)
	}
}

func TestMarkNoActiveServer(t *testing.T) {
	f := newMarksFixture(t)

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished X"), f.user, "!finished", "X")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	sent, _, ok := f.adapter.LastSent()
	if !ok || !strings.Contains(sent.Text, "@admin") {
		t.Errorf("admin-contact reply = %+v", sent)
	}
}

func TestMarkNothingFound(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = nil

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished Nowhere"), f.user, "!finished", "Nowhere")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	sent, _, ok := f.adapter.LastSent()
	if !ok || !strings.Contains(sent.Text, "Nowhere") {
		t.Errorf("not-found reply = %+v", sent)
	}
}

func TestMarkSearchFailure(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.searchErr = errBackend

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished X"), f.user, "!finished", "X")
	if err == nil {
		t.Fatal("expected error from failed search")
	}
}

func TestMarkMultipleResultsPromptsSelection(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{
		movieItem("rk-1", "Dune", 1984),
		movieItem("rk-2", "Dune", 2021),
		episodeItem("rk-3", "Dune", "Documentaries", 2, 5, 2020),
	}

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished Dune"), f.user, "!finished", "Dune")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	sent, promptID, ok := f.adapter.LastSent()
	if !ok {
		t.Fatal("no prompt sent")
	}
	if sent.ReplyToID != "m1" {
		t.Errorf("prompt reply-to = %q, want m1", sent.ReplyToID)
	}
	for _, want := range []string{"1. Dune (1984)", "2. Dune (2021)", "3. Dune — Documentaries S02E05 (2020)"} {
		if !strings.Contains(sent.Text, want) {
			t.Errorf("prompt missing %q:\n%s", want, sent.Text)
		}
	}

	sel := f.table.Resolve("c1", "d1", "")
	if sel == nil {
		t.Fatal("no pending selection stored")
	}
	if sel.PromptMessageID != promptID {
		t.Errorf("prompt message id = %q, want %q", sel.PromptMessageID, promptID)
	}

	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 0 {
		t.Errorf("mark rows = %d before a pick, want 0", count)
	}
}

func TestMarkCandidatesCapped(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	for i := 0; i < 8; i++ {
		f.media.results = append(f.media.results, movieItem("rk", "Alien", 1979+i))
	}

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished Alien"), f.user, "!finished", "Alien")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	sel := f.table.Resolve("c1", "d1", "")
	if sel == nil {
		t.Fatal("no pending selection stored")
	}
	if len(sel.Candidates) != MaxCandidates {
		t.Errorf("candidates = %d, want %d", len(sel.Candidates), MaxCandidates)
	}
	sent, _, _ := f.adapter.LastSent()
	if strings.Contains(sent.Text, "6.") {
		t.Errorf("prompt listed more than %d choices:\n%s", MaxCandidates, sent.Text)
	}
}

func TestMarkPromptSendFailureDropsSelection(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{
		movieItem("rk-1", "Dune", 1984),
		movieItem("rk-2", "Dune", 2021),
	}
	f.adapter.FailSends(true)

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished Dune"), f.user, "!finished", "Dune")
	if err == nil {
		t.Fatal("expected error from failed prompt send")
	}
	if f.table.Len() != 0 {
		t.Errorf("selection left behind after failed prompt")
	}
}

func TestSelectionPickApplies(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{
		movieItem("rk-1", "Dune", 1984),
		movieItem("rk-2", "Dune", 2021),
	}
	if err := f.svc.HandleCommand(context.Background(), markMessage("!finished Dune"), f.user, "!finished", "Dune"); err != nil {
		t.Fatalf("prompt: %v", err)
	}

	pick := markMessage("2")
	pick.MessageID = "m2"
	handled, err := f.svc.HandleSelection(context.Background(), pick, f.user)
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	if !handled {
		t.Fatal("selection not handled")
	}

	var mark models.MediaMark
	if err := f.db.First(&mark).Error; err != nil {
		t.Fatalf("load mark: %v", err)
	}
	if mark.RatingKey != "rk-2" || mark.Year != 2021 {
		t.Errorf("mark = %+v, want the 2021 pick", mark)
	}
	if f.table.Len() != 0 {
		t.Error("selection not consumed by a valid pick")
	}
	// Finished-watching scrobbles, and the confirmation says so.
	if got := f.media.watched(); len(got) != 1 || got[0] != "rk-2" {
		t.Errorf("watched calls = %v", got)
	}
	sent, _, _ := f.adapter.LastSent()
	if !strings.Contains(sent.Text, "watched in Plex") {
		t.Errorf("confirmation = %q", sent.Text)
	}
}

func TestSelectionOutOfRangeKeepsEntry(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{
		movieItem("rk-1", "Dune", 1984),
		movieItem("rk-2", "Dune", 2021),
	}
	if err := f.svc.HandleCommand(context.Background(), markMessage("!skip Dune"), f.user, "!skip", "Dune"); err != nil {
		t.Fatalf("prompt: %v", err)
	}

	pick := markMessage("5")
	pick.MessageID = "m2"
	handled, err := f.svc.HandleSelection(context.Background(), pick, f.user)
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	if !handled {
		t.Fatal("out-of-range pick not handled")
	}
	sent, _, _ := f.adapter.LastSent()
	if !strings.Contains(sent.Text, "between 1 and 2") {
		t.Errorf("corrective reply = %q", sent.Text)
	}
	if f.table.Len() != 1 {
		t.Error("out-of-range pick consumed the selection")
	}

	// The user can retry with a valid number.
	pick.Text = "1"
	handled, err = f.svc.HandleSelection(context.Background(), pick, f.user)
	if err != nil || !handled {
		t.Fatalf("retry: handled=%v err=%v", handled, err)
	}
	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 1 {
		t.Errorf("mark rows = %d after retry, want 1", count)
	}
}

func TestSelectionWithoutPendingFallsThrough(t *testing.T) {
	f := newMarksFixture(t)

	handled, err := f.svc.HandleSelection(context.Background(), markMessage("3"), f.user)
	if err != nil {
		t.Fatalf("selection: %v", err)
	}
	if handled {
		t.Error("handled a numeric message with no pending selection")
	}
	if f.adapter.SentCount() != 0 {
		t.Error("replied to a numeric message with no pending selection")
	}
}

func TestMarkUnsupportedType(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{{RatingKey: "rk-1", Title: "Greatest Hits", Type: "album", Year: 1995}}

	err := f.svc.HandleCommand(context.Background(), markMessage("!keep Greatest Hits"), f.user, "!keep", "Greatest Hits")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	sent, _, _ := f.adapter.LastSent()
	if !strings.Contains(sent.Text, "album") {
		t.Errorf("unsupported-type reply = %q", sent.Text)
	}
	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 0 {
		t.Errorf("mark rows = %d, want 0", count)
	}
}

func TestMarkWatchedFailureStillConfirms(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{movieItem("rk-1", "The Matrix", 1999)}
	f.media.watchedErr = errBackend

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished The Matrix"), f.user, "!finished", "The Matrix")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	var count int64
	f.db.Model(&models.MediaMark{}).Count(&count)
	if count != 1 {
		t.Fatalf("mark rows = %d, want 1", count)
	}
	sent, _, _ := f.adapter.LastSent()
	if !strings.Contains(sent.Text, "watched in Plex") {
		t.Errorf("confirmation = %q (scrobble failure must not change it)", sent.Text)
	}
}

func TestMarkCrossReferenceFailureLeavesIDsNull(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.library.err = errBackend
	f.media.results = []plex.MediaItem{movieItem("rk-1", "The Matrix", 1999)}

	err := f.svc.HandleCommand(context.Background(), markMessage("!keep The Matrix"), f.user, "!keep", "The Matrix")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var mark models.MediaMark
	if err := f.db.First(&mark).Error; err != nil {
		t.Fatalf("load mark: %v", err)
	}
	if mark.RadarrID != nil || mark.SonarrID != nil {
		t.Errorf("foreign ids set despite resolver failure: %+v", mark)
	}
}

func TestMarkEpisodeRecordsShowFields(t *testing.T) {
	f := newMarksFixture(t)
	seedServer(t, f.db)
	f.media.results = []plex.MediaItem{episodeItem("rk-9", "Pilot", "The Office", 1, 1, 2005)}

	err := f.svc.HandleCommand(context.Background(), markMessage("!finished The Office Pilot"), f.user, "!finished", "The Office Pilot")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var mark models.MediaMark
	if err := f.db.First(&mark).Error; err != nil {
		t.Fatalf("load mark: %v", err)
	}
	if mark.MediaType != models.MediaEpisode || mark.ShowTitle != "The Office" ||
		mark.SeasonNumber != 1 || mark.EpisodeNumber != 1 {
		t.Errorf("mark = %+v", mark)
	}
	if mark.SonarrID == nil || *mark.SonarrID != 202 {
		t.Errorf("sonarr id = %v, want 202", mark.SonarrID)
	}
}
