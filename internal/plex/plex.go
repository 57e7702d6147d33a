// Package plex implements a small Plex Media Server client covering the
// search and scrobble calls the bot needs.
package plex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/zulandar/matinee/internal/models"
	"gorm.io/gorm"
)

// scrobbleIdentifier is the fixed identifier Plex expects on scrobble calls.
const scrobbleIdentifier = "com.plexapp.plugins.library"

// ErrNoActiveServer is returned when no active PlexServer row exists.
var ErrNoActiveServer = errors.New("plex: no active server configured")

// MediaItem is one search result from the Plex library.
type MediaItem struct {
	RatingKey        string `json:"ratingKey"`
	Title            string `json:"title"`
	Type             string `json:"type"` // "movie", "show", "episode", ...
	Year             int    `json:"year"`
	ParentTitle      string `json:"parentTitle"`      // season title for episodes
	GrandparentTitle string `json:"grandparentTitle"` // show title for episodes
	ParentIndex      int    `json:"parentIndex"`      // season number
	Index            int    `json:"index"`            // episode number
}

// searchResponse mirrors the slice of the Plex JSON payload we consume.
type searchResponse struct {
	MediaContainer struct {
		Metadata []MediaItem `json:"Metadata"`
	} `json:"MediaContainer"`
}

// Client talks to a Plex server over its REST API (JSON responses).
type Client struct {
	http *http.Client
}

// NewClient creates a Client. A nil httpClient gets a 15-second-timeout default.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{http: httpClient}
}

// ActiveServer returns the active PlexServer row, or ErrNoActiveServer.
func ActiveServer(db *gorm.DB) (*models.PlexServer, error) {
	var server models.PlexServer
	err := db.Where("active = ?", true).Order("id").First(&server).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveServer
	}
	if err != nil {
		return nil, fmt.Errorf("plex: active server: %w", err)
	}
	return &server, nil
}

// Search queries the server's library for items matching the title.
func (c *Client) Search(ctx context.Context, server *models.PlexServer, query string) ([]MediaItem, error) {
	u := fmt.Sprintf("%s/search?query=%s", strings.TrimRight(server.BaseURL, "/"), url.QueryEscape(query))

	var resp searchResponse
	if err := c.get(ctx, server, u, &resp); err != nil {
		return nil, fmt.Errorf("plex: search %q: %w", query, err)
	}
	return resp.MediaContainer.Metadata, nil
}

// MarkWatched flags an item as watched via the scrobble endpoint.
func (c *Client) MarkWatched(ctx context.Context, server *models.PlexServer, ratingKey string) error {
	u := fmt.Sprintf("%s/:/scrobble?key=%s&identifier=%s",
		strings.TrimRight(server.BaseURL, "/"), url.QueryEscape(ratingKey), scrobbleIdentifier)

	if err := c.get(ctx, server, u, nil); err != nil {
		return fmt.Errorf("plex: mark watched %s: %w", ratingKey, err)
	}
	return nil
}

// get performs an authenticated GET and decodes a JSON body into out when
// out is non-nil.
func (c *Client) get(ctx context.Context, server *models.PlexServer, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", server.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
