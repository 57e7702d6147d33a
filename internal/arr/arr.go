// Package arr implements minimal Sonarr and Radarr lookup clients used to
// cross-reference marked media against the library managers. Lookups are
// best-effort: callers treat every failure as "no match".
package arr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/zulandar/matinee/internal/models"
	"gorm.io/gorm"
)

// ErrNoMatch is returned when a lookup yields no item matching title+year.
var ErrNoMatch = errors.New("arr: no match")

// movieResult is the slice of the Radarr lookup payload we consume.
type movieResult struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// seriesResult is the slice of the Sonarr lookup payload we consume.
type seriesResult struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// Client performs v3 API lookups against configured Sonarr/Radarr instances.
// A missing ArrService row simply yields ErrNoMatch.
type Client struct {
	db   *gorm.DB
	http *http.Client
}

// NewClient creates a Client. A nil httpClient gets a 10-second-timeout default.
func NewClient(db *gorm.DB, httpClient *http.Client) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("arr: db is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{db: db, http: httpClient}, nil
}

// MovieID looks up a Radarr movie ID by title and year.
func (c *Client) MovieID(ctx context.Context, title string, year int) (int, error) {
	svc, err := c.service("radarr")
	if err != nil {
		return 0, err
	}

	var results []movieResult
	if err := c.lookup(ctx, svc, "/api/v3/movie/lookup", title, &results); err != nil {
		return 0, err
	}
	for _, r := range results {
		if strings.EqualFold(r.Title, title) && (year == 0 || r.Year == year) {
			return r.ID, nil
		}
	}
	return 0, ErrNoMatch
}

// SeriesID looks up a Sonarr series ID by title and year.
func (c *Client) SeriesID(ctx context.Context, title string, year int) (int, error) {
	svc, err := c.service("sonarr")
	if err != nil {
		return 0, err
	}

	var results []seriesResult
	if err := c.lookup(ctx, svc, "/api/v3/series/lookup", title, &results); err != nil {
		return 0, err
	}
	for _, r := range results {
		if strings.EqualFold(r.Title, title) && (year == 0 || r.Year == year) {
			return r.ID, nil
		}
	}
	return 0, ErrNoMatch
}

// service fetches the ArrService row for the given kind.
func (c *Client) service(kind string) (*models.ArrService, error) {
	var svc models.ArrService
	err := c.db.Where("kind = ?", kind).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("arr: load %s config: %w", kind, err)
	}
	return &svc, nil
}

// lookup performs a term lookup against an arr instance.
func (c *Client) lookup(ctx context.Context, svc *models.ArrService, path, term string, out interface{}) error {
	u := fmt.Sprintf("%s%s?term=%s", strings.TrimRight(svc.BaseURL, "/"), path, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", svc.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("arr: lookup %q: %w", term, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("arr: lookup %q: status %d", term, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("arr: decode lookup %q: %w", term, err)
	}
	return nil
}
