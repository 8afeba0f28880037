// Package metadata looks up title metadata from TMDB.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"mediarelay/internal/producer"
	"mediarelay/internal/settings"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	cacheTTL       = time.Hour
)

// TMDB implements producer.MetadataResolver against the TMDB v3 API.
// Responses are cached in memory; titles change rarely and the producers hit
// the same media repeatedly across a request's lifecycle.
type TMDB struct {
	provider settings.Provider
	client   *http.Client
	baseURL  string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	md  producer.Metadata
	exp time.Time
}

type Option func(*TMDB)

func WithHTTPClient(c *http.Client) Option {
	return func(t *TMDB) { t.client = c }
}

func WithBaseURL(u string) Option {
	return func(t *TMDB) { t.baseURL = u }
}

func New(provider settings.Provider, opts ...Option) *TMDB {
	t := &TMDB{
		provider: provider,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  defaultBaseURL,
		cache:    map[string]cacheEntry{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TMDB) Movie(ctx context.Context, tmdbID int) (producer.Metadata, error) {
	return t.lookup(ctx, "movie", tmdbID)
}

func (t *TMDB) Series(ctx context.Context, tmdbID int) (producer.Metadata, error) {
	return t.lookup(ctx, "tv", tmdbID)
}

type titleResponse struct {
	Title        string `json:"title"` // movies
	Name         string `json:"name"`  // series
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
	PosterPath   string `json:"poster_path"`
}

func (t *TMDB) lookup(ctx context.Context, kind string, tmdbID int) (producer.Metadata, error) {
	key := kind + "/" + strconv.Itoa(tmdbID)

	t.mu.Lock()
	if e, ok := t.cache[key]; ok && time.Now().Before(e.exp) {
		t.mu.Unlock()
		return e.md, nil
	}
	t.mu.Unlock()

	apiKey := ""
	if cfg := t.provider.Current(); cfg != nil {
		apiKey = cfg.Metadata.TMDBAPIKey
	}
	if apiKey == "" {
		return producer.Metadata{}, fmt.Errorf("tmdb api key not configured")
	}

	u := fmt.Sprintf("%s/%s/%d?api_key=%s", t.baseURL, kind, tmdbID, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return producer.Metadata{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return producer.Metadata{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return producer.Metadata{}, fmt.Errorf("tmdb %s/%d: status %d", kind, tmdbID, resp.StatusCode)
	}

	var tr titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return producer.Metadata{}, fmt.Errorf("tmdb %s/%d: %w", kind, tmdbID, err)
	}

	md := producer.Metadata{
		Title:      tr.Title,
		Year:       yearOf(tr.ReleaseDate),
		PosterPath: tr.PosterPath,
	}
	if md.Title == "" {
		md.Title = tr.Name
		md.Year = yearOf(tr.FirstAirDate)
	}
	if md.Title == "" {
		return producer.Metadata{}, fmt.Errorf("tmdb %s/%d: empty title", kind, tmdbID)
	}

	t.mu.Lock()
	t.cache[key] = cacheEntry{md: md, exp: time.Now().Add(cacheTTL)}
	t.mu.Unlock()
	return md, nil
}

func yearOf(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}
