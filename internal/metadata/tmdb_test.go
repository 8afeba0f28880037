package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mediarelay/internal/settings"
)

func tmdbProvider(key string) settings.Provider {
	return settings.Static(&settings.Settings{
		Metadata: settings.MetadataSettings{TMDBAPIKey: key},
	})
}

func TestMovieLookupAndCache(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/movie/27205" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "k" {
			t.Errorf("api_key = %q", r.URL.Query().Get("api_key"))
		}
		fmt.Fprint(w, `{"title": "Inception", "release_date": "2010-07-16", "poster_path": "/incep.jpg"}`)
	}))
	defer srv.Close()

	c := New(tmdbProvider("k"), WithBaseURL(srv.URL))
	for i := 0; i < 3; i++ {
		md, err := c.Movie(context.Background(), 27205)
		if err != nil {
			t.Fatalf("Movie: %v", err)
		}
		if md.Title != "Inception" || md.Year != "2010" || md.PosterPath != "/incep.jpg" {
			t.Fatalf("metadata = %+v", md)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1 (cache miss only once)", hits.Load())
	}
}

func TestSeriesLookup(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv/1399" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"name": "Game of Thrones", "first_air_date": "2011-04-17", "poster_path": "/got.jpg"}`)
	}))
	defer srv.Close()

	c := New(tmdbProvider("k"), WithBaseURL(srv.URL))
	md, err := c.Series(context.Background(), 1399)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if md.Title != "Game of Thrones" || md.Year != "2011" {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(tmdbProvider("k"), WithBaseURL(srv.URL))
	if _, err := c.Movie(context.Background(), 1); err == nil {
		t.Fatal("expected error for upstream 404")
	}

	c = New(tmdbProvider(""), WithBaseURL(srv.URL))
	if _, err := c.Movie(context.Background(), 1); err == nil {
		t.Fatal("expected error without api key")
	}
}
