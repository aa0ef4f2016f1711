// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package posters

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtimetoday/airtime/internal/models"
	"github.com/airtimetoday/airtime/internal/pkg/retry"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		extra    map[string]string
		truncate bool
		want     string
	}{
		{name: "punctuation stripped", input: "Re:Zero - Starting Life!", want: "Re Zero Starting Life"},
		{name: "whitespace collapsed", input: "  Demo   Show ", want: "Demo Show"},
		{name: "diacritics folded", input: "Pokémon Horizons", want: "Pokemon Horizons"},
		{name: "builtin alias", input: "Kimi to Idol PreCure", want: "Wonderful Precure"},
		{name: "alias case insensitive", input: "shirohiyo", want: "Shiro Hiyoko"},
		{name: "configured alias", input: "Demo", extra: map[string]string{"demo": "Demo Show"}, want: "Demo Show"},
		{name: "truncated", input: "One Two Three Four", truncate: true, want: "One Two"},
		{name: "short name not truncated", input: "One", truncate: true, want: "One"},
		{name: "only punctuation", input: "!!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(tt.extra, tt.truncate)
			assert.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

const searchBody = `{"data":[
	{"title":"Something Else","images":{"jpg":{"image_url":"https://cdn/else.jpg","large_image_url":"https://cdn/else-large.jpg"}}},
	{"title":"Demo Show Season 2","images":{"jpg":{"image_url":"https://cdn/demo.jpg","large_image_url":""}}}
]}`

func lookupImages(svc *Service, name string) Images {
	images, _ := svc.lookup(context.Background(), name)
	return images
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    time.Second,
		Attempts:   3,
		RetryDelay: retry.Fixed(0),
		ItemDelay:  func() time.Duration { return 0 },
	}
}

func TestLookupPrefersSubstringMatch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/anime", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		query = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Demo Show")

	assert.Equal(t, "Demo Show", query)
	assert.True(t, images.Found)
	assert.Equal(t, "https://cdn/demo.jpg", images.Poster)
	assert.Equal(t, images.Poster, images.Background)
}

func TestLookupFirstResultWhenNothingMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Unrelated")

	assert.Equal(t, "https://cdn/else-large.jpg", images.Poster)
}

func TestLookupRetriesRateLimitThenFallsBack(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Demo Show")

	assert.EqualValues(t, 3, calls.Load())
	assert.False(t, images.Found)
	assert.Equal(t, FallbackPoster, images.Poster)
	assert.Equal(t, FallbackBackground, images.Background)
}

func TestLookupRecoversAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Demo Show")

	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, images.Found)
}

func TestLookupRetriesEmptyResults(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Demo Show")

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, FallbackPoster, images.Poster)
}

func TestLookupGivesUpOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	images := lookupImages(svc, "Demo Show")

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, FallbackPoster, images.Poster)
}

func TestLookupMemoizesHits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	svc := NewService(testConfig(srv.URL), srv.Client())
	first := lookupImages(svc, "Demo Show")
	second := lookupImages(svc, "demo show!")

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
}

func TestEnrichSkipsSentinelsAndFillsEveryRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Broken" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	now := time.Now()
	waiting := models.NewWaitingItem(now)
	items := []models.ReleaseItem{
		waiting,
		{Kind: models.KindRelease, Name: "Demo Show"},
		{Kind: models.KindRelease, Name: "Broken"},
	}

	svc := NewService(testConfig(srv.URL), srv.Client())
	svc.Enrich(context.Background(), items)

	assert.Equal(t, waiting.Poster, items[0].Poster)
	assert.Equal(t, "https://cdn/demo.jpg", items[1].Poster)
	assert.Equal(t, FallbackPoster, items[2].Poster)
	assert.Equal(t, FallbackBackground, items[2].Background)
}

func TestEnrichLogsFoundAndFallbackCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Broken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	svc := NewService(testConfig(srv.URL), srv.Client())
	svc.log = zerolog.New(&buf).Level(zerolog.DebugLevel)

	items := []models.ReleaseItem{
		{Kind: models.KindRelease, Name: "Demo Show"},
		{Kind: models.KindRelease, Name: "Broken"},
		{Kind: models.KindRelease, Name: "Demo Show", Poster: "p", Background: "b"},
	}
	svc.Enrich(context.Background(), items)

	out := buf.String()
	assert.Contains(t, out, "Artwork enrichment finished")
	assert.Contains(t, out, `"found":1`)
	assert.Contains(t, out, `"fallback":1`)
}

func TestEnrichAfterCancelUsesFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []models.ReleaseItem{{Kind: models.KindRelease, Name: "Demo Show"}}
	svc := NewService(testConfig(srv.URL), srv.Client())
	svc.Enrich(ctx, items)

	assert.Zero(t, calls.Load())
	assert.Equal(t, FallbackPoster, items[0].Poster)
}

func TestStatusErrorIs(t *testing.T) {
	err := &StatusError{StatusCode: http.StatusTooManyRequests, Query: "x"}
	require.ErrorIs(t, err, &StatusError{})
	require.ErrorIs(t, err, &StatusError{StatusCode: http.StatusTooManyRequests})
	assert.NotErrorIs(t, err, &StatusError{StatusCode: http.StatusNotFound})
	assert.True(t, err.IsRateLimited())
}
