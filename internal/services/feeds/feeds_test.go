// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtimetoday/airtime/internal/domain"
	"github.com/airtimetoday/airtime/internal/models"
)

type feedItem struct {
	title     string
	link      string
	guid      string
	published time.Time
	infoHash  string
}

func buildRSS(items ...feedItem) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<rss version="2.0" xmlns:nyaa="https://nyaa.si/xmlns/nyaa"><channel><title>test</title>`)
	for _, it := range items {
		sb.WriteString("<item>")
		fmt.Fprintf(&sb, "<title>%s</title>", it.title)
		fmt.Fprintf(&sb, "<link>%s</link>", it.link)
		if it.guid != "" {
			fmt.Fprintf(&sb, `<guid isPermaLink="true">%s</guid>`, it.guid)
		}
		if !it.published.IsZero() {
			fmt.Fprintf(&sb, "<pubDate>%s</pubDate>", it.published.Format(time.RFC1123Z))
		}
		if it.infoHash != "" {
			fmt.Fprintf(&sb, "<nyaa:infoHash>%s</nyaa:infoHash>", it.infoHash)
		}
		sb.WriteString("</item>")
	}
	sb.WriteString("</channel></rss>")
	return sb.String()
}

func newSubsPleaseParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser("subsplease", "SubsPlease", domain.SubsPleasePattern)
	require.NoError(t, err)
	return p
}

func TestParseTitle(t *testing.T) {
	p := newSubsPleaseParser(t)

	tests := []struct {
		title   string
		name    string
		episode string
		ok      bool
	}{
		{title: "[SubsPlease] Demo Show - 05 (1080p) [ABCDEF12].mkv", name: "Demo Show", episode: "5", ok: true},
		{title: "[SubsPlease] Demo Show - 12.5 (720p)", name: "Demo Show", episode: "12.5", ok: true},
		{title: "[SubsPlease]   Spaced   Out  -  00 (1080p)", name: "Spaced   Out", episode: "0", ok: true},
		{title: "[SubsPlease] Re-Zero - Part 2 - 101 (1080p)", name: "Re-Zero - Part 2", episode: "101", ok: true},
		{title: "[SubsPlease] Movie Special (1080p)", ok: false},
		{title: "[Other] Demo Show - 05 (1080p)", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			name, episode, ok := p.ParseTitle(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.episode, episode)
		})
	}
}

func TestNewParserRejectsBadPatterns(t *testing.T) {
	_, err := NewParser("x", "X", `(`)
	require.Error(t, err)

	_, err = NewParser("x", "X", `^\[X\] (.+)$`)
	require.Error(t, err)
}

func TestParseDropsIncompleteAndUnmatchedItems(t *testing.T) {
	p := newSubsPleaseParser(t)
	now := time.Now().UTC().Truncate(time.Second)

	body := buildRSS(
		feedItem{title: "[SubsPlease] Demo Show - 05 (1080p)", link: "https://nyaa.si/view/1/torrent", published: now.Add(-time.Hour)},
		feedItem{title: "[SubsPlease] No Date - 01 (1080p)", link: "https://nyaa.si/view/2/torrent"},
		feedItem{title: "Batch release without pattern", link: "https://nyaa.si/view/3/torrent", published: now},
		feedItem{title: "[SubsPlease] No Link - 02 (1080p)", published: now},
	)

	results, err := p.Parse([]byte(body), "1080p")
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, models.ReleaseKey{Source: "subsplease", Name: "Demo Show", Episode: "5"}, r.Key)
	assert.Equal(t, "1080p", r.Quality)
	assert.Equal(t, "SubsPlease", r.Group)
	assert.Equal(t, "https://nyaa.si/view/1/torrent", r.Source.Link)
	assert.Equal(t, "https://nyaa.si/view/1", r.Source.Page)
	assert.True(t, r.PublishedAt.Equal(now.Add(-time.Hour)))
}

func TestParseDerivesQualityAndInfoHash(t *testing.T) {
	p, err := NewParser("erai", "Erai-raws", domain.EraiRawsPattern)
	require.NoError(t, err)

	hash := "0123456789abcdef0123456789abcdef01234567"
	body := buildRSS(feedItem{
		title:     "[Erai-raws] Demo Show - 07 [720p][Multiple Subtitle][ABCDEF12].mkv",
		link:      "https://nyaa.si/download/42.torrent",
		guid:      "https://nyaa.si/view/42",
		published: time.Now().Add(-time.Minute),
		infoHash:  hash,
	})

	results, err := p.Parse([]byte(body), "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "720p", results[0].Quality)
	assert.Equal(t, hash, results[0].Source.InfoHash)
	assert.Equal(t, "https://nyaa.si/view/42", results[0].Source.Page)
}

func TestParseRejectsGarbage(t *testing.T) {
	p := newSubsPleaseParser(t)
	_, err := p.Parse([]byte("definitely not xml"), "1080p")
	require.Error(t, err)
}

func TestMergeAccumulatesQualities(t *testing.T) {
	p := newSubsPleaseParser(t)
	older := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
	newer := older.Add(5 * time.Minute)

	hd, err := p.Parse([]byte(buildRSS(
		feedItem{title: "[SubsPlease] Demo Show - 05 (1080p)", link: "https://example.org/1080", published: older},
		feedItem{title: "[SubsPlease] Other Show - 11 (1080p)", link: "https://example.org/other", published: older},
	)), "1080p")
	require.NoError(t, err)

	sd, err := p.Parse([]byte(buildRSS(
		feedItem{title: "[SubsPlease] Demo Show - 05 (720p)", link: "https://example.org/720", published: newer},
	)), "720p")
	require.NoError(t, err)

	items := Merge(append(hd, sd...))
	require.Len(t, items, 2)

	demo := items[0]
	assert.Equal(t, "Demo Show", demo.Name)
	assert.Equal(t, "5", demo.Episode)
	assert.Equal(t, "[SubsPlease] Demo Show - 05 (1080p)", demo.FullTitle)
	assert.Equal(t, models.KindRelease, demo.Kind)
	assert.Equal(t, models.EncodeID(demo.Key), demo.ID)
	assert.True(t, demo.PublishedAt.Equal(newer))
	require.Len(t, demo.Qualities, 2)
	assert.Equal(t, "https://example.org/1080", demo.Qualities["1080p"].Link)
	assert.Equal(t, "https://example.org/720", demo.Qualities["720p"].Link)

	assert.Equal(t, "Other Show", items[1].Name)
}

func TestMergeKeepsSourcesApart(t *testing.T) {
	at := time.Now()
	items := Merge([]Result{
		{Key: models.ReleaseKey{Source: "subsplease", Name: "Demo Show", Episode: "5"}, Quality: "1080p", PublishedAt: at},
		{Key: models.ReleaseKey{Source: "erai", Name: "Demo Show", Episode: "5"}, Quality: "1080p", PublishedAt: at},
	})

	require.Len(t, items, 2)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestNormalizeEpisode(t *testing.T) {
	tests := map[string]string{
		"05":    "5",
		"5":     "5",
		"00":    "0",
		"12.5":  "12.5",
		"012.5": "12.5",
		"100":   "100",
		" 07 ":  "7",
		"":      "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeEpisode(in), in)
	}
}

func TestFetcher(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("<rss></rss>"))
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.Client(), time.Second)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "<rss></rss>", string(body))
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Contains(t, gotAccept, "application/rss+xml")

	_, err = f.Fetch(context.Background(), srv.URL+"/broken")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, statusErr.IsRateLimited())

	_, err = f.Fetch(context.Background(), srv.URL+"/limited")
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.IsRateLimited())
}

func TestFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(srv.Client(), 50*time.Millisecond)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}
