// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package magnet derives a magnet link for one quality of a release.
package magnet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/metrics"
	"github.com/airtimetoday/airtime/internal/models"
)

const (
	DefaultTimeout = 10 * time.Second

	maxTorrentDownloadBytes int64 = 16 << 20
	maxPageBytes            int64 = 4 << 20

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Origin tells where a magnet's info-hash came from.
type Origin string

const (
	OriginFeedHash    Origin = "feed-hash"
	OriginFeedMagnet  Origin = "feed-magnet"
	OriginScrape      Origin = "scrape"
	OriginTorrentFile Origin = "torrent-file"
	// The two placeholder origins do not identify a real torrent.
	OriginCRCPlaceholder   Origin = "crc-placeholder"
	OriginTitlePlaceholder Origin = "title-placeholder"
)

// IsPlaceholder reports whether the hash is synthesized.
func (o Origin) IsPlaceholder() bool {
	return o == OriginCRCPlaceholder || o == OriginTitlePlaceholder
}

var crcPattern = regexp.MustCompile(`\[([A-Fa-f0-9]{8})\]`)

type Config struct {
	Trackers []string
	Timeout  time.Duration
}

type Builder struct {
	httpClient *http.Client
	cfg        Config
	log        zerolog.Logger
}

func NewBuilder(cfg Config, httpClient *http.Client) *Builder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Builder{
		httpClient: httpClient,
		cfg:        cfg,
		log:        log.With().Str("module", "magnet").Logger(),
	}
}

// DisplayTitle is the dn of a synthesized magnet.
func DisplayTitle(item models.ReleaseItem, quality string) string {
	return fmt.Sprintf("[%s] %s - %s (%s)", item.Group, item.Name, item.Episode, quality)
}

// Build always returns a syntactically valid magnet link. Lookups that need
// the network are tried in order and the first one that yields a real
// info-hash wins.
func (b *Builder) Build(ctx context.Context, item models.ReleaseItem, quality string) (models.StreamCandidate, Origin) {
	source := item.Qualities[quality]
	title := DisplayTitle(item, quality)

	uri, origin := b.resolve(ctx, item, source, title)
	metrics.MagnetOrigins.WithLabelValues(string(origin)).Inc()

	b.log.Debug().
		Str("release", item.ID).
		Str("quality", quality).
		Str("origin", string(origin)).
		Msg("Magnet derived")

	return models.StreamCandidate{
		MagnetURI:    uri,
		Quality:      quality,
		DisplayTitle: title,
	}, origin
}

func (b *Builder) resolve(ctx context.Context, item models.ReleaseItem, source models.QualitySource, title string) (string, Origin) {
	if source.InfoHash != "" {
		var h metainfo.Hash
		if err := h.FromHexString(strings.TrimSpace(source.InfoHash)); err == nil {
			return b.magnet(h, title, nil), OriginFeedHash
		}
	}

	if strings.HasPrefix(source.Link, "magnet:") {
		if _, err := metainfo.ParseMagnetUri(source.Link); err == nil {
			return source.Link, OriginFeedMagnet
		}
	}

	if source.Page != "" {
		uri, err := b.scrape(ctx, source.Page)
		if err == nil {
			return uri, OriginScrape
		}
		b.log.Debug().Err(err).Str("page", source.Page).Msg("Magnet scrape failed")
	}

	if isHTTP(source.Link) && source.Link != source.Page {
		mi, err := b.downloadTorrent(ctx, source.Link)
		if err == nil {
			return b.magnet(mi.HashInfoBytes(), title, announceURLs(mi)), OriginTorrentFile
		}
		b.log.Debug().Err(err).Str("url", source.Link).Msg("Torrent download failed")
	}

	if m := crcPattern.FindStringSubmatch(item.FullTitle); m != nil {
		var h metainfo.Hash
		if err := h.FromHexString(strings.ToLower(m[1]) + strings.Repeat("0", 32)); err == nil {
			return b.magnet(h, title, nil), OriginCRCPlaceholder
		}
	}

	return b.magnet(metainfo.HashBytes([]byte(title)), title, nil), OriginTitlePlaceholder
}

// magnet lists the configured trackers first, then any extra ones.
func (b *Builder) magnet(h metainfo.Hash, title string, extra []string) string {
	trackers := make([]string, 0, len(b.cfg.Trackers)+len(extra))
	seen := make(map[string]struct{}, len(b.cfg.Trackers)+len(extra))
	for _, tr := range append(append([]string{}, b.cfg.Trackers...), extra...) {
		tr = strings.TrimSpace(tr)
		if _, dup := seen[tr]; dup || tr == "" {
			continue
		}
		seen[tr] = struct{}{}
		trackers = append(trackers, tr)
	}

	m := metainfo.Magnet{
		InfoHash:    h,
		DisplayName: title,
		Trackers:    trackers,
	}
	return m.String()
}

func (b *Builder) scrape(ctx context.Context, page string) (string, error) {
	body, err := b.get(ctx, page, maxPageBytes)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var found string
	doc.Find(`a[href^="magnet:"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if _, err := metainfo.ParseMagnetUri(href); err != nil {
			return true
		}
		found = href
		return false
	})

	if found == "" {
		return "", fmt.Errorf("no magnet link on %s", page)
	}
	return found, nil
}

func (b *Builder) downloadTorrent(ctx context.Context, link string) (*metainfo.MetaInfo, error) {
	body, err := b.get(ctx, link, maxTorrentDownloadBytes)
	if err != nil {
		return nil, err
	}

	mi, err := metainfo.Load(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode torrent: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return nil, fmt.Errorf("torrent has no info dictionary")
	}
	return mi, nil
}

func (b *Builder) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", target, limit)
	}
	return body, nil
}

func announceURLs(mi *metainfo.MetaInfo) []string {
	urls := []string{mi.Announce}
	for _, tier := range mi.AnnounceList {
		urls = append(urls, tier...)
	}
	return urls
}

func isHTTP(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}
