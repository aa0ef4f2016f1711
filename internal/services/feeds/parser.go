// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package feeds

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/moistari/rls"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/models"
)

// UnknownQuality labels releases whose resolution could not be derived.
const UnknownQuality = "unknown"

// Result is one matched feed entry.
type Result struct {
	Key         models.ReleaseKey
	Group       string
	Title       string
	Quality     string
	Source      models.QualitySource
	PublishedAt time.Time
}

// Parser extracts releases of one source from its feeds.
type Parser struct {
	source  string
	group   string
	pattern *regexp.Regexp
	log     zerolog.Logger
}

// NewParser compiles pattern, which must capture the show name and the
// episode label in its first two groups.
func NewParser(source, group, pattern string) (*Parser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile title pattern for %s: %w", source, err)
	}
	if re.NumSubexp() < 2 {
		return nil, fmt.Errorf("title pattern for %s needs two capture groups, has %d", source, re.NumSubexp())
	}

	return &Parser{
		source:  source,
		group:   group,
		pattern: re,
		log:     log.With().Str("module", "feeds").Str("source", source).Logger(),
	}, nil
}

// ParseTitle returns the trimmed show name and normalized episode label.
func (p *Parser) ParseTitle(title string) (name, episode string, ok bool) {
	m := p.pattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", false
	}

	name = strings.TrimSpace(m[1])
	episode = NormalizeEpisode(m[2])
	if name == "" || episode == "" {
		return "", "", false
	}
	return name, episode, true
}

// Parse reads an RSS or Atom document. quality labels every result; when
// empty the label comes from the item title.
func (p *Parser) Parse(body []byte, quality string) ([]Result, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" || item.PublishedParsed == nil {
			p.log.Trace().Str("title", title).Msg("Skipping incomplete feed item")
			continue
		}

		name, episode, ok := p.ParseTitle(title)
		if !ok {
			p.log.Debug().Str("title", title).Msg("Title does not match release pattern")
			continue
		}

		label := quality
		if label == "" {
			label = qualityFromTitle(title)
		}

		results = append(results, Result{
			Key:     models.ReleaseKey{Source: p.source, Name: name, Episode: episode},
			Group:   p.group,
			Title:   title,
			Quality: label,
			Source: models.QualitySource{
				Link:     link,
				Page:     viewPage(link, item.GUID),
				InfoHash: extensionValue(item, "nyaa", "infoHash"),
			},
			PublishedAt: item.PublishedParsed.UTC(),
		})
	}

	return results, nil
}

// Merge folds results sharing a key into one item. Items keep the order in
// which their key was first seen; the first title wins and the newest
// publish time is kept.
func Merge(results []Result) []models.ReleaseItem {
	index := make(map[models.ReleaseKey]int, len(results))
	items := make([]models.ReleaseItem, 0, len(results))

	for _, r := range results {
		i, seen := index[r.Key]
		if !seen {
			index[r.Key] = len(items)
			items = append(items, models.ReleaseItem{
				Kind:        models.KindRelease,
				Key:         r.Key,
				ID:          models.EncodeID(r.Key),
				Group:       r.Group,
				Name:        r.Key.Name,
				Episode:     r.Key.Episode,
				FullTitle:   r.Title,
				Qualities:   map[string]models.QualitySource{r.Quality: r.Source},
				PublishedAt: r.PublishedAt,
			})
			continue
		}

		item := &items[i]
		if _, exists := item.Qualities[r.Quality]; !exists {
			item.Qualities[r.Quality] = r.Source
		}
		if r.PublishedAt.After(item.PublishedAt) {
			item.PublishedAt = r.PublishedAt
		}
	}

	return items
}

// NormalizeEpisode trims leading zeros from the whole part of an episode label.
func NormalizeEpisode(episode string) string {
	episode = strings.TrimSpace(episode)
	if episode == "" {
		return ""
	}

	whole, frac, hasFrac := strings.Cut(episode, ".")
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && frac != "" {
		return whole + "." + frac
	}
	return whole
}

func qualityFromTitle(title string) string {
	if res := rls.ParseString(title).Resolution; res != "" {
		return res
	}
	return UnknownQuality
}

func viewPage(link, guid string) string {
	for _, candidate := range []string{guid, link} {
		if strings.Contains(candidate, "/view/") {
			return strings.TrimSuffix(strings.TrimSpace(candidate), "/torrent")
		}
	}
	return ""
}

func extensionValue(item *gofeed.Item, namespace, name string) string {
	if item.Extensions == nil {
		return ""
	}
	values := item.Extensions[namespace][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
