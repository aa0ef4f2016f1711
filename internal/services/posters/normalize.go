// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package posters

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// DefaultAliases maps show names Jikan does not find to names it does.
func DefaultAliases() map[string]string {
	return map[string]string{
		"Kimi to Idol Precure": "Wonderful Precure",
		"Kimi to Idol PreCure": "Wonderful Precure",
		"Pretty Cure":          "Precure",
		"PreCure":              "Precure",
		"Shirohiyo":            "Shiro Hiyoko",
	}
}

// Normalizer turns a display name into a search query.
type Normalizer struct {
	aliases       map[string]string
	truncateWords bool
}

// NewNormalizer merges extra over the built-in aliases. Alias keys match
// case-insensitively.
func NewNormalizer(extra map[string]string, truncateWords bool) *Normalizer {
	aliases := make(map[string]string, len(extra)+5)
	for k, v := range DefaultAliases() {
		aliases[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || strings.TrimSpace(v) == "" {
			continue
		}
		aliases[k] = strings.TrimSpace(v)
	}

	return &Normalizer{aliases: aliases, truncateWords: truncateWords}
}

// Normalize applies the alias table, folds diacritics, strips punctuation and
// collapses whitespace.
func (n *Normalizer) Normalize(name string) string {
	query := strings.TrimSpace(name)
	if alias, ok := n.aliases[strings.ToLower(query)]; ok {
		query = alias
	}

	query = foldDiacritics(query)
	query = nonWordPattern.ReplaceAllString(query, " ")
	query = strings.TrimSpace(whitespacePattern.ReplaceAllString(query, " "))

	if n.truncateWords {
		if words := strings.Fields(query); len(words) > 2 {
			query = strings.Join(words[:2], " ")
		}
	}

	return query
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
