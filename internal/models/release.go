// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes real releases from the rows injected for display.
type Kind int

const (
	KindRelease Kind = iota
	KindWaiting
	KindSectionHeader
	KindNoReleases
)

func (k Kind) String() string {
	switch k {
	case KindRelease:
		return "release"
	case KindWaiting:
		return "waiting"
	case KindSectionHeader:
		return "section-header"
	case KindNoReleases:
		return "no-releases"
	default:
		return "unknown"
	}
}

// IsSentinel reports whether stream resolution must be skipped for the kind.
func (k Kind) IsSentinel() bool {
	return k != KindRelease
}

// ReleaseKey identifies a release within one cache generation.
type ReleaseKey struct {
	Source  string
	Name    string
	Episode string
}

// QualitySource is where one quality of a release can be fetched from.
type QualitySource struct {
	Link     string `json:"link"`
	Page     string `json:"page,omitempty"`
	InfoHash string `json:"infoHash,omitempty"`
}

// ReleaseItem is one catalog row.
type ReleaseItem struct {
	Kind        Kind                     `json:"kind"`
	Key         ReleaseKey               `json:"-"`
	ID          string                   `json:"id"`
	Group       string                   `json:"group,omitempty"`
	Name        string                   `json:"name"`
	Episode     string                   `json:"episode"`
	FullTitle   string                   `json:"fullTitle"`
	Qualities   map[string]QualitySource `json:"qualities,omitempty"`
	PublishedAt time.Time                `json:"publishedAt"`
	Poster      string                   `json:"poster"`
	Background  string                   `json:"background"`
}

// Source returns the feed source that produced the item.
func (it ReleaseItem) Source() string {
	return it.Key.Source
}

// SortedQualities lists quality labels highest resolution first.
func (it ReleaseItem) SortedQualities() []string {
	labels := make([]string, 0, len(it.Qualities))
	for label := range it.Qualities {
		labels = append(labels, label)
	}

	sort.SliceStable(labels, func(i, j int) bool {
		ri, rj := resolutionOf(labels[i]), resolutionOf(labels[j])
		if ri != rj {
			return ri > rj
		}
		return labels[i] < labels[j]
	})

	return labels
}

// EpisodeNumber is the integer part of the episode label, or 1 when the
// label has none.
func (it ReleaseItem) EpisodeNumber() int {
	whole, _, _ := strings.Cut(it.Episode, ".")
	n, err := strconv.Atoi(whole)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func resolutionOf(label string) int {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "4k", "uhd":
		return 2160
	}

	end := 0
	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}

	n, err := strconv.Atoi(label[:end])
	if err != nil {
		return 0
	}
	return n
}
