// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "time"

// SentinelSource prefixes the ids of injected rows.
const SentinelSource = "airtime"

const (
	waitingPoster        = "https://cdn-icons-png.flaticon.com/512/2972/2972531.png"
	waitingBackground    = "https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=1920&h=1080&fit=crop"
	headerPoster         = "https://cdn-icons-png.flaticon.com/512/2693/2693507.png"
	headerBackground     = "https://images.unsplash.com/photo-1547036967-23d11aacaee0?w=1920&h=1080&fit=crop"
	noReleasesPoster     = "https://via.placeholder.com/300x400/dc3545/ffffff?text=No+Releases"
	noReleasesBackground = "https://via.placeholder.com/1920x1080/dc3545/ffffff?text=No+Releases"
)

func sentinel(kind Kind, key string, name, title, poster, background string, at time.Time) ReleaseItem {
	k := ReleaseKey{Source: SentinelSource, Name: key}
	return ReleaseItem{
		Kind:        kind,
		Key:         k,
		ID:          EncodeID(k),
		Name:        name,
		FullTitle:   title,
		PublishedAt: at,
		Poster:      poster,
		Background:  background,
	}
}

// NewWaitingItem is shown first when nothing has been released today.
func NewWaitingItem(now time.Time) ReleaseItem {
	return sentinel(KindWaiting, "waiting-today",
		"Waiting for today's releases...",
		"No new episodes have been released today yet",
		waitingPoster, waitingBackground, now)
}

// NewSectionHeader separates today's releases from yesterday's.
func NewSectionHeader(now time.Time) ReleaseItem {
	return sentinel(KindSectionHeader, "yesterday-header",
		"Released yesterday",
		"Episodes released yesterday",
		headerPoster, headerBackground, now.Add(-24*time.Hour))
}

// NewNoReleasesBanner replaces the catalog when no feed could be read.
func NewNoReleasesBanner(now time.Time) ReleaseItem {
	return sentinel(KindNoReleases, "no-releases",
		"No releases available",
		"Release feeds are currently unreachable",
		noReleasesPoster, noReleasesBackground, now)
}
