// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package streams turns a release row into playable stream entries.
package streams

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/metrics"
	"github.com/airtimetoday/airtime/internal/models"
	"github.com/airtimetoday/airtime/internal/services/magnet"
)

const (
	ScheduleURL = "https://subsplease.org/schedule/"
	HomeURL     = "https://subsplease.org/"
)

type MagnetBuilder interface {
	Build(ctx context.Context, item models.ReleaseItem, quality string) (models.StreamCandidate, magnet.Origin)
}

type Debrid interface {
	HasAPIKey() bool
	AddMagnet(ctx context.Context, magnetURI string) (string, error)
}

type LinkPoller interface {
	WaitForDirectLink(ctx context.Context, torrentID string) (string, error)
}

type Resolver struct {
	magnets MagnetBuilder
	debrid  Debrid
	poller  LinkPoller
	log     zerolog.Logger
}

func NewResolver(magnets MagnetBuilder, debrid Debrid, poller LinkPoller) *Resolver {
	return &Resolver{
		magnets: magnets,
		debrid:  debrid,
		poller:  poller,
		log:     log.With().Str("module", "streams").Logger(),
	}
}

// Resolve never returns an empty list. baseURL is the addon's public
// address, used as the target of the missing-credential entry.
func (r *Resolver) Resolve(ctx context.Context, item models.ReleaseItem, baseURL string) []models.Stream {
	if item.Kind.IsSentinel() {
		metrics.StreamResolutions.WithLabelValues("sentinel").Inc()
		return []models.Stream{sentinelStream(item.Kind)}
	}

	if r.debrid == nil || !r.debrid.HasAPIKey() {
		metrics.StreamResolutions.WithLabelValues("no-credential").Inc()
		return []models.Stream{{
			Name:  "RealDebrid required",
			Title: "Ask the administrator to configure a Real-Debrid API key",
			URL:   baseURL,
		}}
	}

	var out []models.Stream
	for _, quality := range item.SortedQualities() {
		if ctx.Err() != nil {
			break
		}
		if stream, ok := r.resolveQuality(ctx, item, quality); ok {
			out = append(out, stream)
		}
	}

	if len(out) == 0 {
		metrics.StreamResolutions.WithLabelValues("unavailable").Inc()
		return []models.Stream{{
			Name:  "Not available",
			Title: "This stream is not available right now",
			URL:   HomeURL,
		}}
	}

	return out
}

func (r *Resolver) resolveQuality(ctx context.Context, item models.ReleaseItem, quality string) (models.Stream, bool) {
	candidate, origin := r.magnets.Build(ctx, item, quality)
	logger := r.log.With().
		Str("release", item.ID).
		Str("quality", quality).
		Str("magnetOrigin", string(origin)).
		Logger()

	torrentID, err := r.debrid.AddMagnet(ctx, candidate.MagnetURI)
	if err != nil {
		logger.Warn().Err(err).Msg("Real-Debrid rejected magnet, offering raw magnet")
		metrics.StreamResolutions.WithLabelValues("magnet").Inc()
		return magnetStream(item, candidate), true
	}
	if torrentID == "" {
		logger.Debug().Msg("Real-Debrid returned no torrent id, skipping quality")
		metrics.StreamResolutions.WithLabelValues("skipped").Inc()
		return models.Stream{}, false
	}

	link, err := r.poller.WaitForDirectLink(ctx, torrentID)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("torrentId", torrentID).Msg("Polling failed, offering raw magnet")
		metrics.StreamResolutions.WithLabelValues("magnet").Inc()
		return magnetStream(item, candidate), true

	case link == "":
		metrics.StreamResolutions.WithLabelValues("processing").Inc()
		return models.Stream{
			Name:          fmt.Sprintf("RealDebrid %s (Processing...)", quality),
			Title:         fmt.Sprintf("%s - Torrent ID: %s", candidate.DisplayTitle, torrentID),
			URL:           candidate.MagnetURI,
			BehaviorHints: hints(item, true),
		}, true

	default:
		metrics.StreamResolutions.WithLabelValues("direct").Inc()
		return models.Stream{
			Name:          "RealDebrid " + quality,
			Title:         candidate.DisplayTitle,
			URL:           link,
			BehaviorHints: hints(item, false),
		}, true
	}
}

func magnetStream(item models.ReleaseItem, candidate models.StreamCandidate) models.Stream {
	return models.Stream{
		Name:          candidate.Quality + " (Magnet)",
		Title:         candidate.DisplayTitle,
		URL:           candidate.MagnetURI,
		BehaviorHints: hints(item, true),
	}
}

func hints(item models.ReleaseItem, notWebReady bool) *models.BehaviorHints {
	return &models.BehaviorHints{
		BingeGroup:  item.Source() + "-" + item.Name,
		NotWebReady: notWebReady,
	}
}

func sentinelStream(kind models.Kind) models.Stream {
	switch kind {
	case models.KindWaiting:
		return models.Stream{
			Name:  "Waiting for release",
			Title: "Nothing has aired today yet",
			URL:   ScheduleURL,
		}
	case models.KindSectionHeader:
		return models.Stream{
			Name:  "Yesterday's releases",
			Title: "Browse yesterday's episodes below",
			URL:   HomeURL,
		}
	default:
		return models.Stream{
			Name:  "No releases",
			Title: "Release feeds are unavailable right now",
			URL:   HomeURL,
		}
	}
}
