// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "airtime"

var (
	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_fetches_total",
		Help:      "Feed downloads by source and result.",
	}, []string{"source", "result"})

	CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_refreshes_total",
		Help:      "Release list rebuilds by result.",
	}, []string{"result"})

	CatalogRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "catalog_refresh_duration_seconds",
		Help:      "Time spent rebuilding the release list, including poster lookups.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	CatalogItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_items",
		Help:      "Rows in the most recent release list.",
	})

	PosterLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poster_lookups_total",
		Help:      "Poster lookups by result (hit, cached, fallback).",
	}, []string{"result"})

	StreamResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_resolutions_total",
		Help:      "Per-quality stream resolutions by outcome.",
	}, []string{"outcome"})

	MagnetOrigins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "magnet_origins_total",
		Help:      "How magnet links were obtained.",
	}, []string{"origin"})

	KeepAlivePings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "keepalive_pings_total",
		Help:      "Self health-check pings by result.",
	}, []string{"result"})
)
