// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/domain"
	"github.com/airtimetoday/airtime/internal/models"
	"github.com/airtimetoday/airtime/internal/services/catalog"
)

const (
	AddonID      = "org.airtimetoday.stremio"
	AddonName    = "Airtime Today"
	AddonVersion = "1.0.0"

	contentType      = "series"
	releaseDateFmt   = "2006-01-02"
	addonLogo        = "https://cdn-icons-png.flaticon.com/512/2972/2972531.png"
	addonBackground  = "https://images.unsplash.com/photo-1578662996442-48f60103fc96?w=1920&h=1080&fit=crop"
	addonDescription = "Anime episodes released in the last day, streamed through Real-Debrid"
)

// Catalog is the release list the addon serves.
type Catalog interface {
	Snapshot(ctx context.Context) catalog.Snapshot
	Lookup(ctx context.Context, id string) (models.ReleaseItem, bool)
	IDPrefixes() []string
}

// StreamResolver turns a release into playable streams.
type StreamResolver interface {
	Resolve(ctx context.Context, item models.ReleaseItem, baseURL string) []models.Stream
}

// ConfigSource returns the current application config.
type ConfigSource interface {
	Snapshot() domain.Config
}

type AddonHandler struct {
	catalog  Catalog
	resolver StreamResolver
	config   ConfigSource
	now      func() time.Time

	locMu   sync.Mutex
	locName string
	loc     *time.Location
}

func NewAddonHandler(catalog Catalog, resolver StreamResolver, config ConfigSource) *AddonHandler {
	return &AddonHandler{
		catalog:  catalog,
		resolver: resolver,
		config:   config,
		now:      time.Now,
		loc:      time.Local,
	}
}

func (h *AddonHandler) Routes(r chi.Router) {
	r.Get("/manifest.json", h.Manifest)
	r.Get("/catalog/{type}/{catalogID}", h.Catalog)
	r.Get("/catalog/{type}/{catalogID}/{extra}", h.Catalog)
	r.Get("/meta/{type}/{itemID}", h.Meta)
	r.Get("/stream/{type}/{videoID}", h.Stream)
}

func (h *AddonHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Snapshot()

	RespondJSON(w, http.StatusOK, models.Manifest{
		ID:          AddonID,
		Version:     AddonVersion,
		Name:        AddonName,
		Description: addonDescription,
		Logo:        addonLogo,
		Background:  addonBackground,
		Resources:   []string{"catalog", "meta", "stream"},
		Types:       []string{contentType},
		Catalogs: []models.CatalogDescriptor{
			{Type: contentType, ID: cfg.CatalogID, Name: AddonName},
		},
		IDPrefixes: h.catalog.IDPrefixes(),
	})
}

type catalogResponse struct {
	Metas []models.MetaPreview `json:"metas"`
}

func (h *AddonHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	cfg := h.config.Snapshot()

	if pathParam(r, "type") != contentType || pathParam(r, "catalogID") != cfg.CatalogID {
		RespondJSON(w, http.StatusOK, catalogResponse{Metas: []models.MetaPreview{}})
		return
	}

	snap := h.catalog.Snapshot(r.Context())
	loc := h.location(cfg.Timezone)

	metas := make([]models.MetaPreview, 0, len(snap.Items))
	for _, item := range snap.Items {
		preview := h.preview(item, loc)
		if item.Kind == models.KindRelease {
			preview.Description = "Episode " + item.Episode + " - " + preview.ReleaseInfo
		}
		metas = append(metas, preview)
	}

	RespondJSON(w, http.StatusOK, catalogResponse{Metas: metas})
}

type metaResponse struct {
	Meta models.Meta `json:"meta"`
}

func (h *AddonHandler) Meta(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "itemID")

	item, ok := h.catalog.Lookup(r.Context(), id)
	if !ok {
		RespondError(w, http.StatusNotFound, "Release not found")
		return
	}

	loc := h.location(h.config.Snapshot().Timezone)
	meta := models.Meta{MetaPreview: h.preview(item, loc)}

	switch item.Kind {
	case models.KindRelease:
		meta.Description = item.FullTitle + "\n\nReleased: " + meta.ReleaseInfo
		meta.Videos = []models.Video{{
			ID:        models.VideoID(item.ID, 1, item.Episode),
			Title:     "Episode " + item.Episode,
			Season:    1,
			Episode:   item.EpisodeNumber(),
			Released:  item.PublishedAt,
			Overview:  item.FullTitle,
			Thumbnail: item.Poster,
		}}
	default:
		meta.Videos = []models.Video{{
			ID:       models.VideoID(item.ID, 1, "0"),
			Title:    item.Name,
			Season:   1,
			Episode:  0,
			Released: item.PublishedAt,
			Overview: item.FullTitle,
		}}
	}

	RespondJSON(w, http.StatusOK, metaResponse{Meta: meta})
}

type streamResponse struct {
	Streams []models.Stream `json:"streams"`
}

func (h *AddonHandler) Stream(w http.ResponseWriter, r *http.Request) {
	videoID := pathParam(r, "videoID")
	id := models.ReleaseIDFromVideoID(videoID)

	item, ok := h.catalog.Lookup(r.Context(), id)
	if !ok {
		RespondError(w, http.StatusNotFound, "Release not found")
		return
	}

	baseURL := strings.TrimSuffix(h.config.Snapshot().BaseURL, "/")
	if baseURL == "" {
		baseURL = requestBaseURL(r)
	}

	streams := h.resolver.Resolve(r.Context(), item, baseURL)
	log.Debug().Str("id", item.ID).Str("name", item.Name).Int("streams", len(streams)).Msg("Streams resolved")

	RespondJSON(w, http.StatusOK, streamResponse{Streams: streams})
}

func (h *AddonHandler) preview(item models.ReleaseItem, loc *time.Location) models.MetaPreview {
	preview := models.MetaPreview{
		ID:          item.ID,
		Type:        contentType,
		Name:        item.Name,
		Poster:      item.Poster,
		Background:  item.Background,
		Description: item.FullTitle,
		Genres:      []string{"Anime"},
		Year:        item.PublishedAt.In(loc).Year(),
		ReleaseInfo: item.PublishedAt.In(loc).Format(releaseDateFmt),
	}

	switch item.Kind {
	case models.KindWaiting:
		preview.Description = "No new anime has aired today yet. Check back later."
		preview.Genres = []string{"Anime", "Waiting"}
		preview.ReleaseInfo = h.now().In(loc).Format(releaseDateFmt)
	case models.KindSectionHeader:
		preview.Genres = []string{"Anime", "Archive"}
		preview.ReleaseInfo = "Yesterday"
	case models.KindNoReleases:
		preview.Genres = []string{"Anime"}
		preview.ReleaseInfo = "Unavailable"
	}

	return preview
}

func (h *AddonHandler) location(name string) *time.Location {
	name = strings.TrimSpace(name)

	h.locMu.Lock()
	defer h.locMu.Unlock()

	if name == h.locName {
		return h.loc
	}

	loc := time.Local
	if name != "" {
		loaded, err := time.LoadLocation(name)
		if err != nil {
			log.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone, using local time")
		} else {
			loc = loaded
		}
	}

	h.locName, h.loc = name, loc
	return loc
}
