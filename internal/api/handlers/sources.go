// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/services/catalog"
)

// SourceToggler changes which feed sources contribute to the catalog.
type SourceToggler interface {
	Sources() []catalog.SourceStatus
	SetSourceEnabled(name string, enabled bool) (catalog.SourceStatus, error)
	ToggleSource(name string) (catalog.SourceStatus, error)
}

type SourcesHandler struct {
	sources SourceToggler
}

func NewSourcesHandler(sources SourceToggler) *SourcesHandler {
	return &SourcesHandler{sources: sources}
}

type sourcesResponse struct {
	Sources []catalog.SourceStatus `json:"sources"`
}

func (h *SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, sourcesResponse{Sources: h.sources.Sources()})
}

// ToggleSourceRequest flips the named source, or sets it when Enabled is given.
type ToggleSourceRequest struct {
	Source  string `json:"source"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type toggleSourceResponse struct {
	Source  catalog.SourceStatus   `json:"source"`
	Sources []catalog.SourceStatus `json:"sources"`
}

func (h *SourcesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("failed to decode toggle-source request")
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	name := strings.TrimSpace(req.Source)
	if name == "" {
		RespondError(w, http.StatusBadRequest, "Source is required")
		return
	}

	var (
		status catalog.SourceStatus
		err    error
	)
	if req.Enabled != nil {
		status, err = h.sources.SetSourceEnabled(name, *req.Enabled)
	} else {
		status, err = h.sources.ToggleSource(name)
	}

	if err != nil {
		if errors.Is(err, catalog.ErrUnknownSource) {
			RespondError(w, http.StatusNotFound, "Unknown source: "+name)
			return
		}
		log.Error().Err(err).Str("source", name).Msg("failed to toggle source")
		RespondError(w, http.StatusInternalServerError, "Failed to toggle source")
		return
	}

	RespondJSON(w, http.StatusOK, toggleSourceResponse{Source: status, Sources: h.sources.Sources()})
}
