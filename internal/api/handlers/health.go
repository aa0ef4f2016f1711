// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"time"

	"github.com/airtimetoday/airtime/internal/services/catalog"
	"github.com/airtimetoday/airtime/internal/services/keepalive"
)

// CachePeeker reads the release cache without triggering a refresh.
type CachePeeker interface {
	Peek() catalog.Snapshot
	Sources() []catalog.SourceStatus
}

// CredentialChecker reports whether a Real-Debrid key is configured.
type CredentialChecker interface {
	HasAPIKey() bool
}

type KeepAliveStatus interface {
	Status() keepalive.Status
}

type HealthHandler struct {
	cache     CachePeeker
	debrid    CredentialChecker
	keepAlive KeepAliveStatus
	version   string
	now       func() time.Time
}

// NewHealthHandler accepts a nil keepAlive when self pings are disabled.
func NewHealthHandler(cache CachePeeker, debrid CredentialChecker, keepAlive KeepAliveStatus, version string) *HealthHandler {
	return &HealthHandler{
		cache:     cache,
		debrid:    debrid,
		keepAlive: keepAlive,
		version:   version,
		now:       time.Now,
	}
}

type healthResponse struct {
	Status               string                 `json:"status"`
	Version              string                 `json:"version,omitempty"`
	Timestamp            time.Time              `json:"timestamp"`
	RealDebridConfigured bool                   `json:"realDebridConfigured"`
	CacheSize            int                    `json:"cacheSize"`
	CacheAge             int64                  `json:"cacheAge"`
	Generation           uint64                 `json:"generation"`
	Fingerprint          string                 `json:"fingerprint"`
	KeepAlive            bool                   `json:"keepAlive"`
	KeepAliveStatus      *keepalive.Status      `json:"keepAliveStatus,omitempty"`
	CORS                 string                 `json:"cors"`
	Sources              []catalog.SourceStatus `json:"sources"`
}

// HandleHealth never refreshes the cache. cacheAge is in milliseconds and
// is 0 until the first refresh completes.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snap := h.cache.Peek()

	resp := healthResponse{
		Status:               "ok",
		Version:              h.version,
		Timestamp:            now.UTC(),
		RealDebridConfigured: h.debrid != nil && h.debrid.HasAPIKey(),
		CacheSize:            len(snap.Items),
		Generation:           snap.Generation,
		Fingerprint:          snap.Fingerprint(),
		CORS:                 "enabled",
		Sources:              h.cache.Sources(),
	}

	if !snap.GeneratedAt.IsZero() {
		resp.CacheAge = now.Sub(snap.GeneratedAt).Milliseconds()
	}

	if h.keepAlive != nil {
		status := h.keepAlive.Status()
		resp.KeepAlive = status.Enabled
		resp.KeepAliveStatus = &status
	}

	RespondJSON(w, http.StatusOK, resp)
}

// HandleLiveness only reports that the process is serving requests.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
