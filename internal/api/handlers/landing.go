// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}}</title>
</head>
<body>
<h1>{{.Name}}</h1>
<p>{{.Description}}</p>
<p><a href="{{.InstallURL}}">Install in Stremio</a></p>
<p>Manifest: <code>{{.ManifestURL}}</code></p>
<p>Real-Debrid: {{if .RealDebrid}}configured{{else}}not configured, streams will not resolve{{end}}</p>
</body>
</html>
`))

type landingData struct {
	Name        string
	Description string
	ManifestURL string
	InstallURL  template.URL
	RealDebrid  bool
}

type LandingHandler struct {
	config ConfigSource
	debrid CredentialChecker
}

func NewLandingHandler(config ConfigSource, debrid CredentialChecker) *LandingHandler {
	return &LandingHandler{config: config, debrid: debrid}
}

// ServeHTTP renders install instructions for the addon.
func (h *LandingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSuffix(h.config.Snapshot().BaseURL, "/")
	if base == "" {
		base = requestBaseURL(r)
	}
	manifest := base + "/manifest.json"

	_, hostPath, _ := strings.Cut(manifest, "://")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := landingTemplate.Execute(w, landingData{
		Name:        AddonName,
		Description: addonDescription,
		ManifestURL: manifest,
		InstallURL:  template.URL("stremio://" + hostPath),
		RealDebrid:  h.debrid != nil && h.debrid.HasAPIKey(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render landing page")
	}
}
