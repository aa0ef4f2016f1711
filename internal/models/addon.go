// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "time"

// Manifest describes the addon to Stremio clients.
type Manifest struct {
	ID          string              `json:"id"`
	Version     string              `json:"version"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Logo        string              `json:"logo,omitempty"`
	Background  string              `json:"background,omitempty"`
	Resources   []string            `json:"resources"`
	Types       []string            `json:"types"`
	Catalogs    []CatalogDescriptor `json:"catalogs"`
	IDPrefixes  []string            `json:"idPrefixes,omitempty"`
}

type CatalogDescriptor struct {
	Type  string       `json:"type"`
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Extra []CatalogExt `json:"extra,omitempty"`
}

type CatalogExt struct {
	Name       string `json:"name"`
	IsRequired bool   `json:"isRequired,omitempty"`
}

// MetaPreview is one catalog row.
type MetaPreview struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster"`
	Background  string   `json:"background"`
	Description string   `json:"description"`
	Genres      []string `json:"genres"`
	Year        int      `json:"year,omitempty"`
	ReleaseInfo string   `json:"releaseInfo"`
}

// Meta is the detail view of one release with its single episode.
type Meta struct {
	MetaPreview
	Videos []Video `json:"videos"`
}

type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Season    int       `json:"season"`
	Episode   int       `json:"episode"`
	Released  time.Time `json:"released"`
	Overview  string    `json:"overview,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}
