// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

// BehaviorHints tell the client how to group and play a stream.
type BehaviorHints struct {
	BingeGroup  string `json:"bingeGroup,omitempty"`
	NotWebReady bool   `json:"notWebReady"`
}

// Stream is one entry of a /stream response.
type Stream struct {
	Name          string         `json:"name"`
	Title         string         `json:"title,omitempty"`
	URL           string         `json:"url"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// StreamCandidate is built per request from a release and one of its qualities.
type StreamCandidate struct {
	MagnetURI    string
	Quality      string
	DisplayTitle string
}
