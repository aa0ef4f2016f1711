// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// keySeparator cannot appear in a parsed show name or episode label.
const keySeparator = "\x1f"

var ErrInvalidReleaseID = errors.New("invalid release id")

// EncodeID renders a key as "<source>:<base64url(name, episode)>". The
// encoded part never contains ':' '.' or '/', so ids survive being embedded
// in video ids and URL path segments.
func EncodeID(key ReleaseKey) string {
	payload := key.Name + keySeparator + key.Episode
	return key.Source + ":" + base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// DecodeID reverses EncodeID.
func DecodeID(id string) (ReleaseKey, error) {
	source, encoded, ok := strings.Cut(id, ":")
	if !ok || source == "" || encoded == "" {
		return ReleaseKey{}, fmt.Errorf("%w: %q", ErrInvalidReleaseID, id)
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ReleaseKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidReleaseID, id, err)
	}

	name, episode, ok := strings.Cut(string(raw), keySeparator)
	if !ok {
		return ReleaseKey{}, fmt.Errorf("%w: %q: missing episode", ErrInvalidReleaseID, id)
	}

	return ReleaseKey{Source: source, Name: name, Episode: episode}, nil
}

// VideoID appends the season/episode suffix the client uses for streams.
func VideoID(releaseID string, season int, episode string) string {
	return releaseID + ":" + strconv.Itoa(season) + ":" + episode
}

// ReleaseIDFromVideoID keeps the first two ':' separated parts of a video id.
func ReleaseIDFromVideoID(videoID string) string {
	parts := strings.SplitN(videoID, ":", 3)
	if len(parts) < 2 {
		return videoID
	}
	return parts[0] + ":" + parts[1]
}
