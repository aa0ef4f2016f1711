// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/pkg/retry"
)

const (
	StatusWaitingFilesSelection = "waiting_files_selection"
	StatusDownloaded            = "downloaded"

	DefaultPollAttempts = 5
	DefaultPollDelay    = 2 * time.Second
	DefaultErrorDelay   = time.Second
)

var errNotReady = errors.New("torrent not ready")

// TerminalError means Real-Debrid gave up on the torrent.
type TerminalError struct {
	TorrentID string
	Status    string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("torrent %s ended with status %q", e.TorrentID, e.Status)
}

var terminalStatuses = map[string]struct{}{
	"error":        {},
	"magnet_error": {},
	"virus":        {},
	"dead":         {},
}

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".m4v":  {},
	".mov":  {},
	".webm": {},
	".ts":   {},
}

// API is the part of the Real-Debrid client the poller needs.
type API interface {
	GetTorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error)
	SelectFiles(ctx context.Context, torrentID string, files string) error
	UnrestrictLink(ctx context.Context, link string) (string, error)
}

type PollerConfig struct {
	Attempts   uint
	PollDelay  time.Duration
	ErrorDelay time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Attempts:   DefaultPollAttempts,
		PollDelay:  DefaultPollDelay,
		ErrorDelay: DefaultErrorDelay,
	}
}

// Poller waits for a submitted torrent to turn into a direct link.
type Poller struct {
	api API
	cfg PollerConfig
	log zerolog.Logger
}

func NewPoller(api API, cfg PollerConfig) *Poller {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultPollAttempts
	}
	return &Poller{
		api: api,
		cfg: cfg,
		log: log.With().Str("module", "debrid-poller").Logger(),
	}
}

// WaitForDirectLink polls the torrent until Real-Debrid exposes a direct
// link. It returns "" with a nil error when the torrent is still processing
// after the last attempt, and the last error when every attempt failed.
func (p *Poller) WaitForDirectLink(ctx context.Context, torrentID string) (string, error) {
	link, err := retry.Do(ctx, retry.Policy{
		Attempts: p.cfg.Attempts,
		Delay: func(_ uint, err error) time.Duration {
			return p.retryDelay(err)
		},
		RetryIf: pollRetryable,
	}, func(ctx context.Context) (string, error) {
		return p.poll(ctx, torrentID)
	})

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, errNotReady):
		p.log.Debug().Str("torrentId", torrentID).Msg("Torrent still processing")
		return "", nil
	default:
		return "", err
	}
}

// retryDelay backs off for a full poll interval when Real-Debrid throttles.
func (p *Poller) retryDelay(err error) time.Duration {
	if errors.Is(err, errNotReady) {
		return p.cfg.PollDelay
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimited() {
		return p.cfg.PollDelay
	}
	return p.cfg.ErrorDelay
}

func (p *Poller) poll(ctx context.Context, torrentID string) (string, error) {
	info, err := p.api.GetTorrentInfo(ctx, torrentID)
	if err != nil {
		return "", err
	}

	status := strings.ToLower(info.Status)
	if _, terminal := terminalStatuses[status]; terminal {
		return "", &TerminalError{TorrentID: torrentID, Status: info.Status}
	}

	switch status {
	case StatusDownloaded:
		if len(info.Links) == 0 {
			return "", errNotReady
		}
		link, err := p.api.UnrestrictLink(ctx, info.Links[0])
		if err != nil {
			return "", err
		}
		if link == "" {
			return "", errNotReady
		}
		return link, nil

	case StatusWaitingFilesSelection:
		selection := "all"
		if file, ok := LargestVideoFile(info.Files); ok {
			selection = strconv.Itoa(file.ID)
		}
		if err := p.api.SelectFiles(ctx, torrentID, selection); err != nil {
			return "", err
		}
		p.log.Debug().Str("torrentId", torrentID).Str("files", selection).Msg("Selected files")
	}

	return "", errNotReady
}

// LargestVideoFile picks the biggest file with a video extension. Ties go to
// the file listed first.
func LargestVideoFile(files []File) (File, bool) {
	var (
		best  File
		found bool
	)
	for _, f := range files {
		if _, ok := videoExtensions[strings.ToLower(path.Ext(f.Path))]; !ok {
			continue
		}
		if !found || f.Bytes > best.Bytes {
			best = f
			found = true
		}
	}
	return best, found
}

func pollRetryable(err error) bool {
	if errors.Is(err, ErrNoAPIKey) {
		return false
	}

	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		return false
	}

	return true
}
