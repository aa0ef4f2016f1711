// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFetchTimeout = 15 * time.Second

	maxFeedBytes int64 = 8 << 20 // 8 MiB safety limit for feed bodies

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	feedAccept       = "application/rss+xml, application/atom+xml, application/xml, text/xml"
)

// StatusError is returned for non-2xx feed responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	_, ok := target.(*StatusError)
	return ok
}

// IsRateLimited returns true if the feed host answered with HTTP 429.
func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Fetcher downloads raw feed documents.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

func NewFetcher(httpClient *http.Client, timeout time.Duration) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return &Fetcher{
		httpClient: httpClient,
		timeout:    timeout,
		log:        log.With().Str("module", "feeds").Logger(),
	}
}

// Fetch returns the body of feedURL. Callers treat any error as an empty
// contribution from that feed.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", feedAccept)

	started := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: feedURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", feedURL, err)
	}
	if int64(len(body)) > maxFeedBytes {
		return nil, fmt.Errorf("feed %s exceeds %d bytes", feedURL, maxFeedBytes)
	}

	f.log.Debug().
		Str("url", feedURL).
		Int("bytes", len(body)).
		Dur("took", time.Since(started)).
		Msg("Fetched feed")

	return body, nil
}
