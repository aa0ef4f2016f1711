// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package posters looks up cover art for release names on Jikan.
package posters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/airtimetoday/airtime/internal/buildinfo"
	"github.com/airtimetoday/airtime/internal/metrics"
	"github.com/airtimetoday/airtime/internal/models"
	"github.com/airtimetoday/airtime/internal/pkg/retry"
)

const (
	DefaultBaseURL  = "https://api.jikan.moe/v4"
	DefaultTimeout  = 10 * time.Second
	DefaultAttempts = 3
	DefaultMemoTTL  = 6 * time.Hour

	FallbackPoster     = "https://via.placeholder.com/300x400/1a1a2e/ffffff?text=Airtime+Today"
	FallbackBackground = "https://via.placeholder.com/1920x1080/1a1a2e/ffffff?text=Airtime+Today"

	searchLimit         = 3
	maxSearchBodyBytes  = 2 << 20
	defaultRatePerSec   = 2
	defaultItemDelayMin = 200 * time.Millisecond
	defaultItemDelayMax = 500 * time.Millisecond
)

var errNoResults = errors.New("no search results")

// StatusError is returned when Jikan answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Query      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jikan search %q: unexpected status %d", e.Query, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	t, ok := target.(*StatusError)
	if !ok {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

func (e *StatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Images is the artwork attached to one release row.
type Images struct {
	Poster     string
	Background string
	// Found is false when the fallback images were returned.
	Found bool
}

func fallbackImages() Images {
	return Images{Poster: FallbackPoster, Background: FallbackBackground}
}

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	Attempts      uint
	TruncateWords bool
	Aliases       map[string]string
	// RatePerSecond bounds outbound searches; zero disables the limiter.
	RatePerSecond float64
	MemoTTL       time.Duration
	// RetryDelay defaults to a random 1-3s pause.
	RetryDelay retry.DelayFunc
	// ItemDelay is the pause Enrich takes between network lookups.
	ItemDelay func() time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		Attempts:      DefaultAttempts,
		RatePerSecond: defaultRatePerSec,
		MemoTTL:       DefaultMemoTTL,
		RetryDelay:    retry.Jitter(time.Second, 3*time.Second),
		ItemDelay: func() time.Duration {
			return retry.RandomBetween(defaultItemDelayMin, defaultItemDelayMax)
		},
	}
}

type Service struct {
	cfg        Config
	httpClient *http.Client
	normalizer *Normalizer
	limiter    *rate.Limiter
	memo       *ttlcache.Cache[string, Images]
	log        zerolog.Logger
}

func NewService(cfg Config, httpClient *http.Client) *Service {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = defaults.Attempts
	}
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = defaults.MemoTTL
	}
	if cfg.RetryDelay == nil {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.ItemDelay == nil {
		cfg.ItemDelay = defaults.ItemDelay
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Service{
		cfg:        cfg,
		httpClient: httpClient,
		normalizer: NewNormalizer(cfg.Aliases, cfg.TruncateWords),
		limiter:    limiter,
		memo: ttlcache.New(ttlcache.Options[string, Images]{}.
			SetDefaultTTL(cfg.MemoTTL)),
		log: log.With().Str("module", "posters").Logger(),
	}
}

// lookup never returns empty URLs. The bool reports whether the result came
// from the network.
func (s *Service) lookup(ctx context.Context, name string) (Images, bool) {
	query := s.normalizer.Normalize(name)
	if query == "" {
		metrics.PosterLookups.WithLabelValues("fallback").Inc()
		return fallbackImages(), false
	}

	key := strings.ToLower(query)
	if cached, ok := s.memo.Get(key); ok {
		metrics.PosterLookups.WithLabelValues("memo").Inc()
		return cached, false
	}

	images, err := retry.Do(ctx, retry.Policy{
		Attempts: s.cfg.Attempts,
		Delay:    s.cfg.RetryDelay,
		RetryIf:  retryable,
		OnRetry: func(attempt uint, err error) {
			s.log.Debug().Err(err).Str("query", query).Uint("attempt", attempt+1).Msg("Poster lookup failed, retrying")
		},
	}, func(ctx context.Context) (Images, error) {
		return s.search(ctx, query)
	})
	if err != nil {
		metrics.PosterLookups.WithLabelValues("fallback").Inc()
		s.log.Debug().Err(err).Str("name", name).Str("query", query).Msg("Poster not found, using fallback")
		return fallbackImages(), true
	}

	metrics.PosterLookups.WithLabelValues("found").Inc()
	_ = s.memo.Set(key, images, ttlcache.DefaultTTL)
	return images, true
}

// Enrich fills Poster and Background on every row that lacks them. Lookups
// run one at a time with a short random pause between network requests.
func (s *Service) Enrich(ctx context.Context, items []models.ReleaseItem) {
	networked := false
	found, fallback := 0, 0

	for i := range items {
		item := &items[i]
		if item.Kind.IsSentinel() || (item.Poster != "" && item.Background != "") {
			continue
		}

		if networked && ctx.Err() == nil {
			if err := sleep(ctx, s.cfg.ItemDelay()); err != nil {
				s.log.Debug().Err(err).Msg("Enrichment interrupted")
			}
		}

		var images Images
		if ctx.Err() != nil {
			images = fallbackImages()
			networked = false
		} else {
			images, networked = s.lookup(ctx, item.Name)
		}

		if images.Found {
			found++
		} else {
			fallback++
		}

		if item.Poster == "" {
			item.Poster = images.Poster
		}
		if item.Background == "" {
			item.Background = images.Background
		}
	}

	if found+fallback > 0 {
		s.log.Debug().Int("found", found).Int("fallback", fallback).Msg("Artwork enrichment finished")
	}
}

type searchResponse struct {
	Data []animeEntry `json:"data"`
}

type animeEntry struct {
	Title  string `json:"title"`
	Images struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
}

func (s *Service) search(ctx context.Context, query string) (Images, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Images{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", fmt.Sprint(searchLimit))
	endpoint := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/anime?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Images{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Images{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Images{}, &StatusError{StatusCode: resp.StatusCode, Query: query}
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSearchBodyBytes)).Decode(&body); err != nil {
		return Images{}, fmt.Errorf("decode search response: %w", err)
	}
	if len(body.Data) == 0 {
		return Images{}, errNoResults
	}

	match := bestMatch(query, body.Data)
	poster := match.Images.JPG.LargeImageURL
	if poster == "" {
		poster = match.Images.JPG.ImageURL
	}
	if poster == "" {
		return Images{}, fmt.Errorf("match %q has no image", match.Title)
	}

	return Images{Poster: poster, Background: poster, Found: true}, nil
}

func bestMatch(query string, candidates []animeEntry) animeEntry {
	if len(candidates) > 1 {
		q := strings.ToLower(query)
		for _, c := range candidates {
			title := strings.ToLower(c.Title)
			if title == "" {
				continue
			}
			if strings.Contains(title, q) || strings.Contains(q, title) {
				return c
			}
		}
	}
	return candidates[0]
}

func retryable(err error) bool {
	if errors.Is(err, errNoResults) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.IsRateLimited()
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
