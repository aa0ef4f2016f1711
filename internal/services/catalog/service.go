// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/airtimetoday/airtime/internal/domain"
	"github.com/airtimetoday/airtime/internal/metrics"
	"github.com/airtimetoday/airtime/internal/models"
	"github.com/airtimetoday/airtime/internal/services/feeds"
)

var (
	// ErrNoFeedsAvailable means every enabled feed failed during a refresh.
	ErrNoFeedsAvailable = errors.New("no release feed could be read")
	ErrUnknownSource    = errors.New("unknown source")
)

// maxParallelSources bounds the source fan-out; feeds of one source are
// always read in declared order.
const maxParallelSources = 4

// FeedFetcher downloads one feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// Enricher attaches images to release rows in place.
type Enricher interface {
	Enrich(ctx context.Context, items []models.ReleaseItem)
}

// Config is the part of the application config the catalog depends on.
type Config struct {
	Sources []domain.SourceConfig
	Window  Window
	TTL     time.Duration
}

// ConfigFromDomain converts the application config.
func ConfigFromDomain(cfg *domain.Config) (Config, error) {
	policy, err := ParsePolicy(cfg.FreshnessPolicy)
	if err != nil {
		return Config{}, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}

	maxItems := cfg.MaxCatalogItems
	if maxItems < 0 {
		maxItems = 0
	}

	return Config{
		Sources: cfg.Sources,
		Window: Window{
			Policy:           policy,
			Location:         loc,
			IncludeYesterday: cfg.IncludeYesterday,
			MaxItems:         maxItems,
		},
		TTL: time.Duration(cfg.CacheTTLMinutes) * time.Minute,
	}, nil
}

// SourceStatus is the public view of a configured source.
type SourceStatus struct {
	Name    string `json:"name"`
	Group   string `json:"group"`
	Enabled bool   `json:"enabled"`
	Feeds   int    `json:"feeds"`
}

type source struct {
	cfg     domain.SourceConfig
	parser  *feeds.Parser
	enabled bool
}

type Option func(*Service)

// WithNow replaces time.Now for both the cache and the freshness window.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service builds the release list and serves it through a Cache.
type Service struct {
	fetcher  FeedFetcher
	enricher Enricher
	cache    *Cache
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.RWMutex
	sources []*source
	window  Window
}

func NewService(cfg Config, fetcher FeedFetcher, enricher Enricher, opts ...Option) (*Service, error) {
	s := &Service{
		fetcher:  fetcher,
		enricher: enricher,
		now:      time.Now,
		log:      log.With().Str("module", "catalog").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.configure(cfg); err != nil {
		return nil, err
	}

	s.cache = NewCache(s, cfg.TTL, WithClock(s.now))
	return s, nil
}

func (s *Service) configure(cfg Config) error {
	sources, err := buildSources(cfg.Sources)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sources = sources
	s.window = cfg.Window
	s.mu.Unlock()

	return nil
}

func buildSources(cfgs []domain.SourceConfig) ([]*source, error) {
	seen := make(map[string]struct{}, len(cfgs))
	sources := make([]*source, 0, len(cfgs))

	for _, sc := range cfgs {
		name := strings.TrimSpace(sc.Name)
		if name == "" || strings.ContainsAny(name, ":/") {
			return nil, fmt.Errorf("invalid source name %q", sc.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate source %q", name)
		}
		seen[name] = struct{}{}

		parser, err := feeds.NewParser(name, sc.Group, sc.Pattern)
		if err != nil {
			return nil, err
		}

		sc.Name = name
		sources = append(sources, &source{cfg: sc, parser: parser, enabled: sc.Enabled})
	}

	return sources, nil
}

// Reconfigure applies a reloaded config and invalidates the cache.
func (s *Service) Reconfigure(cfg Config) error {
	if err := s.configure(cfg); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// Snapshot returns the current release list, refreshing it when expired.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	return s.cache.Get(ctx)
}

// Peek returns the cached release list without refreshing.
func (s *Service) Peek() Snapshot {
	return s.cache.Peek()
}

// Lookup finds a release row by id in the current list.
func (s *Service) Lookup(ctx context.Context, id string) (models.ReleaseItem, bool) {
	return s.cache.Get(ctx).Lookup(id)
}

// Invalidate forces the next read to rebuild the list.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// TTL returns the cache time to live.
func (s *Service) TTL() time.Duration {
	return s.cache.TTL()
}

// IDPrefixes lists the id prefixes this catalog can produce.
func (s *Service) IDPrefixes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefixes := make([]string, 0, len(s.sources)+1)
	for _, src := range s.sources {
		prefixes = append(prefixes, src.cfg.Name+":")
	}
	return append(prefixes, models.SentinelSource+":")
}

// Sources lists configured sources in declared order.
func (s *Service) Sources() []SourceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, statusOf(src))
	}
	return out
}

// SetSourceEnabled changes a source's state. The cache is invalidated when
// the state actually changes.
func (s *Service) SetSourceEnabled(name string, enabled bool) (SourceStatus, error) {
	return s.updateSource(name, func(bool) bool { return enabled })
}

// ToggleSource flips a source's state and invalidates the cache.
func (s *Service) ToggleSource(name string) (SourceStatus, error) {
	return s.updateSource(name, func(current bool) bool { return !current })
}

func (s *Service) updateSource(name string, next func(bool) bool) (SourceStatus, error) {
	s.mu.Lock()
	var target *source
	for _, src := range s.sources {
		if strings.EqualFold(src.cfg.Name, strings.TrimSpace(name)) {
			target = src
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return SourceStatus{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	previous := target.enabled
	target.enabled = next(previous)
	status := statusOf(target)
	s.mu.Unlock()

	if previous != status.Enabled {
		s.log.Info().Str("source", status.Name).Bool("enabled", status.Enabled).Msg("Source toggled, invalidating cache")
		s.cache.Invalidate()
	}

	return status, nil
}

func statusOf(src *source) SourceStatus {
	return SourceStatus{
		Name:    src.cfg.Name,
		Group:   src.cfg.Group,
		Enabled: src.enabled,
		Feeds:   len(src.cfg.Feeds),
	}
}

type sourceResult struct {
	results []feeds.Result
	feeds   int
	failed  int
}

// Refresh fetches every enabled source, filters and orders the releases and
// attaches posters. It fails only when every feed failed.
func (s *Service) Refresh(ctx context.Context) ([]models.ReleaseItem, error) {
	started := time.Now()

	s.mu.RLock()
	active := make([]*source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.enabled {
			active = append(active, src)
		}
	}
	window := s.window
	s.mu.RUnlock()

	collected := make([]sourceResult, len(active))

	var g errgroup.Group
	g.SetLimit(maxParallelSources)
	for i, src := range active {
		g.Go(func() error {
			collected[i] = s.collect(ctx, src)
			return nil
		})
	}
	g.Wait()

	var all []feeds.Result
	totalFeeds, failedFeeds := 0, 0
	for _, r := range collected {
		all = append(all, r.results...)
		totalFeeds += r.feeds
		failedFeeds += r.failed
	}

	if totalFeeds > 0 && failedFeeds == totalFeeds {
		metrics.CatalogRefreshes.WithLabelValues("failed").Inc()
		return nil, ErrNoFeedsAvailable
	}

	now := s.now()
	items := window.Assemble(now, feeds.Merge(all))

	if s.enricher != nil {
		s.enricher.Enrich(ctx, items)
	}

	metrics.CatalogRefreshes.WithLabelValues("ok").Inc()
	metrics.CatalogRefreshDuration.Observe(time.Since(started).Seconds())
	metrics.CatalogItems.Set(float64(len(items)))

	s.log.Info().
		Int("sources", len(active)).
		Int("feeds", totalFeeds).
		Int("failedFeeds", failedFeeds).
		Int("parsed", len(all)).
		Int("items", len(items)).
		Dur("took", time.Since(started)).
		Msg("Release list rebuilt")

	return items, nil
}

func (s *Service) collect(ctx context.Context, src *source) sourceResult {
	out := sourceResult{feeds: len(src.cfg.Feeds)}

	for _, feed := range src.cfg.Feeds {
		body, err := s.fetcher.Fetch(ctx, feed.URL)
		if err != nil {
			out.failed++
			outcome := fetchOutcome(err)
			metrics.FeedFetches.WithLabelValues(src.cfg.Name, outcome).Inc()
			s.log.Warn().Err(err).Str("source", src.cfg.Name).Str("url", feed.URL).Str("outcome", outcome).Msg("Feed unavailable")
			continue
		}

		results, err := src.parser.Parse(body, feed.Quality)
		if err != nil {
			out.failed++
			metrics.FeedFetches.WithLabelValues(src.cfg.Name, "invalid").Inc()
			s.log.Warn().Err(err).Str("source", src.cfg.Name).Str("url", feed.URL).Msg("Feed could not be parsed")
			continue
		}

		metrics.FeedFetches.WithLabelValues(src.cfg.Name, "ok").Inc()
		s.log.Debug().Str("source", src.cfg.Name).Str("quality", feed.Quality).Int("matched", len(results)).Msg("Feed parsed")
		out.results = append(out.results, results...)
	}

	return out
}

func fetchOutcome(err error) string {
	var statusErr *feeds.StatusError
	if errors.As(err, &statusErr) && statusErr.IsRateLimited() {
		return "rate-limited"
	}
	return "error"
}
