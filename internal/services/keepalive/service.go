// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package keepalive pings the addon's own health endpoint so hosts that
// suspend idle services keep it running.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/buildinfo"
	"github.com/airtimetoday/airtime/internal/metrics"
)

// Config controls the ping schedule. It is read once by Start; a changed
// base URL or interval takes effect after a restart.
type Config struct {
	// BaseURL is the public address of this instance; "/health" is appended.
	BaseURL      string
	InitialDelay time.Duration
	Interval     time.Duration
	Timeout      time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 5 * time.Minute,
		Interval:     10 * time.Minute,
		Timeout:      5 * time.Second,
	}
}

// Outcome is the result of one ping.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Status describes the most recent ping.
type Status struct {
	Enabled    bool      `json:"enabled"`
	LastPingAt time.Time `json:"lastPingAt,omitzero"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	Pings      int       `json:"pings"`
}

type Service struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	status  Status
	started bool
	done    chan struct{}
}

// NewService constructs a Service. An empty BaseURL disables pinging.
func NewService(cfg Config, httpClient *http.Client) *Service {
	defaults := DefaultConfig()
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")

	return &Service{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log.With().Str("module", "keepalive").Logger(),
		now:        time.Now,
		status:     Status{Enabled: cfg.BaseURL != ""},
		done:       make(chan struct{}),
	}
}

// Start launches the ping loop. It stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	if s.cfg.BaseURL == "" {
		s.log.Info().Msg("Keep-alive disabled, no base URL configured")
		close(s.done)
		return
	}

	s.log.Info().
		Str("url", s.healthURL()).
		Dur("initialDelay", s.cfg.InitialDelay).
		Dur("interval", s.cfg.Interval).
		Msg("Starting keep-alive")

	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()
}

// Done is closed once Start has returned control and any loop has exited.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Status returns the outcome of the last ping.
func (s *Service) Status() Status {
	if s == nil {
		return Status{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Service) loop(ctx context.Context) {
	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.safePing(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safePing(ctx)
		}
	}
}

// safePing keeps the loop alive across a panicking ping.
func (s *Service) safePing(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Keep-alive ping panicked")
			s.record(fmt.Errorf("panic: %v", r))
		}
	}()

	err := s.Ping(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("Keep-alive ping failed")
	}
}

// Ping requests the health endpoint once.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := s.ping(ctx)
	s.record(err)
	return err
}

func (s *Service) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.healthURL(), nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}

	s.log.Debug().Int("status", resp.StatusCode).Msg("Keep-alive ping succeeded")
	return nil
}

func (s *Service) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastPingAt = s.now()
	s.status.Pings++
	if err != nil {
		s.status.Outcome = OutcomeFailed
		s.status.Error = err.Error()
		metrics.KeepAlivePings.WithLabelValues("error").Inc()
		return
	}
	s.status.Outcome = OutcomeSucceeded
	s.status.Error = ""
	metrics.KeepAlivePings.WithLabelValues("ok").Inc()
}

func (s *Service) healthURL() string {
	return s.cfg.BaseURL + "/health"
}
