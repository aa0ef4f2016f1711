// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/api/handlers"
	"github.com/airtimetoday/airtime/internal/api/middleware"
	"github.com/airtimetoday/airtime/internal/config"
	"github.com/airtimetoday/airtime/internal/services/catalog"
	"github.com/airtimetoday/airtime/internal/services/debrid"
	"github.com/airtimetoday/airtime/internal/services/keepalive"
	"github.com/airtimetoday/airtime/internal/services/streams"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  *config.AppConfig
	version string

	catalog   *catalog.Service
	resolver  *streams.Resolver
	debrid    *debrid.Client
	keepAlive *keepalive.Service
}

type Dependencies struct {
	Config    *config.AppConfig
	Version   string
	Catalog   *catalog.Service
	Resolver  *streams.Resolver
	Debrid    *debrid.Client
	KeepAlive *keepalive.Service
}

func NewServer(deps *Dependencies) *Server {
	s := Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			// stream requests wait on Real-Debrid polling
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  180 * time.Second,
		},
		logger:    log.Logger.With().Str("module", "api").Logger(),
		config:    deps.Config,
		version:   deps.Version,
		catalog:   deps.Catalog,
		resolver:  deps.Resolver,
		debrid:    deps.Debrid,
		keepAlive: deps.KeepAlive,
	}

	return &s
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	cfg := s.config.Snapshot()
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	host := listener.Addr().String()
	// Replace 0.0.0.0 or :: with localhost for clickable links
	if strings.HasPrefix(host, "0.0.0.0:") || strings.HasPrefix(host, "[::]:") {
		host = strings.Replace(host, "0.0.0.0:", "localhost:", 1)
		host = strings.Replace(host, "[::]:", "localhost:", 1)
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Bool("realdebrid", s.debrid != nil && s.debrid.HasAPIKey()).
		Msgf("Starting addon server - Install: http://%s/manifest.json", host)

	handler, err := s.Handler()
	if err != nil {
		listener.Close()
		return fmt.Errorf("build API router: %w", err)
	}

	s.server.Handler = handler

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() (*chi.Mux, error) {
	if s.catalog == nil || s.resolver == nil {
		return nil, errors.New("catalog and stream resolver are required")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID) // Must be before logger to capture request ID
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	// Stremio web and desktop clients fetch from arbitrary origins
	corsMiddleware := cors.New(cors.Options{
		AllowedMethods:  []string{"HEAD", "OPTIONS", "GET", "POST"},
		AllowedHeaders:  []string{"*"},
		AllowOriginFunc: func(origin string) bool { return true },
		MaxAge:          300,
		Debug:           false,
	})
	r.Use(corsMiddleware.Handler)

	var credentials handlers.CredentialChecker
	if s.debrid != nil {
		credentials = s.debrid
	}
	var keepAliveStatus handlers.KeepAliveStatus
	if s.keepAlive != nil {
		keepAliveStatus = s.keepAlive
	}

	addonHandler := handlers.NewAddonHandler(s.catalog, s.resolver, s.config)
	healthHandler := handlers.NewHealthHandler(s.catalog, credentials, keepAliveStatus, s.version)
	sourcesHandler := handlers.NewSourcesHandler(s.catalog)
	landingHandler := handlers.NewLandingHandler(s.config, credentials)

	r.Get("/", landingHandler.ServeHTTP)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/healthz/liveness", healthHandler.HandleLiveness)

	r.Get("/sources", sourcesHandler.List)
	r.Post("/toggle-source", sourcesHandler.Toggle)

	addonHandler.Routes(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondError(w, http.StatusNotFound, "Not found")
	})

	return r, nil
}
