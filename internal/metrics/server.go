// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// MetricsServer exposes /metrics on its own listener.
type MetricsServer struct {
	server *http.Server
	users  map[string][]byte
}

// NewMetricsServer builds the server. basicAuthUsers is a comma separated
// list of user:bcrypt_hash pairs; empty disables authentication.
func NewMetricsServer(host string, port int, basicAuthUsers string) *MetricsServer {
	s := &MetricsServer{
		users: ParseBasicAuthUsers(basicAuthUsers),
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *MetricsServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(s.users) > 0 {
		r.Use(s.basicAuth)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *MetricsServer) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Bool("auth", len(s.users) > 0).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *MetricsServer) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			if hash, found := s.users[user]; found && bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// ParseBasicAuthUsers reads "user:hash,user2:hash2". Malformed pairs are skipped.
func ParseBasicAuthUsers(list string) map[string][]byte {
	users := make(map[string][]byte)
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		user, hash, ok := strings.Cut(pair, ":")
		if !ok || user == "" || hash == "" {
			log.Warn().Msg("Ignoring malformed metrics basic auth entry")
			continue
		}
		users[user] = []byte(hash)
	}
	return users
}
