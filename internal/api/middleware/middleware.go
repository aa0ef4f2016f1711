// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var (
	RequestID = chimiddleware.RequestID
	Recoverer = chimiddleware.Recoverer
	RealIP    = chimiddleware.RealIP
)

// Logger logs one line per request. Stream requests can take several
// seconds while Real-Debrid is polled, so slow requests are logged at info.
func Logger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				took := time.Since(start)

				level := zerolog.DebugLevel
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					level = zerolog.ErrorLevel
				case took > 5*time.Second:
					level = zerolog.InfoLevel
				}

				logger.WithLevel(level).
					Str("request_id", chimiddleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("took", took).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
