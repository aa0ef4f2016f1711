// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParseBasicAuthUsers(t *testing.T) {
	users := ParseBasicAuthUsers(" prometheus:$2y$10$abc , broken, :nouser, grafana:$2y$10$def")

	require.Len(t, users, 2)
	assert.Equal(t, []byte("$2y$10$abc"), users["prometheus"])
	assert.Equal(t, []byte("$2y$10$def"), users["grafana"])
	assert.Empty(t, ParseBasicAuthUsers(""))
}

func TestMetricsEndpointAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	FeedFetches.WithLabelValues("subsplease", "ok").Inc()

	tests := []struct {
		name   string
		users  string
		user   string
		pass   string
		status int
	}{
		{name: "open", users: "", status: http.StatusOK},
		{name: "valid credentials", users: "prom:" + string(hash), user: "prom", pass: "secret", status: http.StatusOK},
		{name: "wrong password", users: "prom:" + string(hash), user: "prom", pass: "nope", status: http.StatusUnauthorized},
		{name: "missing credentials", users: "prom:" + string(hash), status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewMetricsServer("127.0.0.1", 0, tt.users)

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), "airtime_feed_fetches_total")
			}
		})
	}
}
