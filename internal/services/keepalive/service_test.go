// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingRecordsOutcome(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if fail.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL + "/"}, srv.Client())

	require.NoError(t, svc.Ping(context.Background()))
	status := svc.Status()
	assert.True(t, status.Enabled)
	assert.Equal(t, OutcomeSucceeded, status.Outcome)
	assert.Equal(t, 1, status.Pings)

	fail.Store(true)
	require.Error(t, svc.Ping(context.Background()))
	status = svc.Status()
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Contains(t, status.Error, "503")
	assert.Equal(t, 2, status.Pings)
}

func TestLoopPingsUntilCancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	svc := NewService(Config{
		BaseURL:      srv.URL,
		InitialDelay: 0,
		Interval:     10 * time.Millisecond,
		Timeout:      time.Second,
	}, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	require.Eventually(t, func() bool { return hits.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("keep-alive loop did not stop")
	}
}

func TestStartWithoutBaseURLIsNoop(t *testing.T) {
	svc := NewService(Config{}, nil)
	svc.Start(context.Background())

	assert.False(t, svc.Status().Enabled)
	assert.Zero(t, svc.Status().Pings)

	select {
	case <-svc.Done():
	default:
		t.Fatal("Done should be closed when no loop was started")
	}
}

func TestPingTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	svc := NewService(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, srv.Client())
	err := svc.Ping(context.Background())

	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, svc.Status().Outcome)
}

func TestBaseURLFixedAtConstruction(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL}
	svc := NewService(cfg, srv.Client())
	cfg.BaseURL = "http://127.0.0.1:1"

	require.NoError(t, svc.Ping(context.Background()))
	assert.EqualValues(t, 1, hits.Load())
}
