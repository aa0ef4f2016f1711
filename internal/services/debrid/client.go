// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package debrid talks to the Real-Debrid REST API.
package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtimetoday/airtime/internal/buildinfo"
)

const (
	DefaultBaseURL = "https://api.real-debrid.com/rest/1.0"
	DefaultTimeout = 15 * time.Second

	maxErrorBodyBytes    = 2048
	maxResponseBodyBytes = 4 << 20
)

// ErrNoAPIKey is returned by every call while no API key is configured.
var ErrNoAPIKey = errors.New("real-debrid API key not configured")

// APIError is a non-2xx answer from Real-Debrid.
type APIError struct {
	StatusCode int
	Op         string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("real-debrid %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("real-debrid %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// TorrentInfo is the subset of /torrents/info used for polling.
type TorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Files    []File   `json:"files,omitempty"`
	Links    []string `json:"links,omitempty"`
}

type File struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	log        zerolog.Logger

	mu     sync.RWMutex
	apiKey string
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the transport. The per-call timeout still applies.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout bounds every API call.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		apiKey:     strings.TrimSpace(apiKey),
		log:        log.With().Str("module", "debrid").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPIKey replaces the credential, e.g. after a config reload.
func (c *Client) SetAPIKey(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(apiKey)
}

func (c *Client) HasAPIKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// AddMagnet submits a magnet link and returns the torrent id.
func (c *Client) AddMagnet(ctx context.Context, magnetURI string) (string, error) {
	magnetURI = strings.TrimSpace(magnetURI)
	if magnetURI == "" {
		return "", errors.New("magnet URI is required")
	}

	form := url.Values{}
	form.Set("magnet", magnetURI)

	var result struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", form, "add magnet", &result); err != nil {
		return "", err
	}

	return result.ID, nil
}

func (c *Client) GetTorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	torrentID = strings.TrimSpace(torrentID)
	if torrentID == "" {
		return nil, errors.New("torrent id is required")
	}

	var info TorrentInfo
	if err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(torrentID), nil, "torrent info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SelectFiles takes "all" or a comma separated list of file ids.
func (c *Client) SelectFiles(ctx context.Context, torrentID string, files string) error {
	torrentID = strings.TrimSpace(torrentID)
	if torrentID == "" {
		return errors.New("torrent id is required")
	}
	if files == "" {
		files = "all"
	}

	form := url.Values{}
	form.Set("files", files)

	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(torrentID), form, "select files", nil)
}

// UnrestrictLink converts a hoster link into a direct download URL.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", errors.New("link is required")
	}

	form := url.Values{}
	form.Set("link", link)

	var result struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
		Link     string `json:"link"`
		Download string `json:"download"`
	}
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", form, "unrestrict", &result); err != nil {
		return "", err
	}

	if result.Download != "" {
		return result.Download, nil
	}
	return result.Link, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, op string, out any) error {
	apiKey := c.key()
	if apiKey == "" {
		return ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{StatusCode: resp.StatusCode, Op: op, Message: strings.TrimSpace(string(raw))}

		var parsed errorResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			apiErr.Message = parsed.Error
		}

		c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Str("message", apiErr.Message).Msg("Real-Debrid request rejected")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
