// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config is the unmarshalled form of config.toml plus environment overrides.
type Config struct {
	Version string `toml:"-" mapstructure:"-"`

	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`

	RealDebridAPIKey string `toml:"realDebridApiKey" mapstructure:"realDebridApiKey"`

	CatalogID        string `toml:"catalogId" mapstructure:"catalogId"`
	CacheTTLMinutes  int    `toml:"cacheTtlMinutes" mapstructure:"cacheTtlMinutes"`
	FreshnessPolicy  string `toml:"freshnessPolicy" mapstructure:"freshnessPolicy"`
	IncludeYesterday bool   `toml:"includeYesterday" mapstructure:"includeYesterday"`
	MaxCatalogItems  int    `toml:"maxCatalogItems" mapstructure:"maxCatalogItems"`
	Timezone         string `toml:"timezone" mapstructure:"timezone"`

	PosterTruncateWords bool              `toml:"posterTruncateWords" mapstructure:"posterTruncateWords"`
	PosterAliases       map[string]string `toml:"posterAliases" mapstructure:"posterAliases"`

	KeepAliveEnabled             bool `toml:"keepAliveEnabled" mapstructure:"keepAliveEnabled"`
	KeepAliveIntervalMinutes     int  `toml:"keepAliveIntervalMinutes" mapstructure:"keepAliveIntervalMinutes"`
	KeepAliveInitialDelayMinutes int  `toml:"keepAliveInitialDelayMinutes" mapstructure:"keepAliveInitialDelayMinutes"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	Trackers []string       `toml:"trackers" mapstructure:"trackers"`
	Sources  []SourceConfig `toml:"sources" mapstructure:"sources"`
}

// SourceConfig describes one release group and the feeds it publishes.
type SourceConfig struct {
	// Name prefixes release ids, so it must not contain ':'.
	Name    string `toml:"name" mapstructure:"name"`
	Group   string `toml:"group" mapstructure:"group"`
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	// Pattern needs two capture groups: show name and episode.
	Pattern string       `toml:"pattern" mapstructure:"pattern"`
	Feeds   []FeedConfig `toml:"feeds" mapstructure:"feeds"`
}

// FeedConfig is one RSS endpoint. An empty Quality means the label is
// derived from each item title.
type FeedConfig struct {
	URL     string `toml:"url" mapstructure:"url"`
	Quality string `toml:"quality" mapstructure:"quality"`
}

const (
	SubsPleasePattern = `^\[SubsPlease\]\s*(.+?)\s*-\s*(\d+(?:\.\d+)?)`
	EraiRawsPattern   = `^\[Erai-raws\]\s*(.+?)\s*-\s*(\d+(?:\.\d+)?)`
)

// DefaultTrackers are appended to synthesized magnet links.
func DefaultTrackers() []string {
	return []string{"http://nyaa.tracker.wf:7777/announce"}
}

// DefaultSources is used when the config file declares no [[sources]].
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:    "subsplease",
			Group:   "SubsPlease",
			Enabled: true,
			Pattern: SubsPleasePattern,
			Feeds: []FeedConfig{
				{URL: "https://subsplease.org/rss/?t&r=1080", Quality: "1080p"},
				{URL: "https://subsplease.org/rss/?t&r=720", Quality: "720p"},
			},
		},
		{
			Name:    "erai",
			Group:   "Erai-raws",
			Enabled: false,
			Pattern: EraiRawsPattern,
			Feeds: []FeedConfig{
				{URL: "https://nyaa.si/?page=rss&u=Erai-raws&q=1080p&c=1_2&f=0", Quality: "1080p"},
			},
		},
	}
}
