// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/airtimetoday/airtime/internal/domain"
)

var envPrefix = "AIRTIME__"

const (
	defaultPort            = 3000
	defaultCacheTTLMinutes = 14
	defaultMaxCatalogItems = 40
)

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	version string

	mu          sync.RWMutex
	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	// Environment variables take precedence over the file
	c.loadFromEnv()

	cfg, err := c.unmarshal()
	if err != nil {
		return nil, err
	}
	c.Config = cfg

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	host := "localhost"
	if detectContainer() {
		host = "0.0.0.0"
	}

	c.viper.SetDefault("host", host)
	c.viper.SetDefault("port", defaultPort)
	c.viper.SetDefault("baseUrl", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)

	c.viper.SetDefault("realDebridApiKey", "")

	c.viper.SetDefault("catalogId", "subsplease_today")
	c.viper.SetDefault("cacheTtlMinutes", defaultCacheTTLMinutes)
	c.viper.SetDefault("freshnessPolicy", "rolling")
	c.viper.SetDefault("includeYesterday", true)
	c.viper.SetDefault("maxCatalogItems", defaultMaxCatalogItems)
	c.viper.SetDefault("timezone", "")

	c.viper.SetDefault("posterTruncateWords", false)
	c.viper.SetDefault("posterAliases", map[string]string{})

	c.viper.SetDefault("keepAliveEnabled", true)
	c.viper.SetDefault("keepAliveIntervalMinutes", 10)
	c.viper.SetDefault("keepAliveInitialDelayMinutes", 5)

	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9075)
	c.viper.SetDefault("metricsBasicAuthUsers", "")

	c.viper.SetDefault("trackers", domain.DefaultTrackers())
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		if err := c.viper.ReadInConfig(); err != nil {
			// SetConfigFile reports a missing file as an *fs.PathError
			if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(".")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
			if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
				return err
			}
			c.viper.SetConfigFile(defaultConfigPath)
			if err := c.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read newly created config: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// Bind explicitly instead of AutomaticEnv so unrelated variables are ignored.
	// The unprefixed names are what hosted deployments usually provide.
	c.viper.BindEnv("host", envPrefix+"HOST")
	c.viper.BindEnv("port", envPrefix+"PORT", "PORT")
	c.viper.BindEnv("baseUrl", envPrefix+"BASE_URL", "RENDER_EXTERNAL_URL")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")

	c.bindOrReadFromFile("realDebridApiKey", envPrefix+"REAL_DEBRID_API_KEY", "REAL_DEBRID_API_KEY")

	c.viper.BindEnv("catalogId", envPrefix+"CATALOG_ID")
	c.viper.BindEnv("cacheTtlMinutes", envPrefix+"CACHE_TTL_MINUTES")
	c.viper.BindEnv("freshnessPolicy", envPrefix+"FRESHNESS_POLICY")
	c.viper.BindEnv("includeYesterday", envPrefix+"INCLUDE_YESTERDAY")
	c.viper.BindEnv("maxCatalogItems", envPrefix+"MAX_CATALOG_ITEMS")
	c.viper.BindEnv("timezone", envPrefix+"TIMEZONE")

	c.viper.BindEnv("posterTruncateWords", envPrefix+"POSTER_TRUNCATE_WORDS")

	c.viper.BindEnv("keepAliveEnabled", envPrefix+"KEEP_ALIVE_ENABLED")
	c.viper.BindEnv("keepAliveIntervalMinutes", envPrefix+"KEEP_ALIVE_INTERVAL_MINUTES")
	c.viper.BindEnv("keepAliveInitialDelayMinutes", envPrefix+"KEEP_ALIVE_INITIAL_DELAY_MINUTES")

	c.viper.BindEnv("metricsEnabled", envPrefix+"METRICS_ENABLED")
	c.viper.BindEnv("metricsHost", envPrefix+"METRICS_HOST")
	c.viper.BindEnv("metricsPort", envPrefix+"METRICS_PORT")
	c.viper.BindEnv("metricsBasicAuthUsers", envPrefix+"METRICS_BASIC_AUTH_USERS")
}

// bindOrReadFromFile prefers the contents of <first env>_FILE when it is set.
func (c *AppConfig) bindOrReadFromFile(viperVar string, envVars ...string) {
	if filePath := os.Getenv(envVars[0] + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read " + envVars[0] + "_FILE")
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
		return
	}
	c.viper.BindEnv(append([]string{viperVar}, envVars...)...)
}

func (c *AppConfig) unmarshal() (*domain.Config, error) {
	cfg := &domain.Config{}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Version = c.version
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *domain.Config) {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.RealDebridAPIKey = strings.TrimSpace(cfg.RealDebridAPIKey)

	if cfg.CacheTTLMinutes <= 0 {
		cfg.CacheTTLMinutes = defaultCacheTTLMinutes
	}
	if cfg.MaxCatalogItems < 0 {
		cfg.MaxCatalogItems = 0
	}
	if cfg.KeepAliveIntervalMinutes <= 0 {
		cfg.KeepAliveIntervalMinutes = 10
	}
	if cfg.KeepAliveInitialDelayMinutes < 0 {
		cfg.KeepAliveInitialDelayMinutes = 0
	}
	if strings.TrimSpace(cfg.CatalogID) == "" {
		cfg.CatalogID = "subsplease_today"
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = domain.DefaultSources()
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Pattern == "" {
			cfg.Sources[i].Pattern = defaultPatternFor(cfg.Sources[i].Group)
		}
	}
}

func defaultPatternFor(group string) string {
	switch strings.ToLower(group) {
	case "erai-raws":
		return domain.EraiRawsPattern
	case "subsplease", "":
		return domain.SubsPleasePattern
	default:
		return `^\[` + regexp.QuoteMeta(group) + `\]\s*(.+?)\s*-\s*(\d+(?:\.\d+)?)`
	}
}

// Validate rejects settings the server cannot start with.
func Validate(cfg *domain.Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MetricsEnabled && (cfg.MetricsPort <= 0 || cfg.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port %d", cfg.MetricsPort)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("baseUrl must be an absolute http(s) URL, got %q", cfg.BaseURL)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.FreshnessPolicy)) {
	case "", "rolling", "calendar":
	default:
		return fmt.Errorf("unknown freshnessPolicy %q", cfg.FreshnessPolicy)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	for _, src := range cfg.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source without name")
		}
		for _, feed := range src.Feeds {
			if _, err := url.ParseRequestURI(feed.URL); err != nil {
				return fmt.Errorf("source %q: invalid feed url %q", src.Name, feed.URL)
			}
		}
	}
	return nil
}

// SelfURL is the address the keep-alive pings: the public base URL when one
// is configured, otherwise the local listener.
func SelfURL(cfg *domain.Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}

	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		cfg, err := c.unmarshal()
		if err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration, keeping previous settings")
			return
		}

		c.mu.Lock()
		*c.Config = *cfg
		c.mu.Unlock()

		c.applyDynamicChanges()
	})
}

func (c *AppConfig) applyDynamicChanges() {
	c.ApplyLogConfig()
	c.notifyListeners()
}

// Snapshot returns a copy of the current configuration.
func (c *AppConfig) Snapshot() domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.Config
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := c.Snapshot()
	for _, listener := range listeners {
		listener(&copied)
	}
}

const configTemplate = `# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "localhost" (or "0.0.0.0" in containers)
host = "{{ .host }}"

# Port
# Default: {{ .port }}
# Env: AIRTIME__PORT or PORT
port = {{ .port }}

# Public URL of this addon, used for keep-alive pings and informational links.
# Derived from the request when empty.
# Env: AIRTIME__BASE_URL or RENDER_EXTERNAL_URL
#baseUrl = "https://airtime.example.com"

# Real-Debrid API token. Streams are only resolved when this is set.
# Env: AIRTIME__REAL_DEBRID_API_KEY, REAL_DEBRID_API_KEY or AIRTIME__REAL_DEBRID_API_KEY_FILE
#realDebridApiKey = ""

# Log file path
# If not defined, logs to stdout
#logPath = "log/airtime.log"

# Maximum log file size in megabytes before rotation
# Default: {{ .logMaxSize }}
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
# Default: {{ .logMaxBackups }}
#logMaxBackups = {{ .logMaxBackups }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Catalog id announced in the manifest
#catalogId = "subsplease_today"

# Minutes the release list is reused before feeds are read again
# Default: {{ .cacheTtlMinutes }}
#cacheTtlMinutes = {{ .cacheTtlMinutes }}

# "rolling" keeps releases from the last 24 hours,
# "calendar" keeps releases from the current day in the configured timezone.
#freshnessPolicy = "rolling"

# Append yesterday's releases below a section header
#includeYesterday = true

# Maximum catalog length (0 = no limit). Today's releases are never cut.
#maxCatalogItems = {{ .maxCatalogItems }}

# IANA timezone for the calendar policy. Empty uses the system zone.
#timezone = "Europe/Prague"

# Search Jikan with only the first two words of a show name
#posterTruncateWords = false

# Poster search aliases for names Jikan does not find
#[posterAliases]
#"Kimi to Idol PreCure" = "Wonderful Precure"

# Ping {baseUrl}/health so free hosting tiers do not suspend the service
#keepAliveEnabled = true
#keepAliveIntervalMinutes = 10
#keepAliveInitialDelayMinutes = 5

# Prometheus Metrics on a separate listener
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9075

# Basic authentication for metrics endpoint (optional)
# Format: "username:bcrypt_hash" or "user1:hash1,user2:hash2"
#metricsBasicAuthUsers = ""

# Trackers added to synthesized magnet links
#trackers = ["http://nyaa.tracker.wf:7777/announce"]

# Release sources. When no [[sources]] are declared the built-in
# SubsPlease (enabled) and Erai-raws (disabled) sources are used.
# A source without "enabled = true" starts disabled.
#[[sources]]
#name = "subsplease"
#group = "SubsPlease"
#enabled = true
#
#[[sources.feeds]]
#url = "https://subsplease.org/rss/?t&r=1080"
#quality = "1080p"
#
#[[sources.feeds]]
#url = "https://subsplease.org/rss/?t&r=720"
#quality = "720p"
`

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	data := map[string]any{
		"host":            c.viper.GetString("host"),
		"port":            c.viper.GetInt("port"),
		"logLevel":        c.viper.GetString("logLevel"),
		"logMaxSize":      c.viper.GetInt("logMaxSize"),
		"logMaxBackups":   c.viper.GetInt("logMaxBackups"),
		"cacheTtlMinutes": c.viper.GetInt("cacheTtlMinutes"),
		"maxCatalogItems": c.viper.GetInt("maxCatalogItems"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// Containers mount the config volume at /config
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, "airtime")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "airtime")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "airtime")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "airtime")
	}
}

func detectContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if _, err := os.Stat("/dev/.lxc-boot-id"); err == nil {
		return true
	}
	if os.Getpid() == 1 {
		return true
	}
	return false
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	cfg := c.Snapshot()
	setLogLevel(cfg.LogLevel)

	writer := baseLogWriter(c.version)

	if cfg.LogPath != "" {
		multiWriter, err := setupLogFile(cfg.LogPath, writer, cfg.LogMaxSize, cfg.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		return writer
	}
	return os.Stderr
}

// InitDefaultLogger configures zerolog before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath determines the actual config file path from the provided directory or file path
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	return GetDefaultConfigDir()
}

// WriteDefaultConfig writes the commented template to path unless a file exists there.
func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}
	c.defaults()

	return c.writeDefaultConfig(path)
}
