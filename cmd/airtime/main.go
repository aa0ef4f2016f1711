// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/airtimetoday/airtime/internal/api"
	"github.com/airtimetoday/airtime/internal/buildinfo"
	"github.com/airtimetoday/airtime/internal/config"
	"github.com/airtimetoday/airtime/internal/domain"
	"github.com/airtimetoday/airtime/internal/metrics"
	"github.com/airtimetoday/airtime/internal/services/catalog"
	"github.com/airtimetoday/airtime/internal/services/debrid"
	"github.com/airtimetoday/airtime/internal/services/feeds"
	"github.com/airtimetoday/airtime/internal/services/keepalive"
	"github.com/airtimetoday/airtime/internal/services/magnet"
	"github.com/airtimetoday/airtime/internal/services/posters"
	"github.com/airtimetoday/airtime/internal/services/streams"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "airtime",
		Short: "Stremio addon for anime episodes released today",
		Long: `airtime - A Stremio addon that lists anime episodes released in the
last day and resolves them to Real-Debrid streams.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var (
		configDir string
		logPath   string
	)

	var command = &cobra.Command{
		Use:   "serve",
		Short: "Start the addon server",
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/airtime/ or %APPDATA%\\airtime\\). Can also be a direct path to a .toml file")
	command.Flags().StringVar(&logPath, "log-path", "", "log file path (default is stdout)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		app := NewApplication(configDir, logPath)
		return app.runServer()
	}

	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of airtime",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
			if buildinfo.Commit != "" {
				fmt.Printf("commit: %s\n", buildinfo.Commit)
			}
			if buildinfo.Date != "" {
				fmt.Printf("built: %s\n", buildinfo.Date)
			}
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/airtime/config.toml
- Windows: %APPDATA%\airtime\config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return errors.Wrap(err, "failed to create configuration file")
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

// newDebridClient shares the process transport; each call is still bounded
// by the client's own timeout.
func newDebridClient(apiKey string, httpClient *http.Client, opts ...debrid.ClientOption) *debrid.Client {
	base := []debrid.ClientOption{
		debrid.WithHTTPClient(httpClient),
		debrid.WithTimeout(debrid.DefaultTimeout),
	}
	return debrid.NewClient(apiKey, append(base, opts...)...)
}

type Application struct {
	configDir string
	logPath   string
}

func NewApplication(configDir, logPath string) *Application {
	return &Application{
		configDir: configDir,
		logPath:   logPath,
	}
}

func (app *Application) runServer() error {
	cfg, err := config.New(app.configDir, buildinfo.Version)
	if err != nil {
		return errors.Wrap(err, "failed to initialize configuration")
	}

	if app.logPath != "" {
		os.Setenv("AIRTIME__LOG_PATH", app.logPath)
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()

	current := cfg.Snapshot()

	log.Info().Str("version", buildinfo.Version).Msg("Starting airtime")

	catalogCfg, err := catalog.ConfigFromDomain(&current)
	if err != nil {
		return errors.Wrap(err, "invalid catalog configuration")
	}

	httpClient := &http.Client{}

	posterCfg := posters.DefaultConfig()
	posterCfg.Aliases = current.PosterAliases
	posterCfg.TruncateWords = current.PosterTruncateWords
	posterService := posters.NewService(posterCfg, httpClient)

	catalogService, err := catalog.NewService(catalogCfg, feeds.NewFetcher(httpClient, feeds.DefaultFetchTimeout), posterService)
	if err != nil {
		return errors.Wrap(err, "failed to initialize catalog")
	}

	debridClient := newDebridClient(current.RealDebridAPIKey, httpClient)
	if !debridClient.HasAPIKey() {
		log.Warn().Msg("No Real-Debrid API key configured - streams will not resolve")
	}

	magnetBuilder := magnet.NewBuilder(magnet.Config{Trackers: current.Trackers}, httpClient)
	resolver := streams.NewResolver(magnetBuilder, debridClient, debrid.NewPoller(debridClient, debrid.DefaultPollerConfig()))

	cfg.RegisterReloadListener(func(updated *domain.Config) {
		debridClient.SetAPIKey(updated.RealDebridAPIKey)

		next, err := catalog.ConfigFromDomain(updated)
		if err != nil {
			log.Error().Err(err).Msg("Ignoring reloaded catalog configuration")
			return
		}
		if err := catalogService.Reconfigure(next); err != nil {
			log.Error().Err(err).Msg("Ignoring reloaded catalog configuration")
			return
		}
		log.Info().Int("sources", len(next.Sources)).Msg("Catalog configuration reloaded")
	})

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var keepAliveService *keepalive.Service
	if current.KeepAliveEnabled {
		kaCfg := keepalive.DefaultConfig()
		kaCfg.BaseURL = config.SelfURL(&current)
		kaCfg.Interval = time.Duration(current.KeepAliveIntervalMinutes) * time.Minute
		kaCfg.InitialDelay = time.Duration(current.KeepAliveInitialDelayMinutes) * time.Minute
		keepAliveService = keepalive.NewService(kaCfg, httpClient)
	}

	httpServer := api.NewServer(&api.Dependencies{
		Config:    cfg,
		Version:   buildinfo.Version,
		Catalog:   catalogService,
		Resolver:  resolver,
		Debrid:    debridClient,
		KeepAlive: keepAliveService,
	})

	errorChannel := make(chan error, 2)
	serverReady := make(chan struct{}, 1)
	go func() {
		if err := httpServer.ListenAndServeReady(serverReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorChannel <- err
		}
	}()

	select {
	case <-serverReady:
		if keepAliveService != nil {
			keepAliveService.Start(backgroundCtx)
		}
	case err := <-errorChannel:
		return errors.Wrap(err, "failed to start HTTP server")
	}

	var metricsServer *metrics.MetricsServer
	if current.MetricsEnabled {
		metricsServer = metrics.NewMetricsServer(current.MetricsHost, current.MetricsPort, current.MetricsBasicAuthUsers)

		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errorChannel <- errors.Wrap(err, "metrics server")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Msgf("got signal %v, shutting down server", sig.String())
	case err := <-errorChannel:
		log.Error().Err(err).Msg("got unexpected error from server")
	}

	stopBackground()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("got error during metrics server shutdown")
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "got error during graceful http shutdown")
	}

	if keepAliveService != nil {
		select {
		case <-keepAliveService.Done():
		case <-ctx.Done():
		}
	}

	log.Info().Msg("Server stopped")
	return nil
}
