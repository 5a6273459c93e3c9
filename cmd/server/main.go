// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/oyama27/vinylog/internal/api"
	"github.com/oyama27/vinylog/internal/app/auth"
	"github.com/oyama27/vinylog/internal/app/scrobble"
	"github.com/oyama27/vinylog/internal/app/session"
	"github.com/oyama27/vinylog/internal/infra/config"
	"github.com/oyama27/vinylog/internal/infra/discogs"
	"github.com/oyama27/vinylog/internal/infra/lastfm"
	"github.com/oyama27/vinylog/internal/infra/logger"
	"github.com/oyama27/vinylog/internal/infra/store"
)

var (
	app        = kingpin.New("vinylog-server", "vinylog playback session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("loading config: path=%s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("server error: %v", err)
		os.Exit(1)
	}
}

// run wires the service and serves until a signal or server failure.
// A separate function ensures defers run before the exit code is decided.
func run(cfg *config.Config) error {
	st, err := store.New(cfg.Store.Backend, cfg.Store.Settings)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Error().Msgf("store close failed: error=%v", err)
		}
	}()

	// The Last.fm client only exists when credentials are configured.
	// Without it the auth flows report CONFIG_ERROR and sessions cannot
	// start, but the server still serves catalog and status routes.
	var lastfmClient *lastfm.Client
	if cfg.LastfmConfigured() {
		lastfmClient, err = lastfm.New(lastfm.Config{
			APIKey:       cfg.Lastfm.APIKey,
			SharedSecret: cfg.Lastfm.SharedSecret,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create last.fm client")
		}
	} else {
		zlog.Warn().Msg("last.fm credentials not configured, scrobbling disabled")
	}

	discogsClient, err := discogs.New(discogs.Config{
		ConsumerKey:       cfg.Discogs.ConsumerKey,
		ConsumerSecret:    cfg.Discogs.ConsumerSecret,
		UserAgent:         cfg.Discogs.UserAgent,
		RequestsPerMinute: cfg.Discogs.RequestsPerMinute,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create discogs client")
	}

	var lastfmFlows auth.LastfmClient
	var lastfmReports scrobble.LastfmClient
	if lastfmClient != nil {
		lastfmFlows = lastfmClient
		lastfmReports = lastfmClient
	}

	authMgr := auth.NewManager(auth.Config{
		LastfmCallbackURL:  cfg.Lastfm.CallbackURL,
		DiscogsCallbackURL: cfg.Discogs.CallbackURL,
		StateTTL:           cfg.StateTTL(),
	}, st, lastfmFlows, discogsClient)

	engine := session.NewEngine(
		session.NewRepo(st, cfg.SessionTTL()),
		discogsClient,
		authMgr,
		scrobble.New(lastfmReports),
	)

	handler := api.NewHandler(engine, authMgr, discogsClient, api.Config{
		AppOrigin: cfg.Server.AppOrigin,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("received shutdown signal: %s", sig)
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("server shutdown failed: error=%v", err)
	}

	zlog.Info().Msg("server stopped")
	return nil
}
