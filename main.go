// ABOUTME: Entry point for the hub remote
// ABOUTME: Parses flags, wires the coordinator and runs the TUI or streaming logs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sendspin/hubremote/internal/app"
	"github.com/Sendspin/hubremote/internal/artwork"
	"github.com/Sendspin/hubremote/internal/config"
	"github.com/Sendspin/hubremote/internal/discovery"
	"github.com/Sendspin/hubremote/internal/netwatch"
	"github.com/Sendspin/hubremote/internal/nowplaying"
	"github.com/Sendspin/hubremote/internal/player"
	"github.com/Sendspin/hubremote/internal/secrets"
	"github.com/Sendspin/hubremote/internal/stream"
	"github.com/Sendspin/hubremote/internal/ui"
	"github.com/Sendspin/hubremote/internal/version"
	"github.com/Sendspin/hubremote/pkg/audio/output"
	"github.com/Sendspin/hubremote/pkg/protocol"
	"github.com/sirupsen/logrus"
)

var (
	configPath   = flag.String("config", config.DefaultPath(), "Config file path")
	serverAddr   = flag.String("server", "", "Hub address, saved to the config (skips mDNS)")
	token        = flag.String("token", "", "Auth token to store before starting")
	username     = flag.String("user", "", "Sign in with this username (password from HUBREMOTE_PASSWORD)")
	authProvider = flag.String("auth-provider", "builtin", "Login provider used with -user")
	logLevel     = flag.String("log-level", "", "Override the configured log level")
	noTUI        = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs   = flag.Bool("stream-logs", false, "Alias for -no-tui")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if err := run(); err != nil {
		logrus.WithError(err).Error("Exiting")
		fmt.Fprintf(os.Stderr, "hubremote: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	useTUI := !(*noTUI || *streamLogs)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// TUI mode logs only to the file, streaming mode also to stdout
	logger := logrus.StandardLogger()
	logCloser, err := config.SetupLogger(logger, cfg.Logging, !useTUI)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.WithFields(logrus.Fields{
		"version": version.Version,
		"config":  *configPath,
	}).Info("Starting hub remote")

	settings := config.NewSettings(*configPath, cfg)
	if *serverAddr != "" {
		url, err := protocol.NormalizeBaseURL(*serverAddr)
		if err != nil {
			return err
		}
		if err := settings.SetServerURL(url); err != nil {
			return err
		}
	}

	secretStore, err := secrets.NewFileStore(config.SecretsDir(*configPath))
	if err != nil {
		return err
	}
	tokens := secrets.NewTokenStore(secretStore)
	if *token != "" {
		if err := tokens.SetToken(*token); err != nil {
			return err
		}
	}

	if settings.ServerURL() == "" && cfg.Discovery.Enabled {
		discoverServer(settings, cfg.Discovery, logger)
	}

	// Closures below read the model after it is built
	var model *app.Model
	endpoint := func() protocol.Endpoint { return model.Endpoint() }
	bearer := func() string { return endpoint().Token }

	rpcClient := &http.Client{Timeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second}
	connect := func(ep protocol.Endpoint) protocol.Conn {
		pc := protocol.Config{Endpoint: ep, HTTPClient: rpcClient, Logger: logger}
		if cfg.Server.Transport == config.TransportWebsocket {
			return protocol.NewWSClient(pc)
		}
		return protocol.NewHTTPClient(pc)
	}

	out := output.NewOto(logger)
	engine := player.NewEngine(player.Config{
		Output: out,
		Loader: player.NewHTTPLoader(nil, bearer, logger),
		Logger: logger,
	})
	defer engine.Close()

	resolver := stream.NewResolver(stream.Config{
		Endpoint:     endpoint,
		ProbeTimeout: time.Duration(cfg.Player.ProbeTimeoutSeconds) * time.Second,
		Logger:       logger,
	})

	art, err := artwork.New(artwork.Config{
		Dir:      cfg.Artwork.CacheDir,
		Capacity: cfg.Artwork.Capacity,
		Token:    bearer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer art.Cleanup()

	surface := mediaSurface(cfg.Player.MediaControls, logger)
	defer surface.Close()

	bridge := nowplaying.NewBridge(nowplaying.Config{
		Surface: surface,
		Artwork: art,
		BaseURL: func() string { return endpoint().BaseURL },
		Logger:  logger,
	})

	model = app.NewModel(app.Config{
		Settings:     settings,
		Tokens:       tokens,
		Connect:      connect,
		Engine:       engine,
		Resolver:     resolver,
		NowPlaying:   bridge,
		PollInterval: time.Duration(cfg.Server.PollIntervalMs) * time.Millisecond,
		LocalName:    cfg.Player.Name,
		Logger:       logger,
	})
	model.Start()
	defer model.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *username != "" {
		signIn(ctx, model, logger)
	}

	watcher, err := config.NewWatcher(*configPath, func(next *config.Config) {
		settings.Reload(next)
		if lvl, err := logrus.ParseLevel(next.Logging.Level); err == nil && *logLevel == "" {
			logger.SetLevel(lvl)
		}
		if err := model.SetServerURL(next.Server.URL); err != nil {
			logger.WithError(err).Warn("Ignoring server address from config")
		}
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else {
		defer watcher.Close()
	}

	netWatcher := netwatch.New(netwatch.Config{
		OnChange: func() {
			if err := model.NetworkChanged(ctx); err != nil {
				logger.WithError(err).Debug("Resync after network change failed")
			}
		},
		Logger: logger,
	})
	if err := netWatcher.Start(); err != nil {
		logger.WithError(err).Info("Network change detection unavailable")
	} else {
		defer netWatcher.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	stopLifecycle := watchLifecycle(ctx, model, logger)
	defer stopLifecycle()

	if !useTUI {
		dispose := model.Subscribe(logState(logger))
		defer dispose()

		<-sigChan
		logger.Info("Shutdown signal received")
		return nil
	}

	tui := ui.New(model, model.State())
	dispose := model.Subscribe(tui.Update)
	defer dispose()

	tuiErr := make(chan error, 1)
	go func() { tuiErr <- tui.Start() }()

	select {
	case <-tui.QuitChan():
		logger.Info("Received quit signal from TUI")
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-tuiErr:
		if err != nil {
			return fmt.Errorf("tui: %w", err)
		}
	}
	tui.Stop()
	return nil
}

// discoverServer looks for a hub on the local network and saves the first one found
func discoverServer(settings *config.Settings, dc config.DiscoveryConfig, logger logrus.FieldLogger) {
	logger.Info("No hub configured, starting discovery")

	browser := discovery.NewBrowser(discovery.Config{Logger: logger})
	defer browser.Stop()

	srv, err := browser.First(context.Background(), time.Duration(dc.TimeoutSeconds)*time.Second)
	if err != nil {
		logger.WithError(err).Warn("Hub discovery failed, set server.url in the config")
		return
	}

	logger.WithFields(logrus.Fields{
		"name":     srv.Name,
		"base_url": srv.BaseURL,
	}).Info("Using discovered hub")
	if err := settings.SetServerURL(srv.BaseURL); err != nil {
		logger.WithError(err).Warn("Failed to save discovered hub")
	}
}

// mediaSurface returns the MPRIS surface, or a no-op one when disabled or unavailable
func mediaSurface(enabled bool, logger logrus.FieldLogger) nowplaying.Surface {
	if !enabled {
		return nowplaying.NopSurface{}
	}
	m, err := nowplaying.NewMPRIS(logger)
	if err != nil {
		logger.WithError(err).Info("Media controls unavailable")
		return nowplaying.NopSurface{}
	}
	return m
}

func signIn(ctx context.Context, model *app.Model, logger logrus.FieldLogger) {
	password := os.Getenv("HUBREMOTE_PASSWORD")
	if password == "" {
		logger.Warn("HUBREMOTE_PASSWORD is empty, attempting sign-in anyway")
	}

	err := model.SignIn(ctx, *authProvider, *username, password)
	switch {
	case errors.Is(err, app.ErrLoginFailed):
		logger.WithError(err).Error("Sign-in rejected")
	case err != nil:
		logger.WithError(err).Error("Sign-in failed")
	default:
		logger.WithField("user", *username).Info("Signed in")
	}
}

// logState reports connection changes and track changes in streaming mode
func logState(logger logrus.FieldLogger) func(app.State) {
	var lastConn app.ConnectionState
	var lastItem string

	return func(st app.State) {
		if st.Connection != lastConn {
			lastConn = st.Connection
			entry := logger.WithField("state", st.Connection)
			if st.LastError != nil {
				entry = entry.WithError(st.LastError)
			}
			entry.Info("Connection state changed")
		}

		q := st.ActiveQueue
		if q == nil || q.CurrentItem == nil {
			lastItem = ""
			return
		}
		if q.CurrentItem.QueueItemID != lastItem {
			lastItem = q.CurrentItem.QueueItemID
			logger.WithFields(logrus.Fields{
				"player": st.SelectedPlayerID,
				"track":  q.CurrentItem.Name,
			}).Info("Now playing")
		}
	}
}
