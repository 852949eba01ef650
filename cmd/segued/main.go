// Package main provides the playback daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/segue/internal/api/connect"
	"github.com/osa030/segue/internal/app/nowplaying"
	"github.com/osa030/segue/internal/app/playback"
	"github.com/osa030/segue/internal/app/stream"
	"github.com/osa030/segue/internal/app/transport"
	"github.com/osa030/segue/internal/app/transport/clock"
	"github.com/osa030/segue/internal/domain/queue"
	"github.com/osa030/segue/internal/infra/audio"
	"github.com/osa030/segue/internal/infra/config"
	"github.com/osa030/segue/internal/infra/logger"
	"github.com/osa030/segue/internal/infra/mqtt"
	"github.com/osa030/segue/internal/infra/offline"
	"github.com/osa030/segue/internal/infra/spotify"
	"github.com/osa030/segue/internal/infra/streamapi"
)

var (
	app        = kingpin.New("segued", "segue gapless playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/segued.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-resolvers command
	listResolversCmd = app.Command("list-resolvers", "List available resolver types and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listResolversCmd.FullCommand() {
		printResolvers()
		return
	}

	// Logging starts on stdout so config errors are visible, then follows the config.
	if err := logger.Init(logger.Config{Output: "stdout", Level: levelFlag("info")}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  levelFlag(cfg.Log.Level),
		File:   cfg.Log.File,
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

func levelFlag(level string) string {
	if *verbose {
		return "debug"
	}
	return level
}

// registry returns the resolver constructors known to the daemon.
func registry(ctx context.Context, cfg *config.Config) stream.Registry {
	return stream.Registry{
		"offline":   offline.NewFromSettings,
		"streamapi": streamapi.NewFromSettings,
		"spotify": spotify.NewConstructor(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		}),
	}
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources, err := stream.NewSourcesFromConfig(cfg.Resolvers, registry(ctx, cfg))
	if err != nil {
		return errors.Wrap(err, "failed to create resolvers")
	}
	defer func() {
		if err := sources.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close resolvers: %v", err)
		}
	}()

	tr, err := newTransport(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create transport")
	}
	defer func() {
		if err := tr.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close transport: %v", err)
		}
	}()

	hub := nowplaying.NewHub()
	defer hub.Close()

	reporters := nowplaying.Multi{hub, nowplaying.NewLogReporter()}
	if cfg.NowPlaying.MQTT.Enabled {
		m := cfg.NowPlaying.MQTT
		publisher, err := mqtt.Dial(mqtt.Config{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      byte(m.QoS),
			Username: m.Username,
			Password: m.Password,
		})
		if err != nil {
			return errors.Wrap(err, "failed to connect to MQTT broker")
		}
		defer publisher.Close()
		reporters = append(reporters, publisher)
		zlog.Info().Msgf("Publishing now-playing to MQTT: broker=%s topic=%s", m.Broker, m.Topic)
	}

	engine := playback.New(queue.New(nil), tr, sources.Resolver, reporters,
		playback.ConfigFrom(cfg.Playback, cfg.Retry))
	defer engine.Close()

	// Create RPC service
	controlService := apiconnect.NewControlService(engine, sources.Catalog, hub)

	mux := http.NewServeMux()
	controlPath, controlHandler := apiconnect.NewControlServiceHandler(
		controlService,
		connect.WithInterceptors(apiconnect.NewAuthInterceptor(cfg.Server.Token)),
	)
	mux.Handle(controlPath, controlHandler)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s transport=%s", cfg.Server.Addr, cfg.Transport.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Close the hub first to end subscription streams
	hub.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Daemon stopped")
	return nil
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Type {
	case "audio":
		if !audio.Available {
			return nil, audio.ErrUnavailable
		}
		return audio.New(audio.Config{
			SampleRate:   cfg.Transport.SampleRate,
			Buffer:       time.Duration(cfg.Transport.BufferMs) * time.Millisecond,
			TimeInterval: cfg.Playback.TimeInterval(),
		})
	default:
		return clock.New(clock.Config{
			TimeInterval: cfg.Playback.TimeInterval(),
		}), nil
	}
}

// printResolvers prints available resolver types.
func printResolvers() {
	descriptions := map[string]string{
		"offline":   "Local files indexed from JSON sidecars (offline sources, catalog)",
		"streamapi": "HTTP stream API (remote sources, catalog)",
		"spotify":   "Spotify Web API (catalog, playlists; preview clips with previews: true)",
	}
	names := make([]string, 0, len(descriptions))
	for name := range descriptions {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Resolvers:")
	for _, name := range names {
		fmt.Printf("  %-12s - %s\n", name, descriptions[name])
	}
	fmt.Printf("\nAudio output: %v\n", audio.Available)
}
