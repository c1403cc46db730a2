// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/sonroyaalmerol/maobot/internal/autocomplete"
	"github.com/sonroyaalmerol/maobot/internal/cache"
	"github.com/sonroyaalmerol/maobot/internal/config"
	"github.com/sonroyaalmerol/maobot/internal/handlers"
	"github.com/sonroyaalmerol/maobot/internal/logger"
	"github.com/sonroyaalmerol/maobot/internal/player"
	"github.com/sonroyaalmerol/maobot/internal/repository"
	"github.com/sonroyaalmerol/maobot/internal/resolve"
	"github.com/sonroyaalmerol/maobot/internal/spotify"
	"github.com/sonroyaalmerol/maobot/internal/stream"
	"github.com/sonroyaalmerol/maobot/internal/voice"
)

var (
	app        = kingpin.New("maobot", "Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The logger is not set up yet.
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.Config{Output: cfg.Log.Output, Level: cfg.Log.Level}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = *logfile
	}
	if err := logger.Init(logCfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if err := run(cfg); err != nil {
		zlog.Error().Err(err).Msg("bot error")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := repository.OpenDB(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := repository.NewRepo(db)

	if n, err := repo.CatalogPrune(ctx, cfg.Storage.CatalogCacheTTL); err != nil {
		zlog.Warn().Err(err).Msg("prune catalog cache")
	} else if n > 0 {
		zlog.Debug().Int64("entries", n).Msg("pruned catalog cache")
	}

	video := stream.NewBackend(stream.Options{
		CookiesPath:  cfg.Resolver.CookiesPath,
		POToken:      cfg.Resolver.POToken,
		SearchSource: cfg.Resolver.SearchSource,
	})

	var (
		catalog resolve.CatalogBackend
		sp      *spotify.Client
	)
	if cfg.Spotify.Enabled() {
		sp = spotify.NewClientCredentials(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.Market)
		catalog = cache.NewCatalogCache(sp, repo, cfg.Storage.CatalogCacheTTL)
		zlog.Info().Str("market", cfg.Spotify.Market).Msg("spotify links enabled")
	}

	resolver := resolve.New(video, catalog, resolve.Options{
		Workers:       cfg.Resolver.Workers,
		Timeout:       cfg.Resolver.Timeout,
		Rate:          cfg.Resolver.Rate,
		Burst:         cfg.Resolver.Burst,
		SearchResults: cfg.Resolver.SearchResults,
	})
	defer resolver.Close()

	defaults := player.Settings{
		PlaylistLimit:  cfg.Player.PlaylistLimit,
		IdleDisconnect: cfg.Player.IdleDisconnect,
		AnnounceNext:   true,
	}
	settings := handlers.NewSettingsStore(repo, defaults)

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return errors.Wrap(err, "create discord session")
	}

	pm := player.NewManager(ctx, player.Deps{
		Resolver:  resolver,
		Connector: voice.NewConnector(dg, cfg.Player.Bitrate),
		Settings:  settings,
		Options: player.Options{
			StreamTTL: cfg.Player.StreamTTL,
			Defaults:  defaults,
		},
	})

	var searcher autocomplete.SpotifySearcher
	if sp != nil {
		searcher = sp
	}

	bot := handlers.NewBot(ctx, cfg, dg, handlers.Deps{
		Manager:  pm,
		Importer: player.NewImporter(resolver, cfg.Player.BatchSize, cfg.Player.ProgressEvery),
		Search:   resolver,
		Settings: settings,
		Suggest:  autocomplete.New(searcher),
	})

	zlog.Info().Str("dataDir", cfg.Storage.DataDir).Msg("starting bot")
	return bot.Run(ctx)
}
