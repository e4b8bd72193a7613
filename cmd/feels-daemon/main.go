// Package main provides the feels daemon entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/feels/internal/commentary"
	"github.com/thebtf/feels/internal/config"
	gormdb "github.com/thebtf/feels/internal/db/gorm"
	"github.com/thebtf/feels/internal/emotion"
	"github.com/thebtf/feels/internal/reaction"
	"github.com/thebtf/feels/internal/watcher"
	"github.com/thebtf/feels/internal/worker"
	"github.com/thebtf/feels/internal/worker/ws"
	"github.com/thebtf/feels/pkg/daemonctl"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the environment is read")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", *envFile).Msg("Failed to load env file")
	}

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Daemon exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Daemon stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	table := emotion.DefaultTable()
	if cfg.EmotionsFile != "" {
		loaded, err := emotion.LoadTable(cfg.EmotionsFile)
		if err != nil {
			return err
		}
		table = loaded
	}
	if err := table.Validate(); err != nil {
		return err
	}

	store, err := gormdb.NewStore(gormdb.Config{
		Path:     cfg.DBPath,
		DSN:      cfg.DBDSN,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	thoughts := gormdb.NewThoughtStore(store)

	cache := reaction.OpenCache(cfg.CachePath)
	searcher := reaction.NewGiphySearcher(reaction.GiphyConfig{
		APIKey:  cfg.GiphyAPIKey,
		BaseURL: cfg.GiphyURL,
		Limit:   cfg.ReactionLimit,
		Rating:  cfg.ReactionRating,
		Timeout: cfg.FetchTimeout(),
	})
	if cfg.GiphyAPIKey == "" {
		log.Warn().Msg("GIPHY_API_KEY not set, reactions fall back to the placeholder")
	}

	var commentator commentary.Commentator
	client, err := commentary.New(commentary.Config{
		Enabled: cfg.CommentaryEnabled,
		APIKey:  cfg.CommentaryAPIKey,
		BaseURL: cfg.CommentaryBaseURL,
		Model:   cfg.CommentaryModel,
		Timeout: cfg.CommentaryTimeout(),
	})
	switch {
	case err == nil:
		commentator = client
	case errors.Is(err, commentary.ErrDisabled):
		log.Info().Msg("Commentary disabled")
	default:
		return err
	}

	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	classifier := emotion.NewClassifier(table, rand.New(rand.NewSource(seed.Int63())), cfg.SurpriseProbability)
	narrator := emotion.NewNarrator(rand.New(rand.NewSource(seed.Int63())), emotion.NewState(), emotion.NewTokenCounter())
	fetcher := reaction.NewFetcher(cache, searcher, rand.New(rand.NewSource(seed.Int63())))

	queue := worker.NewQueue()
	hub := ws.NewHub()
	tailer := watcher.NewTailer(cfg.FeedPath, queue, watcher.WithPollInterval(cfg.FeedPollInterval()))

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Queue:        queue,
		Classifier:   classifier,
		Narrator:     narrator,
		Fetcher:      fetcher,
		Commentator:  commentator,
		Store:        thoughts,
		Hub:          hub,
		PollInterval: cfg.WorkerPollInterval(),
	})

	svc := worker.NewService(worker.ServiceOptions{
		Version:  Version,
		Config:   cfg,
		Store:    thoughts,
		Hub:      hub,
		Queue:    queue,
		Cache:    cache,
		Feed:     tailer,
	})

	if err := daemonctl.WritePID(cfg.PIDPath, os.Getpid()); err != nil {
		log.Warn().Err(err).Str("path", cfg.PIDPath).Msg("Failed to write pid file")
	}
	defer daemonctl.RemovePID(cfg.PIDPath, os.Getpid()) //nolint:errcheck

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Serve(gctx) })
	g.Go(func() error {
		processor.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := tailer.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return tailer.Stop()
	})

	svc.SetReady(true)
	log.Info().
		Str("version", Version).
		Int("ws_port", cfg.WSPort).
		Int("http_port", cfg.HTTPPort).
		Str("feed", cfg.FeedPath).
		Str("db", store.Dialect()).
		Msg("Daemon started")

	err = g.Wait()
	if saveErr := cache.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("Failed to save reaction cache")
	}
	log.Info().
		Int64("processed", processor.Processed()).
		Int64("failed", processor.Failed()).
		Msg("Worker drained")
	return err
}
