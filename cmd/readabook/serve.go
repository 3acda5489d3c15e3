package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/readabook/internal/config"
	"github.com/Sternrassler/readabook/pkg/cache"
	"github.com/Sternrassler/readabook/pkg/catalog"
	"github.com/Sternrassler/readabook/pkg/fetch"
	"github.com/Sternrassler/readabook/pkg/library"
	"github.com/Sternrassler/readabook/pkg/logging"
	"github.com/Sternrassler/readabook/pkg/ratelimit"
	"github.com/Sternrassler/readabook/pkg/segment"
	"github.com/Sternrassler/readabook/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the readabook HTTP server.

Configuration is read from READABOOK_* environment variables. When
READABOOK_REDIS_ADDR is set, upstream back-off windows are shared through
Redis; otherwise they are kept in memory.

The server provides:
  - /healthz                  - Liveness check
  - /metrics                  - Prometheus metrics
  - /api/books                - Catalog listings
  - /api/books/recent?ids=    - Records for a list of ids
  - /api/books/{id}           - Document metadata
  - /api/books/{id}/text      - Raw plain text
  - /api/books/{id}/chapters  - Segmented chapters

Examples:
  readabook serve                   # Start on READABOOK_ADDR (default :8080)
  readabook serve --addr :3000      # Start on a custom address`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		logger := logging.Setup(logging.Config{
			Level:  logging.LogLevel(cfg.LogLevel),
			Pretty: cfg.LogPretty,
		})

		store, closeStore, err := backoffStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		lib, err := buildLibrary(cfg, store, logger)
		if err != nil {
			return err
		}
		lib.StartSweepers(ctx, cfg.SweepInterval)

		// Warm the landing page listings.
		for _, g := range catalog.Genres[:4] {
			lib.PrefetchListing(catalog.Query{Topic: g.ID, MimeType: catalog.DefaultMimeType})
		}

		srv := server.New(server.Config{
			Addr:    cfg.Addr,
			Library: lib,
			Logger:  logger.With().Str("component", "server").Logger(),
		})
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides READABOOK_ADDR)")

	rootCmd.AddCommand(serveCmd)
}

func backoffStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ratelimit.Store, func(), error) {
	if !cfg.HasRedis() {
		return ratelimit.NewMemoryStore(), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis, sharing back-off state")

	return ratelimit.NewRedisStore(redisClient), func() { _ = redisClient.Close() }, nil
}

func buildLibrary(cfg *config.Config, store ratelimit.Store, logger zerolog.Logger) (*library.Library, error) {
	fetchLogger := logger.With().Str("component", "fetch").Logger()
	f, err := fetch.New(fetch.Config{
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{},
		Tracker:    ratelimit.NewTracker(store, logger.With().Str("component", "ratelimit").Logger()),
		Logger:     &fetchLogger,
	})
	if err != nil {
		return nil, err
	}

	cacheLogger := logger.With().Str("component", "cache").Logger()
	requestCfg := cache.RequestCacheConfig{TTL: cfg.RequestTTL, Logger: &cacheLogger}
	libLogger := logger.With().Str("component", "library").Logger()

	return library.New(library.Config{
		BaseURL:   cfg.APIBase,
		Fetcher:   f,
		Listings:  cache.NewRequestCache[*catalog.Listing]("listings", requestCfg),
		Documents: cache.NewRequestCache[*catalog.Document]("documents", requestCfg),
		Texts: cache.NewBoundedCache("texts", cache.BoundedCacheConfig{
			Capacity: cfg.TextCacheSize,
			TTL:      cfg.TextTTL,
		}),
		Segmenter:      segment.New(segment.Config{SectionChars: cfg.SectionChars}),
		MetaTimeout:    cfg.MetaTimeout,
		ListingTimeout: cfg.ListingTimeout,
		TextTimeout:    cfg.TextTimeout,
		MetaPolicy:     fetch.MetadataPolicy(cfg.RetryDelay),
		Logger:         &libLogger,
	})
}
