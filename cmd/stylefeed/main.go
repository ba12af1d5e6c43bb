package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wearly-labs/stylefeed/internal/config"
	"github.com/wearly-labs/stylefeed/internal/domain"
	"github.com/wearly-labs/stylefeed/internal/embedding"
	"github.com/wearly-labs/stylefeed/internal/fetcher"
	logpkg "github.com/wearly-labs/stylefeed/internal/logger"
	"github.com/wearly-labs/stylefeed/internal/metrics"
	"github.com/wearly-labs/stylefeed/internal/scraper"
	"github.com/wearly-labs/stylefeed/internal/storage/postgres"
	"github.com/wearly-labs/stylefeed/internal/transport/ops"
	"github.com/wearly-labs/stylefeed/internal/version"
)

func main() {
	var (
		sitesFlag  = flag.String("sites", "all", "comma-separated site keys, or 'all'")
		syncFlag   = flag.Bool("sync", false, "persist scraped products to the database")
		limitFlag  = flag.Int("limit", 0, "max listings processed per site (0 = no limit)")
		logLevel   = flag.String("log-level", "", "override the configured log level")
		configPath = flag.String("config", "config/local.yaml", "path to the pipeline config")
		sitesPath  = flag.String("sites-config", "config/sites.yaml", "path to the site catalog")
	)
	flag.Parse()

	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger, err := logpkg.New(env, level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting stylefeed scraper",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("sites", *sitesFlag),
		zap.Bool("sync", *syncFlag),
		zap.Int("limit", *limitFlag),
	)

	sites, err := config.LoadSites(*sitesPath)
	if err != nil {
		logger.Fatal("Failed to load site catalog", zap.Error(err))
	}
	logger.Info("Site catalog loaded", zap.Int("sites", len(sites)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Database is only needed when persisting
	var store *postgres.Store
	if *syncFlag {
		readyCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.ReadinessTimeoutSec)*time.Second)
		store, err = postgres.New(readyCtx, postgres.Config{
			DSN:        cfg.Database.DSN,
			MaxConns:   cfg.Database.MaxConns,
			MinConns:   cfg.Database.MinConns,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Scrape.BatchSize,
			Batches:    m.UpsertBatches,
			Duration:   m.UpsertDuration,
			Logger:     logger,
		})
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to ensure schema", zap.Error(err))
		}
		logger.Info("Connected to database")
	}

	if cfg.Ops.Port > 0 {
		var pinger ops.Pinger
		if store != nil {
			pinger = store
		}
		opsSrv := ops.NewServer(cfg.Ops.Port, registry, pinger, logger)
		opsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opsSrv.Shutdown(shutdownCtx)
		}()
	}

	embedder, closeEmbedder := buildEmbedder(cfg, m, logger)
	defer closeEmbedder()

	delay := time.Duration(cfg.Scrape.DelaySec * float64(time.Second))
	static := fetcher.NewStatic(fetcher.StaticOptions{
		UserAgent: cfg.Scrape.UserAgent,
		Delay:     delay,
		Timeout:   time.Duration(cfg.Scrape.RequestTimeoutSec) * time.Second,
		Logger:    logger,
	})
	browser := fetcher.NewBrowser(fetcher.BrowserOptions{
		UserAgent: cfg.Scrape.UserAgent,
		Delay:     delay,
		MaxPages:  cfg.Scrape.BrowserMaxPages,
		Logger:    logger,
	})

	runner := scraper.NewRunner(scraper.RunnerConfig{
		Sites:       sites,
		Fetchers:    fetcher.NewComposite(static, browser),
		Embedder:    embedder,
		Store:       storeOrNil(store),
		Metrics:     m,
		Logger:      logger,
		MaxRetries:  cfg.Scrape.MaxRetries,
		BackoffBase: 2 * time.Second,
	})

	names := splitSites(*sitesFlag)
	summaries, runErr := runner.Run(ctx, names, scraper.Options{
		Sync:  *syncFlag,
		Limit: *limitFlag,
	})

	failed := 0
	for _, s := range summaries {
		if s.Err != nil {
			failed++
		}
	}
	logger.Info("Run finished",
		zap.Int("sites", len(summaries)),
		zap.Int("sites_failed", failed),
	)

	if runErr != nil {
		logger.Error("Run interrupted", zap.Error(runErr))
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// buildEmbedder wires the inference client and, when a cache address is
// configured, the caching decorator in front of it. The returned func
// releases the cache connection.
func buildEmbedder(cfg config.Config, m *metrics.Pipeline, logger *zap.Logger) (domain.ImageEmbedder, func()) {
	client := embedding.NewClient(embedding.Config{
		EndpointURL: cfg.Embedding.EndpointURL,
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		Timeout:     time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		UserAgent:   cfg.Scrape.UserAgent,
		Requests:    m.EmbedRequests,
		Duration:    m.EmbedDuration,
		Logger:      logger,
	})

	if cfg.Embedding.CacheAddr == "" {
		return client, func() {}
	}

	kv, err := embedding.NewKVStore(cfg.Embedding.CacheAddr, cfg.Embedding.CachePassword)
	if err != nil {
		logger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		return client, func() {}
	}
	logger.Info("Embedding cache enabled", zap.String("addr", cfg.Embedding.CacheAddr))
	return embedding.NewCached(client, kv, m.EmbedCache, logger), kv.Close
}

// storeOrNil avoids handing the runner a typed nil pointer wrapped in a
// non-nil interface.
func storeOrNil(store *postgres.Store) scraper.ProductStore {
	if store == nil {
		return nil
	}
	return store
}

func splitSites(csv string) []string {
	parts := strings.Split(csv, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(os.Stderr, "no sites given")
		os.Exit(2)
	}
	return names
}
