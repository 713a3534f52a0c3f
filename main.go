package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"sjsage522/flatworker/config"
	"sjsage522/flatworker/helpers"
	"sjsage522/flatworker/internal/crawler"
	"sjsage522/flatworker/internal/geo"
	"sjsage522/flatworker/internal/params"
	"sjsage522/flatworker/logger"
	"sjsage522/flatworker/services/cache"
	"sjsage522/flatworker/services/publisher"
	"sjsage522/flatworker/services/storage"
	"sjsage522/flatworker/services/worker"
)

const cooldownKey = "source_cooldown"

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("crawl_interval", cfg.CrawlInterval).
		Str("source", cfg.SourceURL).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	filter, err := geo.LoadFilter(cfg.BadRegionsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BadRegionsPath).Msg("Failed to load exclusion regions")
	}

	operating := params.New()
	for key, value := range cfg.SeedParams {
		if err := operating.SetString(key, value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Ignoring seed parameter")
		}
	}
	if services.Redis != nil {
		sync := params.NewRedisSync(services.Redis, cfg.ParamsKey, cfg.ParamsChannel, operating)
		go func() {
			if err := sync.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Parameter sync stopped")
			}
		}()
	}

	extractor := crawler.NewMarkerExtractor(crawler.ExtractorConfig{
		URL:       cfg.SourceURL,
		Variable:  cfg.MarkerVariable,
		CacheKey:  cooldownKey,
		BlockTime: cfg.CooldownTime,
		Timeout:   cfg.FetchTimeout,
	}, services.Cache, newSession(cfg))

	var describer crawler.Describer
	if cfg.DescriptionEnabled {
		describer = crawler.NewPageDescriber(cfg.DescriptionRPS)
	}

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		params.NewGate(operating, cfg.GatePollInterval),
		extractor,
		crawler.NewListingParser(cfg.SiteOrigin),
		filter,
		services.Store,
		services.Publisher,
		describer,
		operating,
		helpers.NewLogger(cfg.ErrorLogPath),
		cfg.CrawlInterval,
	)

	workerDone := make(chan struct{})
	go func() {
		log.Info().Int("exclusion_polygons", filter.Len()).Msg("Starting flat worker")
		w.Start()
		close(workerDone)
	}()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case <-workerDone:
		log.Info().Msg("Worker exited")
	}

	log.Info().Msg("Shutting down gracefully...")
}

func newSession(cfg *config.Config) crawler.CookieProvider {
	if cfg.StaticSessionID != "" {
		return crawler.StaticSession{Name: cfg.SessionCookie, Value: cfg.StaticSessionID}
	}
	return crawler.NewCachedSession(&crawler.BrowserSession{
		URL:        cfg.CookieURL,
		CookieName: cfg.SessionCookie,
		RemoteURL:  cfg.ChromeWSURL,
		ChromeBin:  cfg.ChromeBin,
		Timeout:    cfg.FetchTimeout,
	})
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     storage.Store
	Redis     *redis.Client
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Cooldown cache
	services.Cache = cache.NewMemoryCache()
	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr, "flatworker")
		if err := mc.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Msg("Memcache unavailable, using in-process cooldowns")
		} else {
			services.Cache = mc
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	// Listing store
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set, listings are kept in memory only")
		services.Store = storage.NewMemoryStore()
	} else {
		store, err := storage.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		services.Store = store
	}

	// Publisher and parameter sync
	services.Publisher = publisher.Nop{}
	if cfg.RedisAddr != "" {
		services.Redis = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		services.Publisher = publisher.NewRedisPublisherWithClient(services.Redis, cfg.RedisStream, cfg.RedisStreamMaxLength)

		logger.Info("Using Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return services, nil
}
