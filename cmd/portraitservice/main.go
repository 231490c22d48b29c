// Command portraitservice serves user portraits and asset ratings fetched from
// a portal server, caching portraits in the configured backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-screenlets/pkg/cache"
	"github.com/illmade-knight/go-screenlets/pkg/microservice"
	"github.com/illmade-knight/go-screenlets/pkg/portrait"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/illmade-knight/go-screenlets/pkg/tracking"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "portraitservice").Logger()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("Invalid log level, defaulting to info.")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Portrait service failed.")
	}
}

func run(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	gateway, closeGateway, err := newGateway(ctx, cfg, clientOpts, logger)
	if err != nil {
		return err
	}
	gateway, closeGateway, err = withNearCache(cfg, gateway, closeGateway, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	tracker, err := newTracker(ctx, cfg, clientOpts, logger)
	if err != nil {
		return err
	}

	sess := session.New(cfg.ServerURL, session.BasicAuth{Username: cfg.Username, Password: cfg.Password}, cfg.RequestTimeout)
	builder := portrait.NewBuilder(portrait.ServerFactory{Logger: logger}, nil, logger)
	svc, err := microservice.NewPortraitService(microservice.PortraitServiceConfig{
		HTTPPort:       cfg.HTTPPort,
		Strategy:       cfg.CacheStrategy,
		RequestTimeout: cfg.RequestTimeout,
	}, sess, builder, gateway, tracker, logger)
	if err != nil {
		return fmt.Errorf("failed to create portrait service: %w", err)
	}

	if err := svc.Start(); err != nil {
		return err
	}
	logger.Info().
		Str("backend", cfg.CacheBackend).
		Str("strategy", cfg.CacheStrategy.String()).
		Str("port", svc.GetHTTPPort()).
		Msg("Portrait service started.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server did not shut down cleanly.")
	}
	if err := tracker.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Tracker did not flush before shutdown.")
	}
	return nil
}

// newGateway builds the configured cache backend and a func releasing its clients.
func newGateway(ctx context.Context, cfg *Config, opts []option.ClientOption, logger zerolog.Logger) (cache.Gateway, func(), error) {
	switch cfg.CacheBackend {
	case BackendRedis:
		gw, err := cache.NewRedisGateway(ctx, &cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			CacheTTL: cfg.CacheTTL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, func() { _ = gw.Close() }, nil

	case BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		gw, err := cache.NewFirestoreGateway(&cache.FirestoreConfig{
			ProjectID:        cfg.ProjectID,
			CollectionPrefix: cfg.FirestoreCollectionPrefix,
		}, client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return gw, func() { _ = client.Close() }, nil

	case BackendGCS:
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		gw, err := cache.NewGCSGateway(cache.NewGCSClientAdapter(client), cache.GCSGatewayConfig{BucketName: cfg.GCSBucket}, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return gw, func() { _ = client.Close() }, nil

	default:
		gw := cache.NewInMemoryGateway()
		return gw, func() { _ = gw.Close() }, nil
	}
}

// withNearCache puts an in-memory cache in front of a remote backend.
func withNearCache(cfg *Config, far cache.Gateway, closeFar func(), logger zerolog.Logger) (cache.Gateway, func(), error) {
	if !cfg.NearCache || cfg.CacheBackend == BackendMemory || cfg.CacheBackend == "" {
		return far, closeFar, nil
	}
	tiered, err := cache.NewTieredGateway(&cache.TieredConfig{}, cache.NewInMemoryGateway(), far, logger)
	if err != nil {
		closeFar()
		return nil, nil, err
	}
	return tiered, func() {
		if err := tiered.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close cache.")
		}
		closeFar()
	}, nil
}

// newTracker prefers Pub/Sub when a topic is configured, then the portal's
// analytics servlet, and otherwise discards events.
func newTracker(ctx context.Context, cfg *Config, opts []option.ClientOption, logger zerolog.Logger) (tracking.Tracker, error) {
	trackerContext := tracking.Context{
		CompanyID:  cfg.CompanyID,
		LanguageID: "en_US",
		LayoutURL:  "go",
	}

	switch {
	case cfg.TrackingTopic != "":
		client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		trackerCfg := tracking.NewPubsubTrackerDefaults()
		trackerCfg.ProjectID = cfg.ProjectID
		trackerCfg.TopicID = cfg.TrackingTopic
		trackerCfg.GroupID = cfg.GroupID
		tracker, err := tracking.NewPubsubTracker(ctx, trackerCfg, client, trackerContext, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &closingTracker{Tracker: tracker, close: client.Close}, nil

	case cfg.TrackingHTTP:
		return tracking.NewHTTPTracker(cfg.ServerURL, cfg.GroupID, nil, trackerContext, logger), nil

	default:
		return tracking.Nop{}, nil
	}
}

// closingTracker releases the tracker's client once it has stopped.
type closingTracker struct {
	tracking.Tracker
	close func() error
}

func (c *closingTracker) Stop(ctx context.Context) error {
	err := c.Tracker.Stop(ctx)
	if closeErr := c.close(); err == nil {
		err = closeErr
	}
	return err
}
