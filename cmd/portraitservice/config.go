package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/illmade-knight/go-screenlets/pkg/interactor"
)

// Cache backends selectable with SCREENLETS_CACHE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
)

// Config is the portrait service's configuration, read from the environment.
type Config struct {
	ServerURL      string        `env:"SCREENLETS_SERVER_URL,required"`
	HTTPPort       string        `env:"SCREENLETS_HTTP_PORT"       envDefault:":8080"`
	LogLevel       string        `env:"SCREENLETS_LOG_LEVEL"       envDefault:"info"`
	Username       string        `env:"SCREENLETS_USERNAME"`
	Password       string        `env:"SCREENLETS_PASSWORD"`
	RequestTimeout time.Duration `env:"SCREENLETS_REQUEST_TIMEOUT" envDefault:"30s"`

	CacheBackend  string                   `env:"SCREENLETS_CACHE_BACKEND"  envDefault:"memory"`
	CacheStrategy interactor.CacheStrategy `env:"SCREENLETS_CACHE_STRATEGY" envDefault:"cache-first"`
	NearCache     bool                     `env:"SCREENLETS_NEAR_CACHE"     envDefault:"true"`

	RedisAddr     string        `env:"SCREENLETS_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string        `env:"SCREENLETS_REDIS_PASSWORD"`
	RedisDB       int           `env:"SCREENLETS_REDIS_DB"       envDefault:"0"`
	CacheTTL      time.Duration `env:"SCREENLETS_CACHE_TTL"      envDefault:"24h"`

	ProjectID                 string `env:"SCREENLETS_PROJECT_ID"`
	CredentialsFile           string `env:"SCREENLETS_CREDENTIALS_FILE"`
	FirestoreCollectionPrefix string `env:"SCREENLETS_FIRESTORE_COLLECTION_PREFIX"`
	GCSBucket                 string `env:"SCREENLETS_GCS_BUCKET"`

	TrackingTopic string `env:"SCREENLETS_TRACKING_TOPIC"`
	TrackingHTTP  bool   `env:"SCREENLETS_TRACKING_HTTP"`
	CompanyID     int64  `env:"SCREENLETS_COMPANY_ID"`
	GroupID       int64  `env:"SCREENLETS_GROUP_ID"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (*Config, error) {
	return loadConfig(env.Options{})
}

func loadConfig(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	case BackendFirestore:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("firestore cache requires SCREENLETS_PROJECT_ID"))
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			errs = append(errs, errors.New("gcs cache requires SCREENLETS_GCS_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.CacheBackend))
	}
	if c.TrackingTopic != "" && c.ProjectID == "" {
		errs = append(errs, errors.New("pubsub tracking requires SCREENLETS_PROJECT_ID"))
	}
	return errors.Join(errs...)
}
