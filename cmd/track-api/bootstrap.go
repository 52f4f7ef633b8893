package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CargoTrack/config"
	trackingsapi "github.com/BearBump/CargoTrack/internal/api/trackings_api"
	"github.com/BearBump/CargoTrack/internal/broker/kafka"
	"github.com/BearBump/CargoTrack/internal/cache"
	"github.com/BearBump/CargoTrack/internal/cache/rediscache"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence/inline"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence/mediahttp"
	"github.com/BearBump/CargoTrack/internal/services/notify"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/BearBump/CargoTrack/internal/storage"
)

const storageWait = 60 * time.Second

type apiFactories struct {
	newStorage       func(cfg *config.Config) (repo trackings.Repository, closeFn func(), err error)
	newCache         func(cfg *config.Config) cache.BytesCache
	newRateLimiter   func(cfg *config.Config) trackingsapi.RateLimiter
	newEvidenceStore func(cfg *config.Config) evidence.Store
	newNotifier      func(cfg *config.Config) (n notify.Notifier, closeFn func())
}

func defaultAPIFactories() apiFactories {
	return apiFactories{
		newStorage: func(cfg *config.Config) (trackings.Repository, func(), error) {
			return storage.Open(cfg, storageWait)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.New(cfg.Redis.Addr())
		},
		newRateLimiter: func(cfg *config.Config) trackingsapi.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newEvidenceStore: func(cfg *config.Config) evidence.Store {
			switch cfg.Evidence.Mode {
			case "mediahttp":
				return mediahttp.New(cfg.Evidence.BaseURL, cfg.Evidence.APIKey)
			default:
				return inline.New()
			}
		},
		newNotifier: func(cfg *config.Config) (notify.Notifier, func()) {
			if !cfg.API.NotificationsEnabled || cfg.Kafka.Host == "" {
				return notify.Noop{}, nil
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return notify.NewKafka(p, cfg.Kafka.NotificationsTopicName), func() { _ = p.Close() }
		},
	}
}

type trackAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    trackAPIOpts
	api     *trackingsapi.TrackingsAPI
	closers []func()
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	app, err := bootstrapTrackAPI(cfg, swaggerPath, defaultAPIFactories())
	if err != nil {
		panic(err)
	}
	return app
}

func bootstrapTrackAPI(cfg *config.Config, swaggerPath string, f apiFactories) (*trackAPIApp, error) {
	httpAddr := cfg.API.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	snapshotTTL := time.Duration(cfg.API.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 10 * time.Minute
	}
	corsOrigins := cfg.API.CORSAllowedOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	trusted, err := trackingsapi.ParseTrustedProxies(cfg.API.TrustedProxies)
	if err != nil {
		return nil, err
	}

	repo, closeDB, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}
	app := &trackAPIApp{}
	if closeDB != nil {
		app.closers = append(app.closers, closeDB)
	}

	svc := trackings.New(repo, f.newCache(cfg), snapshotTTL).
		WithEvidence(evidence.NewResolver(f.newEvidenceStore(cfg))).
		WithRequireEvidence(cfg.API.RequireDeliveryEvidence).
		WithPublicLinkBase(cfg.API.PublicTrackingBaseURL)

	notifier, closeNotifier := f.newNotifier(cfg)
	if closeNotifier != nil {
		app.closers = append(app.closers, closeNotifier)
	}

	api := trackingsapi.New(svc).
		WithNotifier(notifier).
		WithTrustedProxies(trusted)
	if rl := f.newRateLimiter(cfg); rl != nil {
		api.WithRateLimit(rl, int64(cfg.API.MutationsPerMinute))
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.api = api
	app.opts = trackAPIOpts{
		httpAddr:    httpAddr,
		swaggerPath: swaggerPath,
		corsOrigins: corsOrigins,
	}
	return app, nil
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.api)
}
