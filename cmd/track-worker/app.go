package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CargoTrack/config"
	"github.com/BearBump/CargoTrack/internal/broker/kafka"
	"github.com/BearBump/CargoTrack/internal/cache"
	"github.com/BearBump/CargoTrack/internal/cache/rediscache"
	"github.com/BearBump/CargoTrack/internal/services/notify"
	"github.com/BearBump/CargoTrack/internal/services/stageworker"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/BearBump/CargoTrack/internal/storage"
)

const storageWait = 60 * time.Second

type eventConsumer interface {
	stageworker.Consumer
	Close() error
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo trackings.Repository, closeFn func(), err error)
	newCache    func(cfg *config.Config) cache.BytesCache
	newConsumer func(cfg *config.Config) eventConsumer
	newNotifier func(cfg *config.Config) (n notify.Notifier, closeFn func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (trackings.Repository, func(), error) {
			return storage.Open(cfg, storageWait)
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.New(cfg.Redis.Addr())
		},
		newConsumer: func(cfg *config.Config) eventConsumer {
			topic := cfg.Kafka.EventsTopicName
			if topic == "" {
				topic = "tracking.events"
			}
			group := cfg.Kafka.ConsumerGroup
			if group == "" {
				group = "track-worker"
			}
			slog.Info("kafka consumer started", "topic", topic, "group", group)
			return kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
		},
		newNotifier: func(cfg *config.Config) (notify.Notifier, func()) {
			if cfg.Kafka.Host == "" {
				return notify.Noop{}, nil
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return notify.NewKafka(p, cfg.Kafka.NotificationsTopicName), func() { _ = p.Close() }
		},
	}
}

func backoffFromConfig(w config.WorkerConfig) stageworker.BackoffConfig {
	return stageworker.BackoffConfig{
		Step1:       time.Duration(w.Backoff1Seconds) * time.Second,
		Step2:       time.Duration(w.Backoff2Seconds) * time.Second,
		Step3:       time.Duration(w.Backoff3Seconds) * time.Second,
		Step4:       time.Duration(w.Backoff4Seconds) * time.Second,
		MaxAttempts: w.MaxAttempts,
	}
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, swaggerPath string, f workerFactories) error {
	snapshotTTL := time.Duration(cfg.API.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 10 * time.Minute
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	// тот же кэш, что у API: после применения события снапшот обновится.
	svc := trackings.New(repo, f.newCache(cfg), snapshotTTL).
		WithPublicLinkBase(cfg.API.PublicTrackingBaseURL)

	notifier, closeNotifier := f.newNotifier(cfg)
	if closeNotifier != nil {
		defer closeNotifier()
	}

	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	w := stageworker.New(svc, consumer).
		WithBackoff(backoffFromConfig(cfg.Worker)).
		WithNotifier(notifier)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	if swaggerPath != "" {
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.Worker.HTTPAddr,
				swaggerPath: swaggerPath,
				worker:      w,
				cfg:         cfg,
			})
		}()
	} else {
		slog.Warn("workerSwaggerPath is empty, admin HTTP server disabled")
	}

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-runErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	case err := <-httpErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}
