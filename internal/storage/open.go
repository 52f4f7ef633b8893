package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CargoTrack/config"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/BearBump/CargoTrack/internal/storage/memtracking"
	"github.com/BearBump/CargoTrack/internal/storage/mongotracking"
	"github.com/BearBump/CargoTrack/internal/storage/pgtracking"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Open picks the repository by storage.driver, postgres by default. It keeps
// retrying for up to wait: in docker compose the database starts slower.
func Open(cfg *config.Config, wait time.Duration) (trackings.Repository, func(), error) {
	switch cfg.Storage.Driver {
	case DriverMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		return memtracking.New(), nil, nil

	case DriverMongo:
		dbName := cfg.Mongo.Database
		if dbName == "" {
			dbName = "cargotrack"
		}
		var st *mongotracking.Storage
		err := retryUntil(wait, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var err error
			st, err = mongotracking.New(ctx, cfg.Mongo.URI, dbName)
			return err
		})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "mongo is not ready after %s", wait)
		}
		return st, st.Close, nil

	case DriverPostgres, "":
		var st *pgtracking.Storage
		err := retryUntil(wait, func() error {
			var err error
			st, err = pgtracking.New(cfg.Database.ConnString())
			return err
		})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "postgres is not ready after %s", wait)
		}
		return st, st.Close, nil

	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func retryUntil(wait time.Duration, fn func() error) error {
	deadline := time.Now().Add(wait)
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return err
		}
		slog.Warn("storage not ready, retrying", "error", err.Error())
		time.Sleep(1 * time.Second)
	}
}
