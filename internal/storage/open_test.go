package storage

import (
	"testing"
	"time"

	"github.com/BearBump/CargoTrack/config"
	"github.com/BearBump/CargoTrack/internal/storage/memtracking"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	repo, closeFn, err := Open(&config.Config{Storage: config.StorageConfig{Driver: DriverMemory}}, time.Second)
	require.NoError(t, err)
	require.Nil(t, closeFn)
	require.IsType(t, &memtracking.Storage{}, repo)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(&config.Config{Storage: config.StorageConfig{Driver: "cassandra"}}, time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cassandra")
}

func TestRetryUntil(t *testing.T) {
	calls := 0
	require.NoError(t, retryUntil(0, func() error {
		calls++
		return nil
	}))
	require.Equal(t, 1, calls)

	boom := errors.New("boom")
	calls = 0
	require.ErrorIs(t, retryUntil(0, func() error {
		calls++
		return boom
	}), boom)
	require.Equal(t, 1, calls)
}
