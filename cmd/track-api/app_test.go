package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/CargoTrack/config"
	trackingsapi "github.com/BearBump/CargoTrack/internal/api/trackings_api"
	"github.com/BearBump/CargoTrack/internal/cache"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence/inline"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence/mediahttp"
	"github.com/BearBump/CargoTrack/internal/services/notify"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/BearBump/CargoTrack/internal/storage/memtracking"
	"github.com/stretchr/testify/require"
)

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func memoryFactories() apiFactories {
	f := defaultAPIFactories()
	f.newCache = func(cfg *config.Config) cache.BytesCache { return nil }
	f.newRateLimiter = func(cfg *config.Config) trackingsapi.RateLimiter { return nil }
	return f
}

func TestDefaultAPIFactories_Select(t *testing.T) {
	f := defaultAPIFactories()

	es := f.newEvidenceStore(&config.Config{Evidence: config.EvidenceConfig{Mode: "mediahttp", BaseURL: "http://media"}})
	_, ok := es.(*mediahttp.Client)
	require.True(t, ok)
	es = f.newEvidenceStore(&config.Config{})
	_, ok = es.(*inline.Store)
	require.True(t, ok)

	n, closeFn := f.newNotifier(&config.Config{})
	require.IsType(t, notify.Noop{}, n)
	require.Nil(t, closeFn)

	n, closeFn = f.newNotifier(&config.Config{
		API:   config.APIConfig{NotificationsEnabled: true},
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
	})
	_, ok = n.(*notify.KafkaNotifier)
	require.True(t, ok)
	closeFn()

	require.Nil(t, f.newCache(&config.Config{}))
	require.Nil(t, f.newRateLimiter(&config.Config{}))
	require.NotNil(t, f.newCache(&config.Config{Redis: config.RedisConfig{Host: "localhost", Port: 6379}}))
	require.NotNil(t, f.newRateLimiter(&config.Config{Redis: config.RedisConfig{Host: "localhost", Port: 6379}}))

	repo, closeDB, err := f.newStorage(&config.Config{Storage: config.StorageConfig{Driver: "memory"}})
	require.NoError(t, err)
	require.Nil(t, closeDB)
	_, ok = repo.(*memtracking.Storage)
	require.True(t, ok)
}

func TestBootstrapTrackAPI_ClosesInReverseOrder(t *testing.T) {
	var order []string
	f := memoryFactories()
	f.newStorage = func(cfg *config.Config) (trackings.Repository, func(), error) {
		return memtracking.New(), func() { order = append(order, "db") }, nil
	}
	f.newNotifier = func(cfg *config.Config) (notify.Notifier, func()) {
		return notify.Noop{}, func() { order = append(order, "notifier") }
	}
	f.newEvidenceStore = func(cfg *config.Config) evidence.Store { return inline.New() }

	app, err := bootstrapTrackAPI(&config.Config{}, writeSwagger(t), f)
	require.NoError(t, err)
	require.Equal(t, ":8080", app.opts.httpAddr)
	require.Equal(t, []string{"http://localhost:5173"}, app.opts.corsOrigins)

	app.Close()
	require.Equal(t, []string{"notifier", "db"}, order)
}

func TestBootstrapTrackAPI_InvalidTrustedProxy(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		API:     config.APIConfig{TrustedProxies: []string{"not-a-cidr/33"}},
	}
	_, err := bootstrapTrackAPI(cfg, writeSwagger(t), memoryFactories())
	require.Error(t, err)
	require.Contains(t, err.Error(), "trusted proxy")
}

func TestRunTrackAPI_ServesRoutes(t *testing.T) {
	sw := writeSwagger(t)
	app, err := bootstrapTrackAPI(&config.Config{Storage: config.StorageConfig{Driver: "memory"}}, sw, memoryFactories())
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := app.opts
	opts.httpAddr = "127.0.0.1:0"
	opts.onListen = func(httpAddr string) { addrCh <- httpAddr }

	errCh := make(chan error, 1)
	go func() { errCh <- runTrackAPI(ctx, opts, app.api) }()
	base := "http://" + <-addrCh

	resp, err := http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"swagger"`)

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/tracking/unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, base+"/tracking/1/steps/loaded", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}

func TestRunTrackAPI_MissingSwagger(t *testing.T) {
	err := runTrackAPI(context.Background(), trackAPIOpts{httpAddr: "127.0.0.1:0", swaggerPath: "/nope.json"}, nil)
	require.Error(t, err)
	err = runTrackAPI(context.Background(), trackAPIOpts{httpAddr: "127.0.0.1:0"}, nil)
	require.Error(t, err)
}
