package trackings_api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CargoTrack/internal/broker/messages"
	"github.com/BearBump/CargoTrack/internal/cache/rediscache"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence/inline"
	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/BearBump/CargoTrack/internal/storage/memtracking"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	got []messages.OperationOutcome
}

func (n *recordingNotifier) Notify(ctx context.Context, o messages.OperationOutcome) error {
	n.got = append(n.got, o)
	return nil
}

type fakeLimiter struct {
	calls   int
	allowed bool
	err     error
}

func (l *fakeLimiter) Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error) {
	l.calls++
	return l.allowed, int64(l.calls), l.err
}

func seedRecord(id string) *models.TrackingRecord {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	steps := models.NewSteps()
	for i := 0; i < 3; i++ {
		ts := now.Add(time.Duration(i) * time.Hour)
		steps[i].Completed = true
		steps[i].Timestamp = &ts
	}
	steps[2].Active = true
	return &models.TrackingRecord{
		ID:                 id,
		DocumentReference:  "CT-e #35887",
		OverallStatus:      models.StatusInTransit,
		Steps:              steps,
		CreatedAt:          now,
		LastUpdated:        now,
		AccessCount:        12,
		PublicTrackingLink: "https://wat.app/track/35887",
		Comments:           []models.Comment{},
	}
}

func newHandler(a *TrackingsAPI) http.Handler {
	r := chi.NewRouter()
	UseMiddlewares(r)
	a.Register(r)
	return r
}

func newTestAPI(t *testing.T) (http.Handler, *recordingNotifier) {
	t.Helper()
	repo := memtracking.New()
	repo.Seed(seedRecord("1"))
	svc := trackings.New(repo, nil, 0).WithEvidence(evidence.NewResolver(inline.New()))
	n := &recordingNotifier{}
	return newHandler(New(svc).WithNotifier(n)), n
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeRecord(t *testing.T, rr *httptest.ResponseRecorder) models.TrackingRecord {
	t.Helper()
	var rec models.TrackingRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func TestAPI_GetTrackingDetails(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := do(t, h, http.MethodGet, "/tracking/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decodeRecord(t, rr)
	require.Equal(t, int64(13), rec.AccessCount)
	require.Len(t, rec.Steps, 5)

	rr = do(t, h, http.MethodGet, "/tracking/999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "not found")
}

func TestAPI_UpdateTrackingStep(t *testing.T) {
	h, n := newTestAPI(t)

	rr := do(t, h, http.MethodPatch, "/tracking/1/steps/in-transit", `{"completed":true,"active":true,"comment":"Status atualizado manualmente por Ana"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decodeRecord(t, rr)
	require.Equal(t, models.StepInTransit, rec.ActiveStep().ID)
	require.False(t, rec.Step(models.StepLoaded).Active)
	require.Equal(t, []string{"Status atualizado manualmente por Ana"}, rec.Step(models.StepInTransit).Comments)

	require.Len(t, n.got, 1)
	require.Equal(t, messages.OutcomeSuccess, n.got[0].Result)
	require.Equal(t, "Status atualizado", n.got[0].Title)

	rr = do(t, h, http.MethodPatch, "/tracking/1/steps/picked-up", `{"completed":true}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, messages.OutcomeError, n.got[1].Result)

	rr = do(t, h, http.MethodPatch, "/tracking/999/steps/loaded", `{"completed":true}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPatch, "/tracking/1/steps/loaded", `{"completed":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_AddComment(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := do(t, h, http.MethodPost, "/tracking/1/comments", `{"authorName":"Ana","text":"primeiro"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodPost, "/tracking/1/comments", `{"authorName":"Ana","text":"segundo"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rec := decodeRecord(t, rr)
	require.Len(t, rec.Comments, 2)
	require.Equal(t, "segundo", rec.Comments[0].Text)
	require.NotEmpty(t, rec.Comments[0].ID)

	rr = do(t, h, http.MethodPost, "/tracking/1/comments", `{"authorName":"Ana","text":"  "}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_AddDeliveryConfirmation(t *testing.T) {
	h, n := newTestAPI(t)

	photo := base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0jpeg"))
	body := `{"confirmedBy":"Maria","photos":[{"data":"` + photo + `","contentType":"image/jpeg"},{"url":"https://cdn/x.jpg"}],"signature":{"data":"data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte("png")) + `"}}`

	rr := do(t, h, http.MethodPost, "/tracking/1/delivery-confirmation", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rec := decodeRecord(t, rr)
	require.Equal(t, models.StatusDelivered, rec.OverallStatus)
	require.True(t, rec.Step(models.StepDelivered).Completed)
	require.Equal(t, models.StepDelivered, rec.ActiveStep().ID)
	require.Equal(t, "Maria", rec.DeliveryConfirmation.ConfirmedBy)
	require.True(t, strings.HasPrefix(rec.DeliveryConfirmation.PhotoURL, "data:image/jpeg;base64,"))
	require.Equal(t, "https://cdn/x.jpg", rec.DeliveryConfirmation.PhotoURLs[1])
	require.True(t, strings.HasPrefix(rec.DeliveryConfirmation.SignatureURL, "data:image/png;base64,"))
	require.Equal(t, "Entrega confirmada", n.got[len(n.got)-1].Title)

	rr = do(t, h, http.MethodPost, "/tracking/1/delivery-confirmation", `{"confirmedBy":"Maria","photos":[{"data":"%%%"}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/tracking/999/delivery-confirmation", `{"confirmedBy":"Maria"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_DeliveryRequiresEvidenceWhenStrict(t *testing.T) {
	repo := memtracking.New()
	repo.Seed(seedRecord("1"))
	svc := trackings.New(repo, nil, 0).WithRequireEvidence(true)
	h := newHandler(New(svc))

	rr := do(t, h, http.MethodPost, "/tracking/1/delivery-confirmation", `{"confirmedBy":"Maria"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, h, http.MethodPost, "/tracking/1/delivery-confirmation", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_CreateAndList(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := do(t, h, http.MethodPost, "/tracking", `{"id":"2","documentReference":"NF-e #42355"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rec := decodeRecord(t, rr)
	require.Equal(t, "https://wat.app/track/42355", rec.PublicTrackingLink)
	require.Equal(t, models.StatusAwaitingPickup, rec.OverallStatus)

	rr = do(t, h, http.MethodPost, "/tracking", `{"id":"2","documentReference":"NF-e #42355"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/tracking", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/tracking?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Trackings, 2)

	rr = do(t, h, http.MethodGet, "/tracking?status="+strings.ReplaceAll(models.StatusAwaitingPickup, " ", "%20"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Trackings, 1)

	rr = do(t, h, http.MethodGet, "/tracking?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, h, http.MethodGet, "/tracking?limit=501", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_RateLimit(t *testing.T) {
	repo := memtracking.New()
	repo.Seed(seedRecord("1"))
	svc := trackings.New(repo, nil, 0)

	rl := &fakeLimiter{allowed: false}
	h := newHandler(New(svc).WithRateLimit(rl, 5))

	rr := do(t, h, http.MethodPost, "/tracking/1/comments", `{"text":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "60", rr.Header().Get("Retry-After"))

	// чтение не лимитируется
	rr = do(t, h, http.MethodGet, "/tracking/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, rl.calls)

	// ошибка redis, пропускаем запрос
	rl.err = errors.New("redis down")
	rr = do(t, h, http.MethodPost, "/tracking/1/comments", `{"text":"x"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func commentFrom(t *testing.T, h http.Handler, forwardedFor string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tracking/1/comments", strings.NewReader(`{"text":"x"}`))
	req.RemoteAddr = "192.0.2.10:40000"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestAPI_RateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := memtracking.New()
	repo.Seed(seedRecord("1"))
	api := New(trackings.New(repo, nil, 0)).WithRateLimit(rediscache.NewRateLimiter(mr.Addr()), 2)
	h := newHandler(api)

	accepted := 0
	for i := 0; i < 10; i++ {
		if commentFrom(t, h, fmt.Sprintf("203.0.113.%d", i)) == http.StatusOK {
			accepted++
		}
	}
	require.Equal(t, 2, accepted)
	require.Equal(t, http.StatusTooManyRequests, commentFrom(t, h, "198.51.100.1"))
}

func TestAPI_RateLimit_TrustedProxyForwardsClient(t *testing.T) {
	mr := miniredis.RunT(t)
	repo := memtracking.New()
	repo.Seed(seedRecord("1"))
	trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24"})
	require.NoError(t, err)
	api := New(trackings.New(repo, nil, 0)).
		WithRateLimit(rediscache.NewRateLimiter(mr.Addr()), 2).
		WithTrustedProxies(trusted)
	h := newHandler(api)

	// разные клиенты за одним прокси лимитируются раздельно
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, commentFrom(t, h, fmt.Sprintf("203.0.113.%d", i)))
	}
	require.Equal(t, http.StatusOK, commentFrom(t, h, "198.51.100.7"))
	require.Equal(t, http.StatusOK, commentFrom(t, h, "198.51.100.7"))
	require.Equal(t, http.StatusTooManyRequests, commentFrom(t, h, "198.51.100.7"))
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.5 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, inPrefixes("10.1.2.3", got))
	require.True(t, inPrefixes("192.0.2.5", got))
	require.False(t, inPrefixes("192.0.2.6", got))
	require.True(t, inPrefixes("::1", got))
	require.False(t, inPrefixes("not-an-ip", got))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	require.Error(t, err)
}

func TestAPI_BodyTooLarge(t *testing.T) {
	h, n := newTestAPI(t)

	body := `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rr := do(t, h, http.MethodPost, "/tracking/1/comments", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "request body too large")
	require.Equal(t, messages.OutcomeError, n.got[len(n.got)-1].Result)

	rr = do(t, h, http.MethodGet, "/tracking/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decodeRecord(t, rr).Comments)
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusNotFound, httpStatus(errors.Wrap(trackings.ErrNotFound, "x")))
	require.Equal(t, http.StatusBadRequest, httpStatus(trackings.ErrMissingConfirmer))
	require.Equal(t, http.StatusConflict, httpStatus(trackings.ErrAlreadyExists))
	require.Equal(t, http.StatusUnprocessableEntity, httpStatus(trackings.ErrMissingEvidence))
	require.Equal(t, http.StatusRequestEntityTooLarge, httpStatus(errors.Wrap(errBodyTooLarge, "limit")))
	require.Equal(t, http.StatusInternalServerError, httpStatus(errors.New("db down")))
}

func TestArtifactRequest_toArtifact(t *testing.T) {
	a, err := artifactRequest{URL: " https://x "}.toArtifact()
	require.NoError(t, err)
	require.Equal(t, "https://x", a.URL)

	a, err = artifactRequest{Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("abc"))}.toArtifact()
	require.NoError(t, err)
	require.Equal(t, "image/png", a.ContentType)
	require.Equal(t, []byte("abc"), a.Data)

	_, err = artifactRequest{Data: "data:text/plain,abc"}.toArtifact()
	require.ErrorIs(t, err, trackings.ErrInvalidInput)

	a, err = artifactRequest{}.toArtifact()
	require.NoError(t, err)
	require.True(t, a.Empty())
}
