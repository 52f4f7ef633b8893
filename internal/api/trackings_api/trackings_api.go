package trackings_api

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/BearBump/CargoTrack/internal/services/notify"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/go-chi/chi/v5"
)

type Service interface {
	GetTrackingDetails(ctx context.Context, id string) (*models.TrackingRecord, error)
	UpdateTrackingStep(ctx context.Context, id string, upd trackings.StepUpdate) (*models.TrackingRecord, error)
	AddComment(ctx context.Context, id string, c models.Comment) (*models.TrackingRecord, error)
	AddDeliveryConfirmation(ctx context.Context, id string, in trackings.DeliveryInput) (*models.TrackingRecord, error)
	CreateTracking(ctx context.Context, in trackings.CreateInput) (*models.TrackingRecord, error)
	ListTrackings(ctx context.Context, f trackings.ListFilter) ([]*models.TrackingRecord, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, subject string, limit int64, window time.Duration) (bool, int64, error)
}

type TrackingsAPI struct {
	svc      Service
	notifier notify.Notifier

	limiter            RateLimiter
	mutationsPerMinute int64
	trustedProxies     []netip.Prefix
}

func New(svc Service) *TrackingsAPI {
	return &TrackingsAPI{svc: svc, notifier: notify.Noop{}}
}

func (a *TrackingsAPI) WithNotifier(n notify.Notifier) *TrackingsAPI {
	if n != nil {
		a.notifier = n
	}
	return a
}

// WithRateLimit ограничивает мутации per client IP. perMinute <= 0 означает без лимита.
func (a *TrackingsAPI) WithRateLimit(rl RateLimiter, perMinute int64) *TrackingsAPI {
	a.limiter = rl
	a.mutationsPerMinute = perMinute
	return a
}

// WithTrustedProxies задаёт адреса прокси, которым верим X-Forwarded-For.
// От остальных клиентов заголовок для лимита игнорируется.
func (a *TrackingsAPI) WithTrustedProxies(prefixes []netip.Prefix) *TrackingsAPI {
	a.trustedProxies = prefixes
	return a
}

// Register mounts the tracking routes on r. The router is expected to run
// UseMiddlewares first.
func (a *TrackingsAPI) Register(r chi.Router) {
	r.Route("/tracking", func(r chi.Router) {
		r.Get("/", a.listTrackings)
		r.Get("/{id}", a.getTrackingDetails)

		r.Group(func(r chi.Router) {
			r.Use(a.rateLimit)
			r.Post("/", a.createTracking)
			r.Patch("/{id}/steps/{stepId}", a.updateTrackingStep)
			r.Post("/{id}/comments", a.addComment)
			r.Post("/{id}/delivery-confirmation", a.addDeliveryConfirmation)
		})
	})
}

func (a *TrackingsAPI) getTrackingDetails(w http.ResponseWriter, r *http.Request) {
	rec, err := a.svc.GetTrackingDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *TrackingsAPI) listTrackings(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := a.svc.ListTrackings(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*models.TrackingRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Trackings: recs})
}

func (a *TrackingsAPI) createTracking(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.fail(r.Context(), w, notify.OpCreate, req.ID, err)
		return
	}
	rec, err := a.svc.CreateTracking(r.Context(), trackings.CreateInput{
		ID:                req.ID,
		DocumentReference: req.DocumentReference,
		Status:            req.OverallStatus,
		TrackingLink:      req.PublicTrackingLink,
	})
	if err != nil {
		a.fail(r.Context(), w, notify.OpCreate, req.ID, err)
		return
	}
	a.succeed(r.Context(), w, http.StatusCreated, notify.OpCreate, rec)
}

func (a *TrackingsAPI) updateTrackingStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req stepRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.fail(r.Context(), w, notify.OpStep, id, err)
		return
	}
	rec, err := a.svc.UpdateTrackingStep(r.Context(), id, trackings.StepUpdate{
		StepID:    models.StepID(chi.URLParam(r, "stepId")),
		Completed: req.Completed,
		Active:    req.Active,
		Comment:   req.Comment,
	})
	if err != nil {
		a.fail(r.Context(), w, notify.OpStep, id, err)
		return
	}
	a.succeed(r.Context(), w, http.StatusOK, notify.OpStep, rec)
}

func (a *TrackingsAPI) addComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req commentRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.fail(r.Context(), w, notify.OpComment, id, err)
		return
	}
	c := models.Comment{ID: req.ID, AuthorName: req.AuthorName, Text: req.Text}
	if req.Timestamp != nil {
		c.Timestamp = req.Timestamp.UTC()
	}
	rec, err := a.svc.AddComment(r.Context(), id, c)
	if err != nil {
		a.fail(r.Context(), w, notify.OpComment, id, err)
		return
	}
	a.succeed(r.Context(), w, http.StatusOK, notify.OpComment, rec)
}

func (a *TrackingsAPI) addDeliveryConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req deliveryRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.fail(r.Context(), w, notify.OpDelivery, id, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		a.fail(r.Context(), w, notify.OpDelivery, id, err)
		return
	}
	rec, err := a.svc.AddDeliveryConfirmation(r.Context(), id, in)
	if err != nil {
		a.fail(r.Context(), w, notify.OpDelivery, id, err)
		return
	}
	a.succeed(r.Context(), w, http.StatusOK, notify.OpDelivery, rec)
}

func (a *TrackingsAPI) succeed(ctx context.Context, w http.ResponseWriter, status int, op string, rec *models.TrackingRecord) {
	notify.Send(ctx, a.notifier, notify.Success(op, rec))
	writeJSON(w, status, rec)
}

func (a *TrackingsAPI) fail(ctx context.Context, w http.ResponseWriter, op, id string, err error) {
	notify.Send(ctx, a.notifier, notify.Failure(op, id, err))
	writeError(w, err)
}

func (a *TrackingsAPI) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil || a.mutationsPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		subject := "mutations:" + a.clientKey(r)
		allowed, n, err := a.limiter.Allow(r.Context(), subject, a.mutationsPerMinute, time.Minute)
		if err != nil {
			// Redis недоступен: не блокируем операторов.
			slog.Warn("rate limiter", "subject", subject, "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			slog.Warn("rate limit exceeded", "subject", subject, "count", n)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the socket peer, or the forwarded client address when the
// peer is a trusted proxy.
func (a *TrackingsAPI) clientKey(r *http.Request) string {
	peer := hostOf(peerAddr(r))
	if len(a.trustedProxies) > 0 && inPrefixes(peer, a.trustedProxies) {
		return hostOf(r.RemoteAddr)
	}
	return peer
}
