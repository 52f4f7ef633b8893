package trackings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/CargoTrack/internal/cache"
	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = models.ErrTrackingNotFound
	ErrAlreadyExists    = models.ErrTrackingExists
	ErrInvalidStep      = models.ErrInvalidStep
	ErrMissingEvidence  = models.ErrMissingEvidence
	ErrMissingConfirmer = models.ErrMissingConfirmer
	ErrInvalidInput     = models.ErrInvalidInput
	ErrInvalidComment   = models.ErrInvalidComment
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	defaultPublicLink = "https://wat.app/track"
)

// Repository owns persistence. UpdateTracking is the per-record critical
// section: apply gets a private copy, and nothing is written if it fails.
type Repository interface {
	CreateTracking(ctx context.Context, rec *models.TrackingRecord) error
	GetTracking(ctx context.Context, id string) (*models.TrackingRecord, error)
	ListTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, error)
	UpdateTracking(ctx context.Context, id string, apply func(rec *models.TrackingRecord) error) (*models.TrackingRecord, error)
	IncrementAccessCount(ctx context.Context, id string) (int64, error)
}

type StepUpdate struct {
	StepID    models.StepID
	Completed bool
	Active    bool
	Comment   string
}

type DeliveryInput struct {
	ConfirmedBy string
	ConfirmedAt time.Time
	Photos      []evidence.Artifact
	Signature   *evidence.Artifact
}

type CreateInput struct {
	ID                string
	DocumentReference string
	Status            string
	TrackingLink      string
}

type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration

	resolver        *evidence.Resolver
	requireEvidence bool
	publicLinkBase  string
	now             func() time.Time
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{
		repo:           repo,
		cache:          c,
		currentTTL:     currentTTL,
		publicLinkBase: defaultPublicLink,
		now:            time.Now,
	}
}

func (s *Service) WithEvidence(r *evidence.Resolver) *Service {
	s.resolver = r
	return s
}

// WithRequireEvidence включает строгую проверку: фото и подпись обязательны.
func (s *Service) WithRequireEvidence(v bool) *Service {
	s.requireEvidence = v
	return s
}

func (s *Service) WithPublicLinkBase(base string) *Service {
	if base != "" {
		s.publicLinkBase = strings.TrimRight(base, "/")
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) GetTrackingDetails(ctx context.Context, id string) (*models.TrackingRecord, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	rec, ok := s.fromCache(ctx, id)
	if !ok {
		var err error
		rec, err = s.repo.GetTracking(ctx, id)
		if err != nil {
			return nil, err
		}
		s.storeCache(ctx, rec)
	}

	// Счётчик просмотров это телеметрия, ошибки не должны ломать чтение.
	n, err := s.repo.IncrementAccessCount(ctx, id)
	if err != nil {
		slog.Warn("increment access count", "tracking_id", id, "error", err.Error())
	} else {
		rec.AccessCount = n
	}
	return rec, nil
}

// LoadTracking reads the stored record directly, bypassing the snapshot cache
// and the access counter. Used to re-check state after a mutation whose
// outcome is unknown.
func (s *Service) LoadTracking(ctx context.Context, id string) (*models.TrackingRecord, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetTracking(ctx, id)
}

func (s *Service) UpdateTrackingStep(ctx context.Context, id string, upd StepUpdate) (*models.TrackingRecord, error) {
	if !upd.StepID.Valid() {
		return nil, ErrInvalidStep
	}
	upd.Comment = strings.TrimSpace(upd.Comment)

	return s.mutate(ctx, id, func(rec *models.TrackingRecord, now time.Time) error {
		return applyStepUpdate(rec, upd, now)
	})
}

func (s *Service) AddComment(ctx context.Context, id string, c models.Comment) (*models.TrackingRecord, error) {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return nil, ErrInvalidComment
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	return s.mutate(ctx, id, func(rec *models.TrackingRecord, now time.Time) error {
		if c.Timestamp.IsZero() {
			c.Timestamp = now
		}
		rec.Comments = append([]models.Comment{c}, rec.Comments...)
		return nil
	})
}

func (s *Service) AddDeliveryConfirmation(ctx context.Context, id string, in DeliveryInput) (*models.TrackingRecord, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	// Проверяем запись до загрузки файлов, чтобы не плодить сироты в хранилище.
	if _, err := s.repo.GetTracking(ctx, id); err != nil {
		return nil, err
	}

	photos, err := s.resolver.ResolveAll(ctx, id, evidence.KindPhoto, in.Photos)
	if err != nil {
		return nil, err
	}
	var signature string
	if in.Signature != nil {
		signature, err = s.resolver.Resolve(ctx, id, evidence.KindSignature, *in.Signature)
		if err != nil {
			return nil, err
		}
	}
	confirmedBy := strings.TrimSpace(in.ConfirmedBy)

	return s.mutate(ctx, id, func(rec *models.TrackingRecord, now time.Time) error {
		var dc models.DeliveryConfirmation
		if rec.DeliveryConfirmation != nil {
			dc = *rec.DeliveryConfirmation
		}
		if confirmedBy != "" {
			dc.ConfirmedBy = confirmedBy
		}
		if !in.ConfirmedAt.IsZero() {
			dc.ConfirmedAt = in.ConfirmedAt.UTC()
		} else if dc.ConfirmedAt.IsZero() {
			dc.ConfirmedAt = now
		}
		if len(photos) > 0 {
			dc.PhotoURL = photos[0]
			dc.PhotoURLs = photos
		}
		if signature != "" {
			dc.SignatureURL = signature
		}

		if dc.ConfirmedBy == "" {
			return ErrMissingConfirmer
		}
		if s.requireEvidence && (dc.PhotoURL == "" || dc.SignatureURL == "") {
			return ErrMissingEvidence
		}

		rec.DeliveryConfirmation = &dc
		completeDelivery(rec, now)
		rec.OverallStatus = models.StatusDelivered
		return nil
	})
}

func (s *Service) CreateTracking(ctx context.Context, in CreateInput) (*models.TrackingRecord, error) {
	ref := strings.TrimSpace(in.DocumentReference)
	if ref == "" {
		return nil, errors.Wrap(ErrInvalidInput, "documentReference is required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	status := in.Status
	if status == "" {
		status = models.StatusAwaitingPickup
	}
	link := in.TrackingLink
	if link == "" {
		link = s.publicLink(id, ref)
	}

	now := s.now().UTC()
	steps := models.NewSteps()
	ts := now
	steps[0].Completed = true
	steps[0].Timestamp = &ts
	activateOnly(steps, 0)

	rec := &models.TrackingRecord{
		ID:                 id,
		DocumentReference:  ref,
		OverallStatus:      status,
		Steps:              steps,
		CreatedAt:          now,
		LastUpdated:        now,
		PublicTrackingLink: link,
		Comments:           []models.Comment{},
	}
	if err := s.repo.CreateTracking(ctx, rec); err != nil {
		return nil, err
	}
	s.storeCache(ctx, rec)
	return rec.Clone(), nil
}

func (s *Service) ListTrackings(ctx context.Context, f ListFilter) ([]*models.TrackingRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		return nil, errors.Wrapf(ErrInvalidInput, "limit must be <= %d", maxListLimit)
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTrackings(ctx, models.TrackingFilter{
		Status: strings.TrimSpace(f.Status),
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Service) mutate(ctx context.Context, id string, fn func(rec *models.TrackingRecord, now time.Time) error) (*models.TrackingRecord, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	now := s.now().UTC()
	out, err := s.repo.UpdateTracking(ctx, id, func(rec *models.TrackingRecord) error {
		if err := fn(rec, now); err != nil {
			return err
		}
		rec.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, out)
	return out, nil
}

func (s *Service) publicLink(id, ref string) string {
	var digits strings.Builder
	for _, r := range ref {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	key := digits.String()
	if key == "" {
		key = id
	}
	return s.publicLinkBase + "/" + key
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) fromCache(ctx context.Context, id string) (*models.TrackingRecord, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, snapshotKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var rec models.TrackingRecord
	if json.Unmarshal(b, &rec) != nil {
		return nil, false
	}
	return &rec, true
}

// storeCache best effort, ошибки кэша игнорируем. Снапшот с ревизией не
// новее закэшированной отбрасывается, так что запоздавшая запись после
// параллельной мутации не откатит кэш назад.
func (s *Service) storeCache(ctx context.Context, rec *models.TrackingRecord) {
	if !s.cacheEnabled() || rec == nil {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if _, err := s.cache.SetIfNewer(ctx, snapshotKey(rec.ID), b, rec.Revision, s.currentTTL); err != nil {
		slog.Warn("cache tracking snapshot", "tracking_id", rec.ID, "error", err.Error())
	}
}

func snapshotKey(id string) string {
	return fmt.Sprintf("tracking:%s:snapshot", id)
}
