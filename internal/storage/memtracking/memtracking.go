package memtracking

import (
	"context"
	"sort"
	"sync"

	"github.com/BearBump/CargoTrack/internal/models"
)

// Storage — in-memory хранилище для тестов и локального запуска.
// Данные не переживают рестарт процесса.
type Storage struct {
	mu      sync.RWMutex
	records map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	rec *models.TrackingRecord
}

func New() *Storage {
	return &Storage{records: make(map[string]*entry)}
}

// Seed puts records as-is, replacing existing ones. Intended for fixtures.
func (s *Storage) Seed(recs ...*models.TrackingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.ID] = &entry{rec: r.Clone()}
	}
}

func (s *Storage) CreateTracking(ctx context.Context, rec *models.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return models.ErrTrackingExists
	}
	s.records[rec.ID] = &entry{rec: rec.Clone()}
	return nil
}

func (s *Storage) GetTracking(ctx context.Context, id string) (*models.TrackingRecord, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, models.ErrTrackingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (s *Storage) ListTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	all := make([]*models.TrackingRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if f.Status == "" || e.rec.OverallStatus == f.Status {
			all = append(all, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if f.Offset >= len(all) {
		return []*models.TrackingRecord{}, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (s *Storage) UpdateTracking(ctx context.Context, id string, apply func(rec *models.TrackingRecord) error) (*models.TrackingRecord, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, models.ErrTrackingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.rec.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	next.Revision = e.rec.Revision + 1
	e.rec = next
	return next.Clone(), nil
}

func (s *Storage) IncrementAccessCount(ctx context.Context, id string) (int64, error) {
	e := s.lookup(id)
	if e == nil {
		return 0, models.ErrTrackingNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.AccessCount++
	return e.rec.AccessCount, nil
}

func (s *Storage) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}
