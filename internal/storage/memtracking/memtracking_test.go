package memtracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func newRecord(id string, createdAt time.Time, status string) *models.TrackingRecord {
	return &models.TrackingRecord{
		ID:            id,
		OverallStatus: status,
		Steps:         models.NewSteps(),
		CreatedAt:     createdAt,
		LastUpdated:   createdAt,
	}
}

func TestStorage_CreateGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := newRecord("1", time.Now().UTC(), models.StatusInTransit)
	require.NoError(t, s.CreateTracking(ctx, rec))
	require.ErrorIs(t, s.CreateTracking(ctx, rec), models.ErrTrackingExists)

	got, err := s.GetTracking(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "1", got.ID)

	// внешняя мутация не должна влиять на хранилище
	got.Steps[0].Active = true
	again, _ := s.GetTracking(ctx, "1")
	require.False(t, again.Steps[0].Active)

	_, err = s.GetTracking(ctx, "nope")
	require.ErrorIs(t, err, models.ErrTrackingNotFound)
}

func TestStorage_UpdateTracking_ApplyErrorLeavesRecord(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(newRecord("1", time.Now().UTC(), ""))

	want := errors.New("boom")
	_, err := s.UpdateTracking(ctx, "1", func(rec *models.TrackingRecord) error {
		rec.Steps[2].Completed = true
		return want
	})
	require.ErrorIs(t, err, want)

	got, _ := s.GetTracking(ctx, "1")
	require.False(t, got.Steps[2].Completed)
	require.Zero(t, got.Revision)

	_, err = s.UpdateTracking(ctx, "nope", func(rec *models.TrackingRecord) error { return nil })
	require.ErrorIs(t, err, models.ErrTrackingNotFound)
}

func TestStorage_UpdateTracking_Serialized(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(newRecord("1", time.Now().UTC(), ""))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateTracking(ctx, "1", func(rec *models.TrackingRecord) error {
				rec.Comments = append(rec.Comments, models.Comment{Text: "x"})
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetTracking(ctx, "1")
	require.Len(t, got.Comments, 50)
	require.Equal(t, int64(50), got.Revision)
}

func TestStorage_ListTrackings(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2023, 5, 8, 9, 30, 0, 0, time.UTC)
	s.Seed(
		newRecord("1", base, models.StatusInTransit),
		newRecord("2", base.Add(time.Hour), models.StatusDelivered),
		newRecord("3", base.Add(2*time.Hour), models.StatusInTransit),
	)

	all, err := s.ListTrackings(ctx, models.TrackingFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "3", all[0].ID)

	inTransit, err := s.ListTrackings(ctx, models.TrackingFilter{Status: models.StatusInTransit, Limit: 10})
	require.NoError(t, err)
	require.Len(t, inTransit, 2)

	page, err := s.ListTrackings(ctx, models.TrackingFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "2", page[0].ID)

	empty, err := s.ListTrackings(ctx, models.TrackingFilter{Limit: 10, Offset: 10})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStorage_IncrementAccessCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(newRecord("1", time.Now().UTC(), ""))

	n, err := s.IncrementAccessCount(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, _ = s.IncrementAccessCount(ctx, "1")
	require.Equal(t, int64(2), n)

	_, err = s.IncrementAccessCount(ctx, "nope")
	require.ErrorIs(t, err, models.ErrTrackingNotFound)
}
