package pgtracking

import (
	"context"
	"encoding/json"

	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const selectColumns = `
  id, document_reference, overall_status,
  steps, comments, delivery_confirmation,
  public_tracking_link, access_count,
  created_at, last_updated, revision`

const uniqueViolation = "23505"

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Storage) CreateTracking(ctx context.Context, rec *models.TrackingRecord) error {
	steps, comments, dc, err := encodeJSONColumns(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO tracking_records (
  id, document_reference, overall_status,
  steps, comments, delivery_confirmation,
  public_tracking_link, access_count,
  created_at, last_updated, revision
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, rec.ID, rec.DocumentReference, rec.OverallStatus,
		steps, comments, dc,
		rec.PublicTrackingLink, rec.AccessCount,
		rec.CreatedAt.UTC(), rec.LastUpdated.UTC(), rec.Revision)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.ErrTrackingExists
		}
		return errors.Wrap(err, "insert tracking")
	}
	return nil
}

func (s *Storage) GetTracking(ctx context.Context, id string) (*models.TrackingRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT`+selectColumns+` FROM tracking_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTrackingNotFound
		}
		return nil, errors.Wrap(err, "select tracking")
	}
	return rec, nil
}

func (s *Storage) ListTrackings(ctx context.Context, f models.TrackingFilter) ([]*models.TrackingRecord, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+selectColumns+`
FROM tracking_records
WHERE ($1 = '' OR overall_status = $1)
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "select trackings")
	}
	defer rows.Close()

	out := make([]*models.TrackingRecord, 0, f.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracking")
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateTracking читает запись под FOR UPDATE, применяет apply к копии
// и перезаписывает её в той же транзакции. Ошибка apply = rollback.
func (s *Storage) UpdateTracking(ctx context.Context, id string, apply func(rec *models.TrackingRecord) error) (*models.TrackingRecord, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT`+selectColumns+` FROM tracking_records WHERE id = $1 FOR UPDATE`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrTrackingNotFound
		}
		return nil, errors.Wrap(err, "select tracking for update")
	}

	prev := rec.Revision
	if err := apply(rec); err != nil {
		return nil, err
	}
	rec.Revision = prev + 1

	steps, comments, dc, err := encodeJSONColumns(rec)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
UPDATE tracking_records
SET document_reference = $2,
    overall_status = $3,
    steps = $4,
    comments = $5,
    delivery_confirmation = $6,
    public_tracking_link = $7,
    last_updated = $8,
    revision = $9
WHERE id = $1
`, rec.ID, rec.DocumentReference, rec.OverallStatus,
		steps, comments, dc,
		rec.PublicTrackingLink, rec.LastUpdated.UTC(), rec.Revision)
	if err != nil {
		return nil, errors.Wrap(err, "update tracking")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return rec, nil
}

func (s *Storage) IncrementAccessCount(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `
UPDATE tracking_records SET access_count = access_count + 1 WHERE id = $1 RETURNING access_count
`, id).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrTrackingNotFound
		}
		return 0, errors.Wrap(err, "increment access count")
	}
	return n, nil
}

func scanRecord(row rowScanner) (*models.TrackingRecord, error) {
	var (
		rec                    models.TrackingRecord
		steps, comments, dcRaw []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.DocumentReference, &rec.OverallStatus,
		&steps, &comments, &dcRaw,
		&rec.PublicTrackingLink, &rec.AccessCount,
		&rec.CreatedAt, &rec.LastUpdated, &rec.Revision,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &rec.Steps); err != nil {
		return nil, errors.Wrap(err, "decode steps")
	}
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &rec.Comments); err != nil {
			return nil, errors.Wrap(err, "decode comments")
		}
	}
	if rec.Comments == nil {
		rec.Comments = []models.Comment{}
	}
	if len(dcRaw) > 0 && string(dcRaw) != "null" {
		var dc models.DeliveryConfirmation
		if err := json.Unmarshal(dcRaw, &dc); err != nil {
			return nil, errors.Wrap(err, "decode delivery confirmation")
		}
		rec.DeliveryConfirmation = &dc
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastUpdated = rec.LastUpdated.UTC()
	return &rec, nil
}

func encodeJSONColumns(rec *models.TrackingRecord) (steps, comments, dc []byte, err error) {
	if steps, err = json.Marshal(rec.Steps); err != nil {
		return nil, nil, nil, errors.Wrap(err, "encode steps")
	}
	cs := rec.Comments
	if cs == nil {
		cs = []models.Comment{}
	}
	if comments, err = json.Marshal(cs); err != nil {
		return nil, nil, nil, errors.Wrap(err, "encode comments")
	}
	if rec.DeliveryConfirmation != nil {
		if dc, err = json.Marshal(rec.DeliveryConfirmation); err != nil {
			return nil, nil, nil, errors.Wrap(err, "encode delivery confirmation")
		}
	}
	return steps, comments, dc, nil
}
