package pgtracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS tracking_records (
  id TEXT PRIMARY KEY,
  document_reference TEXT NOT NULL,
  overall_status TEXT NOT NULL,
  steps JSONB NOT NULL,
  comments JSONB NOT NULL DEFAULT '[]'::jsonb,
  delivery_confirmation JSONB NULL,
  public_tracking_link TEXT NOT NULL DEFAULT '',
  access_count BIGINT NOT NULL DEFAULT 0,
  revision BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  last_updated TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_records_created_at ON tracking_records(created_at DESC, id)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_records_overall_status ON tracking_records(overall_status)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
