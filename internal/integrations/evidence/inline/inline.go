package inline

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/BearBump/CargoTrack/internal/integrations/evidence"
)

// Store встраивает данные прямо в ссылку (data URL). Для демо и тестов:
// ничего не хранится отдельно, ссылка самодостаточна.
type Store struct{}

func New() *Store { return &Store{} }

func (s *Store) Put(ctx context.Context, trackingID string, kind evidence.Kind, a evidence.Artifact) (string, error) {
	ct := a.ContentType
	if ct == "" {
		ct = http.DetectContentType(a.Data)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(a.Data), nil
}
