package evidence

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindPhoto     Kind = "photo"
	KindSignature Kind = "signature"
)

// Artifact — фото или подпись. Либо уже готовая ссылка (URL), либо сырые данные.
type Artifact struct {
	URL         string
	ContentType string
	Data        []byte
}

func (a Artifact) Empty() bool {
	return strings.TrimSpace(a.URL) == "" && len(a.Data) == 0
}

type Store interface {
	Put(ctx context.Context, trackingID string, kind Kind, a Artifact) (string, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns a stable reference for the artifact. Already resolved
// references pass through untouched; raw data is handed to the store.
func (r *Resolver) Resolve(ctx context.Context, trackingID string, kind Kind, a Artifact) (string, error) {
	if u := strings.TrimSpace(a.URL); u != "" {
		return u, nil
	}
	if len(a.Data) == 0 {
		return "", nil
	}
	if r == nil || r.store == nil {
		return "", errors.New("evidence store is not configured")
	}
	u, err := r.store.Put(ctx, trackingID, kind, a)
	if err != nil {
		return "", errors.Wrapf(err, "store %s", kind)
	}
	return u, nil
}

// ResolveAll resolves photos in order, skipping empty artifacts.
func (r *Resolver) ResolveAll(ctx context.Context, trackingID string, kind Kind, as []Artifact) ([]string, error) {
	out := make([]string, 0, len(as))
	for _, a := range as {
		if a.Empty() {
			continue
		}
		u, err := r.Resolve(ctx, trackingID, kind, a)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
