package feed

import (
	"context"
	"fmt"

	"auditstore/internal/storage"
)

// ObjectSource reads the feed from one object in an object store, for
// deployments that mirror the public list into their own bucket.
type ObjectSource struct {
	store storage.Storage
	key   string
}

func NewObjectSource(store storage.Storage, key string) *ObjectSource {
	return &ObjectSource{store: store, key: key}
}

var _ Source = (*ObjectSource)(nil)

func (s *ObjectSource) Fetch(ctx context.Context) (string, error) {
	r, _, err := s.store.Get(ctx, s.key)
	if err != nil {
		return "", fmt.Errorf("get object %s: %w", s.key, err)
	}
	defer r.Close()

	body, err := readAll(r)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", s.key, err)
	}
	return body, nil
}
