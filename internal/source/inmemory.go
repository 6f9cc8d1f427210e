package source

import (
	"context"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
)

// InMemorySource serves keys declared in code, resolving them through a registry
type InMemorySource struct {
	registry *migration.Registry
	keys     []string
}

var _ Source = (*InMemorySource)(nil)

func NewInMemorySource(registry *migration.Registry, keys ...string) (*InMemorySource, error) {
	if registry == nil {
		return nil, ErrNoRegistry
	}

	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, errors.Wrap(migration.ErrInvalidKey, "empty key")
		}

		if _, ok := seen[k]; ok {
			return nil, errors.Wrapf(ErrMigrationAlreadyExists, "duplicate key [%s]", k)
		}

		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}

	migration.SortKeys(sorted)

	return &InMemorySource{registry: registry, keys: sorted}, nil
}

func (s *InMemorySource) ListAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]string, len(s.keys))
	copy(result, s.keys)

	return result, nil
}

func (s *InMemorySource) Resolve(_ context.Context, key string) (migration.Unit, error) {
	found := false
	for i := range s.keys {
		if s.keys[i] == key {
			found = true
			break
		}
	}

	if !found {
		return nil, errors.Wrapf(ErrNotFound, "key [%s] is not declared", key)
	}

	u, err := s.registry.Resolve(migration.EntityName(key))
	if err != nil {
		return nil, errors.Wrapf(err, "key [%s]", key)
	}

	return u, nil
}
