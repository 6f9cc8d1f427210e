package migration

import (
	"github.com/pkg/errors"
	"sort"
	"sync"
)

var ErrAlreadyRegistered = errors.New("migration already registered")

// DefaultRegistry is where migration files register their units from init
var DefaultRegistry = NewRegistry()

// Registry maps entity names, as produced by EntityName, to unit factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.Wrapf(ErrInvalidKey, "cannot register [%s]", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "%s", name)
	}

	r.factories[name] = f

	return nil
}

func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Resolve constructs a fresh unit registered under the entity name
func (r *Registry) Resolve(name string) (Unit, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no unit registered as [%s]", name)
	}

	u := f()
	if u == nil {
		return nil, errors.Wrapf(ErrNotFound, "factory for [%s] returned no unit", name)
	}

	return u, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Register adds a unit factory to the DefaultRegistry, panicking on duplicates.
// Meant to be called from the init function of a migration file.
func Register(name string, f Factory) {
	DefaultRegistry.MustRegister(name, f)
}
