package seed

import (
	"context"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"sort"
	"sync"
)

// ErrNotFound matches migration.ErrNotFound with errors.Is, so callers
// handling both kinds of lookup need a single check
var ErrNotFound error = notFoundError{}
var ErrAlreadyRegistered = errors.New("seeder already registered")

type notFoundError struct{}

func (notFoundError) Error() string {
	return "seeder not found"
}

func (notFoundError) Is(target error) bool {
	return target == migration.ErrNotFound
}

// Seeder fills tables with data. It may call other loaded seeders through the runner.
type Seeder interface {
	Run(ctx context.Context, ex migration.Executor, r *Runner) error
}

type Factory func() Seeder

// SeederFunc adapts a plain function to a Seeder
type SeederFunc func(ctx context.Context, ex migration.Executor, r *Runner) error

func (f SeederFunc) Run(ctx context.Context, ex migration.Executor, r *Runner) error {
	return f(ctx, ex, r)
}

var DefaultRegistry = NewRegistry()

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.Errorf("cannot register seeder [%s]", name)
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

func (r *Registry) factory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
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

// Register adds a seeder to the DefaultRegistry from the init function of a seed file
func Register(name string, f Factory) {
	DefaultRegistry.MustRegister(name, f)
}
