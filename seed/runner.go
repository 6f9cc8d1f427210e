package seed

import (
	"context"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"strings"
)

const DefaultSeedsFolder = "./database/seeds"

const (
	DefaultExtension = GoExtension
	GoExtension      = ".go"
	SQLExtension     = ".sql"
)

var ErrNotRunning = errors.New("seeders can only be called while a seeder is running")

type CloserFunc func() error

type OptionFunc func(r *Runner)

// Runner loads every seeder found in the seeds folder and runs them by name
type Runner struct {
	folder      string
	ext         string
	registry    *Registry
	lg          logger.Logger
	connectOpts *sqlgateway.ConnectOptions
	connector   database.Connector

	loaded map[string]Seeder
	ex     migration.Executor
}

func NewRunner(db *sqlx.DB, opts ...OptionFunc) (*Runner, CloserFunc) {
	r := &Runner{
		folder:      DefaultSeedsFolder,
		ext:         DefaultExtension,
		registry:    DefaultRegistry,
		lg:          logger.NullLogger{},
		connectOpts: sqlgateway.NewDefaultConnectOptions(),
	}

	for _, o := range opts {
		o(r)
	}

	connector := sqlgateway.NewRetryingConnector(db, r.connectOpts)
	r.connector = connector

	return r, connector.Close
}

func WithFolder(folder string) OptionFunc {
	return func(r *Runner) {
		r.folder = folder
	}
}

func WithExtension(ext string) OptionFunc {
	return func(r *Runner) {
		if ext == "" {
			return
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		r.ext = ext
	}
}

func WithRegistry(registry *Registry) OptionFunc {
	return func(r *Runner) {
		r.registry = registry
	}
}

func WithLogger(lg logger.Logger) OptionFunc {
	return func(r *Runner) {
		r.lg = lg
	}
}

func WithConnectOptions(co *sqlgateway.ConnectOptions) OptionFunc {
	return func(r *Runner) {
		r.connectOpts = co
	}
}

// Run loads all the seeders and runs the named one in a transaction
func (r *Runner) Run(ctx context.Context, name string) error {
	if err := r.load(ctx); err != nil {
		return err
	}

	s, ok := r.loaded[name]
	if !ok {
		return errors.Wrapf(ErrNotFound, "seeder %s in [%s]", name, r.folder)
	}

	h, err := r.connector.Connect(ctx)
	if err != nil {
		r.lg.Error(err)
		return errors.Wrap(err, "could not connect to the database")
	}

	err = sqlgateway.Transact(ctx, h, func(ctx context.Context, ex migration.Executor) error {
		r.ex = ex
		defer func() { r.ex = nil }()

		return r.runOne(ctx, name, s)
	})

	if err != nil {
		r.lg.Error(err)
		return err
	}

	return nil
}

// Call runs another loaded seeder inside the transaction of the running one
func (r *Runner) Call(ctx context.Context, name string) error {
	if r.ex == nil {
		return ErrNotRunning
	}

	s, ok := r.loaded[name]
	if !ok {
		return errors.Wrapf(ErrNotFound, "seeder %s in [%s]", name, r.folder)
	}

	return r.runOne(ctx, name, s)
}

// Loaded returns the names of the seeders found by the last Run
func (r *Runner) Loaded() []string {
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}

	migration.SortKeys(names)

	return names
}

func (r *Runner) runOne(ctx context.Context, name string, s Seeder) error {
	r.lg.Debugf("seeding %s", name)

	if err := s.Run(ctx, r.ex, r); err != nil {
		return errors.Wrapf(err, "seeder %s failed", name)
	}

	r.lg.Successf("Seeded %s.", name)

	return nil
}

// load instantiates a seeder for every file in the folder, whatever is asked for,
// so that seeders can call each other. SQL files are seeders by themselves,
// any other extension needs a registration.
func (r *Runner) load(ctx context.Context) error {
	entries, err := os.ReadDir(r.folder)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "seeds folder [%s]", r.folder)
		}

		return errors.Wrapf(err, "could not read seeds folder [%s]", r.folder)
	}

	r.loaded = make(map[string]Seeder, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if !entry.Type().IsRegular() || filepath.Ext(name) != r.ext || strings.HasSuffix(name, "_test.go") {
			continue
		}

		seederName := migration.Studly(strings.TrimSuffix(name, r.ext))
		if r.ext == SQLExtension {
			r.loaded[seederName] = sqlSeeder{path: filepath.Join(r.folder, name)}
			continue
		}

		f, ok := r.registry.factory(seederName)
		if !ok {
			r.lg.Error(errors.Errorf("seed file [%s] has no registered %s seeder", filepath.Join(r.folder, name), seederName))
			continue
		}

		if s := f(); s != nil {
			r.loaded[seederName] = s
		}
	}

	return nil
}

// sqlSeeder executes the statements of a seed file
type sqlSeeder struct {
	path string
}

func (s sqlSeeder) Run(ctx context.Context, ex migration.Executor, _ *Runner) error {
	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrapf(err, "could not open seed file [%s]", s.path)
	}

	defer func() {
		_ = f.Close()
	}()

	stmts, err := migration.ParseStatements(f)
	if err != nil {
		return errors.Wrapf(err, "seed file [%s]", s.path)
	}

	for _, stmt := range stmts {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "could not execute [%s] from [%s]", stmt, s.path)
		}
	}

	return nil
}
