// Package cli is the batchmig command line. The stock binary in cmd runs SQL
// migrations and seeders. Go migrations and seeders register themselves from
// init, so they need a binary of their own that imports them:
//
//	import (
//		"os"
//
//		"github.com/denismitr/batchmig/cli"
//		_ "example.com/app/database/migrations"
//		_ "example.com/app/database/seeds"
//	)
//
//	func main() {
//		os.Exit(cli.Run(os.Args[1:], os.Stdout))
//	}
package cli

import (
	"context"
	"github.com/denismitr/batchmig"
	"github.com/denismitr/batchmig/internal/config"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/internal/source"
	"github.com/denismitr/batchmig/migration"
	"github.com/denismitr/batchmig/seed"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"io"
	"log"
	"path/filepath"
	"time"
)

var ErrSourceTypeIsNotValid = errors.New("source type is not valid")

type (
	CloserFunc func() error

	OptionFunc func(app *App)

	// App wires one migrator and one seed runner to the database of a config
	App struct {
		cfg        config.Config
		lg         logger.Logger
		db         *sqlx.DB
		source     *source.LocalFSSource
		migrator   *batchmig.Migrator
		seeder     *seed.Runner
		migrations *migration.Registry
		seeds      *seed.Registry
	}
)

func WithMigrationRegistry(r *migration.Registry) OptionFunc {
	return func(app *App) {
		app.migrations = r
	}
}

func WithSeedRegistry(r *seed.Registry) OptionFunc {
	return func(app *App) {
		app.seeds = r
	}
}

func NewFromYaml(path string, out io.Writer, opts ...OptionFunc) (*App, CloserFunc, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg, out, opts...)
}

func New(cfg config.Config, out io.Writer, opts ...OptionFunc) (*App, CloserFunc, error) {
	app := &App{cfg: cfg, migrations: migration.DefaultRegistry, seeds: seed.DefaultRegistry}
	for _, o := range opts {
		o(app)
	}

	lg, err := createLogger(cfg.Log, out)
	if err != nil {
		return nil, nil, err
	}

	app.lg = lg

	db, dbOption, err := openDatabase(cfg.DatabaseConfig())
	if err != nil {
		return nil, nil, err
	}

	app.db = db

	migratorOpts := []batchmig.OptionFunc{
		batchmig.WithLogger(lg),
		dbOption,
		batchmig.UseLocalFolderSource(
			cfg.MigrationDirectory(),
			batchmig.WithExtension(cfg.Extension),
			batchmig.WithRegistry(app.migrations),
		),
		batchmig.WithDirectories(cfg.AllDatabaseDirectories()...),
	}

	if cfg.AbortOnFailure {
		migratorOpts = append(migratorOpts, batchmig.WithAbortOnFailure())
	}

	m, migratorCloser, err := batchmig.NewMigrator(migratorOpts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	lfs, ok := m.Source().(*source.LocalFSSource)
	if !ok {
		_ = migratorCloser()
		_ = db.Close()
		return nil, nil, ErrSourceTypeIsNotValid
	}

	seeder, seederCloser := seed.NewRunner(
		db,
		seed.WithFolder(cfg.SeedDirectory()),
		seed.WithExtension(cfg.SeedExtension),
		seed.WithRegistry(app.seeds),
		seed.WithLogger(lg),
	)

	app.migrator = m
	app.source = lfs
	app.seeder = seeder

	closer := func() error {
		var result error
		for _, c := range []func() error{seederCloser, migratorCloser, db.Close} {
			if err := c(); err != nil && result == nil {
				result = err
			}
		}

		return result
	}

	return app, closer, nil
}

func (app *App) Logger() logger.Logger {
	return app.lg
}

func (app *App) Migrate(ctx context.Context) ([]string, error) {
	return app.migrator.Run(ctx)
}

// Rollback reverses the given number of recent batches, or exactly the given batch
func (app *App) Rollback(ctx context.Context, steps int, batch uint) ([]string, error) {
	return app.migrator.Rollback(ctx, batchmig.CreateConfigurators(steps, batch)...)
}

func (app *App) Reset(ctx context.Context) ([]string, error) {
	return app.migrator.Reset(ctx)
}

func (app *App) Refresh(ctx context.Context) ([]string, error) {
	return app.migrator.Refresh(ctx)
}

func (app *App) Status(ctx context.Context) ([]batchmig.Status, error) {
	return app.migrator.Status(ctx)
}

func (app *App) Seed(ctx context.Context, name string) error {
	return app.seeder.Run(ctx, name)
}

// MakeMigration creates an empty migration file and returns its path
func (app *App) MakeMigration(name string) (string, error) {
	key, err := app.source.Create(name, time.Now)
	if err != nil {
		return "", err
	}

	return filepath.Join(app.source.Folder(), key+app.source.Extension()), nil
}

// MakeSeeder creates an empty seeder file and returns its path
func (app *App) MakeSeeder(name string) (string, error) {
	return seed.MakeSeeder(app.cfg.SeedDirectory(), name, app.cfg.SeedExtension)
}

func createLogger(lc config.Log, out io.Writer) (logger.Logger, error) {
	switch lc.Format {
	case config.FormatLogrus:
		return logger.NewLogrus(out, lc.Level, lc.SQL)
	case config.FormatBW:
		return logger.NewBWLogger(log.New(out, "", 0), lc.SQL, lc.Debug), nil
	case config.FormatColor, "":
		return logger.NewColorLogger(log.New(out, "", 0), lc.SQL, lc.Debug), nil
	default:
		return nil, errors.Wrapf(config.ErrInvalidConfig, "unknown log format [%s]", lc.Format)
	}
}
