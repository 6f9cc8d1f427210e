package batchmig

import (
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/internal/source"
	"github.com/denismitr/batchmig/migration"
	"io"
)

type OptionFunc func(*Migrator) error

type (
	sourceConfig struct {
		ext      string
		registry *migration.Registry
	}

	SourceConfigurator func(sc *sourceConfig)
)

func UseColorLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

// UseLogrus reports through a logrus logger writing to out at the given level
func UseLogrus(out io.Writer, level string, printSql bool) OptionFunc {
	return func(m *Migrator) error {
		lg, err := logger.NewLogrus(out, level, printSql)
		if err != nil {
			return err
		}

		m.lg = lg
		return nil
	}
}

func WithLogger(lg logger.Logger) OptionFunc {
	return func(m *Migrator) error {
		m.lg = lg
		return nil
	}
}

// UseLocalFolderSource discovers migrations from file names in folder
func UseLocalFolderSource(folder string, configurators ...SourceConfigurator) OptionFunc {
	sc := sourceConfig{ext: source.GoExtension, registry: migration.DefaultRegistry}
	for _, c := range configurators {
		c(&sc)
	}

	return func(m *Migrator) error {
		m.sourceFn = func(lg logger.Logger) (source.Source, error) {
			return source.NewLocalFSSource(folder, sc.ext, sc.registry, lg)
		}

		return nil
	}
}

// UseInMemorySource serves the given keys, resolving them through registry
func UseInMemorySource(registry *migration.Registry, keys ...string) OptionFunc {
	return func(m *Migrator) error {
		s, err := source.NewInMemorySource(registry, keys...)
		if err != nil {
			return err
		}

		m.sourceFn = func(logger.Logger) (source.Source, error) {
			return s, nil
		}

		return nil
	}
}

func WithExtension(ext string) SourceConfigurator {
	return func(sc *sourceConfig) {
		sc.ext = ext
	}
}

func WithRegistry(registry *migration.Registry) SourceConfigurator {
	return func(sc *sourceConfig) {
		sc.registry = registry
	}
}

// WithDirectories lists folders created on the first operation when absent
func WithDirectories(dirs ...string) OptionFunc {
	return func(m *Migrator) error {
		m.directories = append(m.directories, dirs...)
		return nil
	}
}

// WithUnitSavepoints wraps every unit in a savepoint, so a failed unit
// leaves nothing behind. Postgres turns it on by itself.
func WithUnitSavepoints() OptionFunc {
	return func(m *Migrator) error {
		m.savepoints = true
		return nil
	}
}

// WithAbortOnFailure rolls back the whole batch on the first failed
// migration instead of reporting it and carrying on
func WithAbortOnFailure() OptionFunc {
	return func(m *Migrator) error {
		m.abortOnFailure = true
		return nil
	}
}
