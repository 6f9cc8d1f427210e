package source

import (
	"bytes"
	"context"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"
)

const DefaultMigrationsFolder = "./database/migrations"

const (
	GoExtension  = ".go"
	SQLExtension = ".sql"
)

var goStub = template.Must(template.New("migration").Parse(`package {{ .Package }}

import (
	"context"
	"github.com/denismitr/batchmig/migration"
)

type {{ .Entity }} struct{}

func init() {
	migration.Register("{{ .Entity }}", func() migration.Unit { return &{{ .Entity }}{} })
}

func (m *{{ .Entity }}) Up(ctx context.Context, ex migration.Executor) error {
	return nil
}

func (m *{{ .Entity }}) Down(ctx context.Context, ex migration.Executor) error {
	return nil
}
`))

const sqlStub = "-- @migrate/up\n\n-- @migrate/down\n"

// LocalFSSource discovers keys from file names in a folder. SQL files are
// parsed on demand, any other extension is resolved through the registry.
type LocalFSSource struct {
	folder   string
	ext      string
	registry *migration.Registry
	lg       logger.Logger
}

var _ Source = (*LocalFSSource)(nil)

func NewLocalFSSource(folder, ext string, registry *migration.Registry, lg logger.Logger) (*LocalFSSource, error) {
	if folder == "" {
		folder = DefaultMigrationsFolder
	}

	if ext == "" {
		ext = GoExtension
	}

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if registry == nil {
		registry = migration.DefaultRegistry
	}

	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &LocalFSSource{folder: folder, ext: ext, registry: registry, lg: lg}, nil
}

func (lfs *LocalFSSource) Folder() string {
	return lfs.folder
}

func (lfs *LocalFSSource) Extension() string {
	return lfs.ext
}

func (lfs *LocalFSSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && info.IsDir()
}

func (lfs *LocalFSSource) ListAll(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(lfs.folder)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keys from folder %s", lfs.folder)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !entry.Type().IsRegular() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != lfs.ext || strings.HasSuffix(name, "_test.go") {
			continue
		}

		keys = append(keys, strings.TrimSuffix(name, lfs.ext))
	}

	migration.SortKeys(keys)

	return keys, nil
}

func (lfs *LocalFSSource) Resolve(_ context.Context, key string) (migration.Unit, error) {
	path := lfs.pathOf(key)

	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return nil, errors.Wrapf(ErrNotFound, "no migration file at [%s]", path)
	} else if err != nil {
		return nil, errors.Wrapf(err, "could not stat migration file [%s]", path)
	}

	if lfs.ext == SQLExtension {
		return lfs.readSQL(path)
	}

	entity := migration.EntityName(key)
	if !lfs.registry.Has(entity) {
		return nil, errors.Wrapf(ErrNotFound, "%s is not registered for file [%s]", entity, path)
	}

	return lfs.registry.Resolve(entity)
}

// AlreadyExists reports whether any key in the folder carries the given name
func (lfs *LocalFSSource) AlreadyExists(name string) bool {
	keys, err := lfs.ListAll(context.Background())
	if err != nil {
		return false
	}

	entity := migration.Studly(migration.Snake(name))
	for i := range keys {
		if migration.EntityName(keys[i]) == entity {
			return true
		}
	}

	return false
}

// Create writes an empty migration named after the clock and name, returning its key
func (lfs *LocalFSSource) Create(name string, cf migration.ClockFunc) (string, error) {
	if lfs.AlreadyExists(name) {
		return "", errors.Wrapf(ErrMigrationAlreadyExists, "%s", migration.Studly(migration.Snake(name)))
	}

	key, err := migration.CreateKey(cf, name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(lfs.folder, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create folder [%s]", lfs.folder)
	}

	var contents bytes.Buffer
	if lfs.ext == SQLExtension {
		contents.WriteString(sqlStub)
	} else {
		data := struct{ Package, Entity string }{
			Package: PackageName(lfs.folder),
			Entity:  migration.EntityName(key),
		}

		if err := goStub.Execute(&contents, data); err != nil {
			return "", errors.Wrapf(err, "could not render migration %s", key)
		}
	}

	path := lfs.pathOf(key)
	if err := os.WriteFile(path, contents.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "could not create file [%s]", path)
	}

	lfs.lg.Debugf("created migration file %s", path)

	return key, nil
}

func (lfs *LocalFSSource) readSQL(path string) (migration.Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open [%s]", path)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			lfs.lg.Error(closeErr)
		}
	}()

	u, err := migration.ParseSQL(f)
	if err != nil {
		return nil, errors.Wrapf(err, "file [%s]", path)
	}

	return u, nil
}

func (lfs *LocalFSSource) pathOf(key string) string {
	return filepath.Join(lfs.folder, key+lfs.ext)
}

// PackageName derives a valid Go package name from the last folder segment
func PackageName(folder string) string {
	abs, err := filepath.Abs(folder)
	if err != nil {
		abs = folder
	}

	var b strings.Builder
	for _, r := range strings.ToLower(filepath.Base(abs)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}

	name := b.String()
	if name == "" || unicode.IsDigit([]rune(name)[0]) {
		return "migrations"
	}

	return name
}
