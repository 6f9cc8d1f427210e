package seed

import (
	"bytes"
	"fmt"
	"github.com/denismitr/batchmig/internal/source"
	"github.com/denismitr/batchmig/migration"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

var ErrSeederAlreadyExists = errors.New("seeder already exists")

var seederStub = template.Must(template.New("seeder").Parse(`package {{ .Package }}

import (
	"context"
	"github.com/denismitr/batchmig/migration"
	"github.com/denismitr/batchmig/seed"
)

type {{ .Name }} struct{}

func init() {
	seed.Register("{{ .Name }}", func() seed.Seeder { return &{{ .Name }}{} })
}

func (s *{{ .Name }}) Run(ctx context.Context, ex migration.Executor, r *seed.Runner) error {
	return nil
}
`))

const sqlSeederStub = "-- statements of the %s seeder, each ending with ;\n"

// MakeSeeder writes an empty seeder named name into folder and returns its path.
// The extension picks a Go seeder registering itself or a plain SQL file.
func MakeSeeder(folder, name, ext string) (string, error) {
	snake := migration.Snake(name)
	studly := migration.Studly(snake)
	if studly == "" || !migration.StartsWithLetter(snake) {
		return "", errors.Errorf("invalid seeder name [%s]", name)
	}

	if ext == "" {
		ext = DefaultExtension
	}

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	path := filepath.Join(folder, migration.Snake(studly)+ext)
	if _, err := os.Stat(path); err == nil {
		return "", errors.Wrapf(ErrSeederAlreadyExists, "[%s]", path)
	}

	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create folder [%s]", folder)
	}

	var contents bytes.Buffer
	if ext == SQLExtension {
		fmt.Fprintf(&contents, sqlSeederStub, studly)
	} else {
		data := struct{ Package, Name string }{Package: source.PackageName(folder), Name: studly}
		if err := seederStub.Execute(&contents, data); err != nil {
			return "", errors.Wrapf(err, "could not render seeder %s", studly)
		}
	}

	if err := os.WriteFile(path, contents.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "could not create file [%s]", path)
	}

	return path, nil
}
