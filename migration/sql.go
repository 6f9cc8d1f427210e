package migration

import (
	"bufio"
	"bytes"
	"context"
	"github.com/pkg/errors"
	"io"
	"regexp"
	"strings"
)

var ErrNoDirectionMarker = errors.New("sql migration must start with a direction marker")

var directionMarker = regexp.MustCompile(`^--\s?@migrate/(up|down)$`)

// SQLUnit is a unit made of plain statements
type SQLUnit struct {
	Migrate  []string
	Rollback []string
}

var _ Unit = (*SQLUnit)(nil)

func NewSQLUnit(migrate, rollback []string) *SQLUnit {
	return &SQLUnit{Migrate: migrate, Rollback: rollback}
}

func (u *SQLUnit) Up(ctx context.Context, ex Executor) error {
	return execAll(ctx, ex, u.Migrate)
}

func (u *SQLUnit) Down(ctx context.Context, ex Executor) error {
	return execAll(ctx, ex, u.Rollback)
}

// MigrateScripts joins the forward statements into one script
func (u *SQLUnit) MigrateScripts() string {
	return joinScripts(u.Migrate)
}

// RollbackScripts joins the reverse statements into one script
func (u *SQLUnit) RollbackScripts() string {
	return joinScripts(u.Rollback)
}

// ParseSQL reads a file split into sections by "-- @migrate/up" and
// "-- @migrate/down" markers. A statement ends on a line ending with ";".
func ParseSQL(r io.Reader) (*SQLUnit, error) {
	u := &SQLUnit{}
	if err := parseSections(r, u, nil); err != nil {
		return nil, err
	}

	return u, nil
}

// ParseStatements reads plain statements that need no direction markers
func ParseStatements(r io.Reader) ([]string, error) {
	u := &SQLUnit{}
	if err := parseSections(r, u, &u.Migrate); err != nil {
		return nil, err
	}

	return u.Migrate, nil
}

func parseSections(r io.Reader, u *SQLUnit, current *[]string) error {
	var stmt bytes.Buffer

	flush := func() {
		s := strings.TrimSpace(stmt.String())
		stmt.Reset()
		if s != "" && current != nil {
			*current = append(*current, s)
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if matches := directionMarker.FindStringSubmatch(line); len(matches) > 1 {
			flush()
			if matches[1] == "up" {
				current = &u.Migrate
			} else {
				current = &u.Rollback
			}

			continue
		}

		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if current == nil {
			return ErrNoDirectionMarker
		}

		if stmt.Len() > 0 {
			stmt.WriteString("\n")
		}
		stmt.WriteString(line)

		if strings.HasSuffix(line, ";") {
			flush()
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "could not read sql statements")
	}

	flush()

	return nil
}

func execAll(ctx context.Context, ex Executor, scripts []string) error {
	for _, script := range scripts {
		if _, err := ex.ExecContext(ctx, script); err != nil {
			return errors.Wrapf(err, "could not execute script [%s]", script)
		}
	}

	return nil
}

func joinScripts(scripts []string) string {
	var ms bytes.Buffer

	for i := range scripts {
		ms.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			ms.WriteString(";")
		}

		if i < len(scripts)-1 {
			ms.WriteString("\n")
		}
	}

	return ms.String()
}
