package migration

import (
	"bytes"
	"context"
	"database/sql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"sort"
	"strings"
	"time"
	"unicode"
)

var ErrNotFound = errors.New("migration not found")
var ErrInvalidKey = errors.New("invalid migration key")

const (
	// KeyTimestampLayout renders the four leading timestamp tokens of a key
	KeyTimestampLayout = "2006_01_02_150405"

	timestampTokens = 4
)

type (
	Batch uint

	// Record is a single row of the migrations ledger
	Record struct {
		Name  string
		Batch Batch
	}

	// Executor is what migration bodies, seeders and the ledger run their
	// statements against. Both *sqlx.Conn and *sqlx.Tx satisfy it.
	Executor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		Rebind(query string) string
	}

	// Unit is a single versioned schema change
	Unit interface {
		Up(ctx context.Context, ex Executor) error
		Down(ctx context.Context, ex Executor) error
	}

	Factory   func() Unit
	ClockFunc func() time.Time
)

// EntityName derives the name a unit is registered under from its key:
// the leading timestamp tokens are dropped and the rest is rendered in
// StudlyCase, so 2018_01_01_120000_create_posts_table and
// 20180101120000_create_posts_table both give CreatePostsTable.
func EntityName(key string) string {
	segments := strings.Split(key, "_")

	dropped := 0
	for dropped < timestampTokens && dropped < len(segments)-1 && isNumeric(segments[dropped]) {
		dropped++
	}

	return Studly(strings.Join(segments[dropped:], "_"))
}

// Studly turns snake, kebab or space separated words into CapitalizedWords
func Studly(s string) string {
	var buf bytes.Buffer

	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})

	for _, w := range words {
		buf.WriteString(ucFirst(w))
	}

	return buf.String()
}

// Snake turns a human or StudlyCase name into snake_case
func Snake(s string) string {
	var buf bytes.Buffer

	r := []rune(strings.TrimSpace(s))
	for i := range r {
		switch {
		case r[i] == ' ' || r[i] == '-':
			buf.WriteRune('_')
		case unicode.IsUpper(r[i]):
			if i > 0 && r[i-1] != ' ' && r[i-1] != '_' && r[i-1] != '-' && !unicode.IsUpper(r[i-1]) {
				buf.WriteRune('_')
			}
			buf.WriteRune(unicode.ToLower(r[i]))
		default:
			buf.WriteRune(r[i])
		}
	}

	return buf.String()
}

// CreateKey builds a new sortable unit key from the clock and a descriptive name
func CreateKey(cf ClockFunc, name string) (string, error) {
	snake := Snake(name)
	if snake == "" {
		return "", errors.Wrapf(ErrInvalidKey, "empty name [%s]", name)
	}

	if !StartsWithLetter(snake) {
		return "", errors.Wrapf(ErrInvalidKey, "name [%s] must start with a letter", name)
	}

	var result bytes.Buffer
	result.WriteString(cf().Format(KeyTimestampLayout))
	result.WriteString("_")
	result.WriteString(snake)

	return result.String(), nil
}

// Diff returns the keys of all that are not in ran, preserving the order of all
func Diff(all, ran []string) []string {
	applied := make(map[string]struct{}, len(ran))
	for i := range ran {
		applied[ran[i]] = struct{}{}
	}

	result := make([]string, 0, len(all))
	for i := range all {
		if _, ok := applied[all[i]]; !ok {
			result = append(result, all[i])
		}
	}

	return result
}

// SortKeys sorts keys lexically which, given the timestamp prefix, is chronological
func SortKeys(keys []string) {
	sort.Strings(keys)
}

// StartsWithLetter reports whether s can open a Go identifier once rendered StudlyCase
func StartsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}

	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}

func ucFirst(s string) string {
	r := []rune(s)

	if len(r) == 0 {
		return ""
	}

	return string(unicode.ToUpper(r[0])) + string(r[1:])
}
