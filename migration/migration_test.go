package migration

import (
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
	"time"
)

func Test_EntityNameCanBeDerivedFromKey(t *testing.T) {
	tt := []struct {
		key    string
		entity string
	}{
		{key: "20180101120000_create_posts_table", entity: "CreatePostsTable"},
		{key: "2018_01_01_120000_create_posts_table", entity: "CreatePostsTable"},
		{key: "2020_10_12_000001_add_votes_to_users", entity: "AddVotesToUsers"},
		{key: "1596897167_create_foo_table", entity: "CreateFooTable"},
		{key: "create_bar_table", entity: "CreateBarTable"},
		{key: "2018_01_01_120000_2fa_codes", entity: "2faCodes"},
	}

	for _, tc := range tt {
		t.Run(tc.key, func(t *testing.T) {
			assert.Equal(t, tc.entity, EntityName(tc.key))
		})
	}
}

func Test_StudlyAndSnakeConversions(t *testing.T) {
	assert.Equal(t, "CreatePostsTable", Studly("create_posts_table"))
	assert.Equal(t, "CreatePostsTable", Studly("create posts-table"))
	assert.Equal(t, "", Studly("___"))

	assert.Equal(t, "create_posts_table", Snake("CreatePostsTable"))
	assert.Equal(t, "create_posts_table", Snake("create posts table"))
	assert.Equal(t, "create_posts_table", Snake("create_posts_table"))
}

func Test_KeyCanBeCreatedFromClockAndName(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2018, 1, 1, 12, 0, 0, 0, time.UTC)
	}

	t.Run("human readable name", func(t *testing.T) {
		key, err := CreateKey(clock, "Create posts table")
		require.NoError(t, err)
		assert.Equal(t, "2018_01_01_120000_create_posts_table", key)
		assert.Equal(t, "CreatePostsTable", EntityName(key))
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := CreateKey(clock, "   ")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidKey))
	})

	t.Run("name that cannot become a type is rejected", func(t *testing.T) {
		for _, name := range []string{"2fa codes", "123_users", "_private"} {
			_, err := CreateKey(clock, name)
			require.Error(t, err, name)
			assert.True(t, errors.Is(err, ErrInvalidKey), name)
		}
	})
}

func Test_DiffPreservesSourceOrder(t *testing.T) {
	all := []string{"2018_01_01_000001_a", "2018_01_01_000002_b", "2018_01_01_000003_c", "2018_01_01_000004_d"}
	ran := []string{"2018_01_01_000003_c", "2018_01_01_000001_a", "1999_01_01_000000_gone"}

	assert.Equal(t, []string{"2018_01_01_000002_b", "2018_01_01_000004_d"}, Diff(all, ran))
	assert.Empty(t, Diff(ran[:2], ran))
	assert.Equal(t, all, Diff(all, nil))
}

func Test_SortKeysIsChronological(t *testing.T) {
	keys := []string{"2019_01_01_000000_c", "2018_06_01_000000_b", "2018_01_01_120000_a"}
	SortKeys(keys)
	assert.Equal(t, []string{"2018_01_01_120000_a", "2018_06_01_000000_b", "2019_01_01_000000_c"}, keys)
}

type panickingUnit struct{}

func (panickingUnit) Up(context.Context, Executor) error   { panic("boom") }
func (panickingUnit) Down(context.Context, Executor) error { return errors.New("cannot go down") }

func Test_ExecuteCapturesFailuresAsOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("panic is converted into a failed outcome", func(t *testing.T) {
		o := Execute(ctx, nil, "2018_01_01_000000_boom", panickingUnit{}, DirectionUp)
		assert.False(t, o.Ok())
		assert.Equal(t, DirectionUp, o.Direction)
		assert.Contains(t, o.Err.Error(), "boom")
	})

	t.Run("returned error is wrapped with key and direction", func(t *testing.T) {
		o := Execute(ctx, nil, "2018_01_01_000000_boom", panickingUnit{}, DirectionDown)
		require.Error(t, o.Err)
		assert.Equal(t, "2018_01_01_000000_boom", o.Key)
		assert.Contains(t, o.Err.Error(), "cannot go down")
		assert.Contains(t, o.Err.Error(), "going down")
	})

	t.Run("empty sql unit succeeds", func(t *testing.T) {
		o := Execute(ctx, nil, "2018_01_01_000000_empty", NewSQLUnit(nil, nil), DirectionUp)
		assert.True(t, o.Ok())
	})
}

func Test_RegistryResolvesRegisteredUnits(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("CreateFooTable", func() Unit {
		return NewSQLUnit([]string{"CREATE TABLE foo (id INT)"}, []string{"DROP TABLE foo"})
	}))

	t.Run("registered unit is constructed on every resolve", func(t *testing.T) {
		u1, err := r.Resolve("CreateFooTable")
		require.NoError(t, err)
		u2, err := r.Resolve("CreateFooTable")
		require.NoError(t, err)

		assert.NotSame(t, u1, u2)
		assert.True(t, r.Has("CreateFooTable"))
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		err := r.Register("CreateFooTable", func() Unit { return &SQLUnit{} })
		assert.True(t, errors.Is(err, ErrAlreadyRegistered))
		assert.Panics(t, func() {
			r.MustRegister("CreateFooTable", func() Unit { return &SQLUnit{} })
		})
	})

	t.Run("unknown unit is not found", func(t *testing.T) {
		_, err := r.Resolve("CreateBarTable")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	assert.Equal(t, []string{"CreateFooTable"}, r.Names())
}

func Test_SQLUnitCanBeParsedFromMarkedFile(t *testing.T) {
	t.Run("up and down sections with multi line statements", func(t *testing.T) {
		src := `
-- @migrate/up
CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	title VARCHAR(255)
);
-- a comment
INSERT INTO posts (title) VALUES ('hello');

-- @migrate/down
DROP TABLE posts;
`
		u, err := ParseSQL(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, u.Migrate, 2)
		assert.Equal(t, "CREATE TABLE posts (\nid INTEGER PRIMARY KEY,\ntitle VARCHAR(255)\n);", u.Migrate[0])
		assert.Equal(t, "INSERT INTO posts (title) VALUES ('hello');", u.Migrate[1])
		assert.Equal(t, []string{"DROP TABLE posts;"}, u.Rollback)
	})

	t.Run("missing trailing semicolon still yields the statement", func(t *testing.T) {
		u, err := ParseSQL(strings.NewReader("--@migrate/up\nCREATE TABLE foo (id INT)\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"CREATE TABLE foo (id INT)"}, u.Migrate)
		assert.Empty(t, u.Rollback)
	})

	t.Run("statements before a marker are rejected", func(t *testing.T) {
		_, err := ParseSQL(strings.NewReader("CREATE TABLE foo (id INT);\n-- @migrate/up\n"))
		assert.True(t, errors.Is(err, ErrNoDirectionMarker))
	})
}

func Test_SQLUnitCanAssembleScriptsInOne(t *testing.T) {
	tt := []struct {
		name            string
		migrate         []string
		migrateScripts  string
		rollback        []string
		rollbackScripts string
	}{
		{
			name:            "single scripts with no trailing semicolon",
			migrate:         []string{"CREATE foo"},
			migrateScripts:  "CREATE foo;",
			rollback:        []string{"DROP foo"},
			rollbackScripts: "DROP foo;",
		},
		{
			name:            "two scripts with one with trailing semicolon",
			migrate:         []string{"CREATE TABLE foo;", "INSERT INTO foo (name) VALUES (?)"},
			migrateScripts:  "CREATE TABLE foo;\nINSERT INTO foo (name) VALUES (?);",
			rollback:        []string{"DROP TABLE foo"},
			rollbackScripts: "DROP TABLE foo;",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			u := NewSQLUnit(tc.migrate, tc.rollback)

			assert.Equal(t, tc.migrateScripts, u.MigrateScripts())
			assert.Equal(t, tc.rollbackScripts, u.RollbackScripts())
		})
	}
}

func Test_PlainStatementsCanBeParsed(t *testing.T) {
	stmts, err := ParseStatements(strings.NewReader("-- users\nINSERT INTO users (name)\nVALUES ('john');\n\nINSERT INTO users (name) VALUES ('jane');\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"INSERT INTO users (name)\nVALUES ('john');", "INSERT INTO users (name) VALUES ('jane');"}, stmts)

	stmts, err = ParseStatements(strings.NewReader("-- nothing yet\n"))
	require.NoError(t, err)
	assert.Empty(t, stmts)
}
