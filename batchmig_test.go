package batchmig

import (
	"bytes"
	"context"
	"fmt"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/internal/source"
	"github.com/denismitr/batchmig/migration"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	usersKey    = "2018_01_01_000001_create_users_table"
	postsKey    = "2018_01_01_000002_create_posts_table"
	commentsKey = "2018_01_02_000001_create_comments_table"
	tagsKey     = "2018_01_03_000001_create_tags_table"
	brokenKey   = "2018_01_01_000003_create_broken_table"
	panicKey    = "2018_01_01_000004_create_panicking_table"
	invalidKey  = "2018_01_01_000001_create_invalid_table"
)

type tableUnit struct {
	table    string
	failUp   bool
	failDown bool
	panicUp  bool
	badSQL   bool
}

func (u tableUnit) Up(ctx context.Context, ex migration.Executor) error {
	if u.panicUp {
		panic("up blew up")
	}

	if u.badSQL {
		_, err := ex.ExecContext(ctx, "INSERT INTO batchmig_no_such_table (id) VALUES (1)")
		return err
	}

	if _, err := ex.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY)", u.table)); err != nil {
		return err
	}

	if u.failUp {
		return errors.New("up exploded")
	}

	return nil
}

func (u tableUnit) Down(ctx context.Context, ex migration.Executor) error {
	if u.failDown {
		return errors.New("down exploded")
	}

	_, err := ex.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", u.table))
	return err
}

func newRegistry(t *testing.T) *migration.Registry {
	t.Helper()

	r := migration.NewRegistry()
	r.MustRegister("CreateUsersTable", func() migration.Unit { return tableUnit{table: "users"} })
	r.MustRegister("CreatePostsTable", func() migration.Unit { return tableUnit{table: "posts"} })
	r.MustRegister("CreateCommentsTable", func() migration.Unit { return tableUnit{table: "comments"} })
	r.MustRegister("CreateTagsTable", func() migration.Unit { return tableUnit{table: "tags"} })
	r.MustRegister("CreateBrokenTable", func() migration.Unit { return tableUnit{table: "broken", failUp: true} })
	r.MustRegister("CreatePanickingTable", func() migration.Unit { return tableUnit{panicUp: true} })
	r.MustRegister("CreateInvalidTable", func() migration.Unit { return tableUnit{badSQL: true} })

	return r
}

func newSqliteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "batchmig.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newMigrator(t *testing.T, db *sqlx.DB, opts ...OptionFunc) *Migrator {
	t.Helper()

	opts = append([]OptionFunc{UseSqlite(db, WithSqliteMaxConnectionAttempts(2))}, opts...)

	m, closer, err := NewMigrator(opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, closer())
	})

	return m
}

func tableExists(t *testing.T, db *sqlx.DB, table string) bool {
	t.Helper()

	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	require.NoError(t, err)

	return count > 0
}

func records(t *testing.T, m *Migrator) []migration.Record {
	t.Helper()

	result, err := m.repo.Records(context.Background())
	require.NoError(t, err)

	return result
}

func Test_MigratorRequiresADatabase(t *testing.T) {
	m, closer, err := NewMigrator(UseInMemorySource(migration.NewRegistry()))
	assert.Nil(t, m)
	assert.Nil(t, closer)
	assert.True(t, errors.Is(err, ErrDatabaseNotConfigured))
}

func Test_MigratorCanBeInstantiatedWithDefaults(t *testing.T) {
	m := newMigrator(t, newSqliteDB(t))

	lfs, ok := m.Source().(*source.LocalFSSource)
	require.True(t, ok)
	assert.Equal(t, source.DefaultMigrationsFolder, lfs.Folder())
	assert.Equal(t, source.GoExtension, lfs.Extension())
}

func Test_RunWithNothingPending(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(newRegistry(t)), WithLogger(mem))

	migrated, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, migrated)
	assert.Equal(t, []string{"No pending migrations to run."}, mem.Messages(logger.LevelInfo))
	assert.Empty(t, mem.Messages(logger.LevelSuccess))
	assert.True(t, tableExists(t, db, "migrations"))
	assert.Empty(t, records(t, m))
}

func Test_RunAppliesEveryPendingMigrationAsOneBatch(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(newRegistry(t), postsKey, usersKey, commentsKey), WithLogger(mem))

	migrated, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{usersKey, postsKey, commentsKey}, migrated)

	assert.Equal(t, []migration.Record{
		{Name: usersKey, Batch: 1},
		{Name: postsKey, Batch: 1},
		{Name: commentsKey, Batch: 1},
	}, records(t, m))

	assert.Equal(t, []string{
		"Migrated " + usersKey + ".",
		"Migrated " + postsKey + ".",
		"Migrated " + commentsKey + ".",
	}, mem.Messages(logger.LevelSuccess))

	for _, table := range []string{"users", "posts", "comments"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	t.Run("running again finds nothing pending", func(t *testing.T) {
		mem.Reset()

		migrated, err := m.Run(ctx)
		require.NoError(t, err)
		assert.Empty(t, migrated)
		assert.Equal(t, []string{"No pending migrations to run."}, mem.Messages(logger.LevelInfo))
		assert.Len(t, records(t, m), 3)
	})
}

func Test_NextBatchIsPreviousMaxPlusOne(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	registry := newRegistry(t)

	first := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey))
	_, err := first.Run(ctx)
	require.NoError(t, err)

	second := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey, commentsKey, tagsKey))
	migrated, err := second.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{commentsKey, tagsKey}, migrated)

	assert.Equal(t, []migration.Record{
		{Name: usersKey, Batch: 1},
		{Name: postsKey, Batch: 1},
		{Name: commentsKey, Batch: 2},
		{Name: tagsKey, Batch: 2},
	}, records(t, second))
}

func Test_RollbackReversesTheMostRecentBatch(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	registry := newRegistry(t)
	mem := logger.NewMemoryLogger()

	_, err := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey)).Run(ctx)
	require.NoError(t, err)

	m := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey, commentsKey, tagsKey), WithLogger(mem))
	_, err = m.Run(ctx)
	require.NoError(t, err)
	mem.Reset()

	rolledBack, err := m.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{commentsKey, tagsKey}, rolledBack)
	assert.Equal(t, []string{
		"Rolled back " + tagsKey + ".",
		"Rolled back " + commentsKey + ".",
	}, mem.Messages(logger.LevelSuccess))

	assert.False(t, tableExists(t, db, "comments"))
	assert.False(t, tableExists(t, db, "tags"))
	assert.True(t, tableExists(t, db, "users"))
	assert.Len(t, records(t, m), 2)

	t.Run("more steps than batches reverses everything", func(t *testing.T) {
		rolledBack, err := m.Rollback(ctx, WithSteps(5))
		require.NoError(t, err)
		assert.Equal(t, []string{usersKey, postsKey}, rolledBack)
		assert.Empty(t, records(t, m))
	})

	t.Run("nothing left to rollback", func(t *testing.T) {
		mem.Reset()

		rolledBack, err := m.Rollback(ctx)
		require.NoError(t, err)
		assert.Empty(t, rolledBack)
		assert.Equal(t, []string{"Nothing to rollback."}, mem.Messages(logger.LevelInfo))
	})
}

func Test_RollbackOfASpecificBatch(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	registry := newRegistry(t)

	_, err := newMigrator(t, db, UseInMemorySource(registry, usersKey)).Run(ctx)
	require.NoError(t, err)

	m := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey))
	_, err = m.Run(ctx)
	require.NoError(t, err)

	rolledBack, err := m.Rollback(ctx, WithBatch(1), WithSteps(2))
	require.NoError(t, err)
	assert.Equal(t, []string{usersKey}, rolledBack)
	assert.Equal(t, []migration.Record{{Name: postsKey, Batch: 2}}, records(t, m))
}

func Test_ResetAndRefresh(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry(t)

	prepare := func(t *testing.T) (*sqlx.DB, *Migrator) {
		db := newSqliteDB(t)

		_, err := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey)).Run(ctx)
		require.NoError(t, err)

		m := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey, commentsKey))
		_, err = m.Run(ctx)
		require.NoError(t, err)

		return db, m
	}

	t.Run("reset reverses the whole history", func(t *testing.T) {
		db, m := prepare(t)

		rolledBack, err := m.Reset(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{usersKey, postsKey, commentsKey}, rolledBack)
		assert.Empty(t, records(t, m))

		for _, table := range []string{"users", "posts", "comments"} {
			assert.False(t, tableExists(t, db, table), table)
		}
	})

	t.Run("refresh re-applies everything as the next batch", func(t *testing.T) {
		db, m := prepare(t)

		migrated, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{usersKey, postsKey, commentsKey}, migrated)

		assert.Equal(t, []migration.Record{
			{Name: usersKey, Batch: 3},
			{Name: postsKey, Batch: 3},
			{Name: commentsKey, Batch: 3},
		}, records(t, m))

		assert.True(t, tableExists(t, db, "comments"))
	})

	t.Run("refresh of an empty database", func(t *testing.T) {
		m := newMigrator(t, newSqliteDB(t), UseInMemorySource(registry, usersKey))

		migrated, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{usersKey}, migrated)
		assert.Equal(t, []migration.Record{{Name: usersKey, Batch: 1}}, records(t, m))
	})
}

func Test_FailingMigrationIsReportedAndSkipped(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(newRegistry(t), usersKey, postsKey, brokenKey, panicKey, commentsKey), WithLogger(mem))

	migrated, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{usersKey, postsKey, brokenKey, panicKey, commentsKey}, migrated)

	assert.Equal(t, []migration.Record{
		{Name: usersKey, Batch: 1},
		{Name: postsKey, Batch: 1},
		{Name: commentsKey, Batch: 1},
	}, records(t, m))

	errs := mem.Messages(logger.LevelError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], brokenKey)
	assert.Contains(t, errs[0], "up exploded")
	assert.Contains(t, errs[1], panicKey)
	assert.Contains(t, errs[1], "up blew up")

	// partial effects of the failed body are committed with the batch
	assert.True(t, tableExists(t, db, "broken"))
	assert.True(t, tableExists(t, db, "comments"))
}

func Test_UnitSavepointsDiscardWhatAFailedMigrationDid(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(newRegistry(t), usersKey, brokenKey, panicKey, commentsKey), WithUnitSavepoints(), WithLogger(mem))

	migrated, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{usersKey, brokenKey, panicKey, commentsKey}, migrated)

	assert.Equal(t, []migration.Record{
		{Name: usersKey, Batch: 1},
		{Name: commentsKey, Batch: 1},
	}, records(t, m))
	assert.Len(t, mem.Messages(logger.LevelError), 2)

	assert.True(t, tableExists(t, db, "users"))
	assert.False(t, tableExists(t, db, "broken"))
	assert.True(t, tableExists(t, db, "comments"))
}

func Test_FailingRollbackKeepsTheRecord(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	registry := newRegistry(t)
	registry.MustRegister("CreateStubbornTable", func() migration.Unit { return tableUnit{table: "stubborn", failDown: true} })

	stubbornKey := "2018_01_01_000005_create_stubborn_table"
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(registry, usersKey, stubbornKey, commentsKey), WithLogger(mem))

	_, err := m.Run(ctx)
	require.NoError(t, err)

	rolledBack, err := m.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{usersKey, stubbornKey, commentsKey}, rolledBack)
	assert.Equal(t, []migration.Record{{Name: stubbornKey, Batch: 1}}, records(t, m))
	assert.Len(t, mem.Messages(logger.LevelError), 1)
	assert.True(t, tableExists(t, db, "stubborn"))
}

func Test_AbortOnFailureRollsBackTheWholeBatch(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	mem := logger.NewMemoryLogger()
	m := newMigrator(t, db, UseInMemorySource(newRegistry(t), usersKey, brokenKey, commentsKey), WithAbortOnFailure(), WithLogger(mem))

	migrated, err := m.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchAborted))
	assert.Nil(t, migrated)

	errs := mem.Messages(logger.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], brokenKey)

	assert.Empty(t, records(t, m))
	assert.False(t, tableExists(t, db, "users"))
	assert.False(t, tableExists(t, db, "broken"))
}

func Test_UnresolvableMigrationIsFatal(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered go migration rolls back the batch", func(t *testing.T) {
		db := newSqliteDB(t)
		dir := t.TempDir()
		for _, key := range []string{usersKey, "2018_01_01_000009_create_unknown_table"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, key+".go"), []byte("package migrations\n"), 0644))
		}

		m := newMigrator(t, db, UseLocalFolderSource(dir, WithRegistry(newRegistry(t))))

		_, err := m.Run(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, migration.ErrNotFound))
		assert.Contains(t, err.Error(), "CreateUnknownTable")
		assert.Empty(t, records(t, m))
		assert.False(t, tableExists(t, db, "users"))
	})

	t.Run("missing file on rollback carries the path", func(t *testing.T) {
		db := newSqliteDB(t)
		dir := t.TempDir()
		up := "-- @migrate/up\nCREATE TABLE foo (id INTEGER PRIMARY KEY);\n-- @migrate/down\nDROP TABLE foo;\n"
		path := filepath.Join(dir, "2018_01_01_000000_create_foo_table.sql")
		require.NoError(t, os.WriteFile(path, []byte(up), 0644))

		m := newMigrator(t, db, UseLocalFolderSource(dir, WithExtension(".sql")))

		migrated, err := m.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2018_01_01_000000_create_foo_table"}, migrated)
		assert.True(t, tableExists(t, db, "foo"))

		require.NoError(t, os.Remove(path))

		_, err = m.Rollback(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, source.ErrNotFound))
		assert.Contains(t, err.Error(), path)
		assert.Len(t, records(t, m), 1)
	})
}

func Test_SetUpPreparesDirectoriesOnce(t *testing.T) {
	ctx := context.Background()
	dirs := []string{
		filepath.Join(t.TempDir(), "database", "migrations"),
		filepath.Join(t.TempDir(), "database", "seeds"),
	}

	m := newMigrator(t, newSqliteDB(t), UseInMemorySource(newRegistry(t)), WithDirectories(dirs...))

	_, err := m.Run(ctx)
	require.NoError(t, err)

	for _, dir := range dirs {
		assert.DirExists(t, dir)
	}

	h := m.h
	_, err = m.Rollback(ctx)
	require.NoError(t, err)
	assert.Same(t, h, m.h)
}

func Test_Status(t *testing.T) {
	ctx := context.Background()
	db := newSqliteDB(t)
	registry := newRegistry(t)

	_, err := newMigrator(t, db, UseInMemorySource(registry, usersKey, commentsKey)).Run(ctx)
	require.NoError(t, err)

	m := newMigrator(t, db, UseInMemorySource(registry, usersKey, postsKey))

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Status{
		{Key: usersKey, Ran: true, Batch: 1},
		{Key: postsKey},
		{Key: commentsKey, Ran: true, Batch: 1, Missing: true},
	}, statuses)
}

func Test_LogrusCanBeUsedAsOutput(t *testing.T) {
	out := new(bytes.Buffer)

	m := newMigrator(t, newSqliteDB(t), UseInMemorySource(newRegistry(t), usersKey), UseLogrus(out, "debug", false))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Migrated "+usersKey+".")
}
