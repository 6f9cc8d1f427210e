package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/logger"
	"github.com/denismitr/batchmig/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"regexp"
)

var tableNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Repository is the SQL ledger of applied migrations
type Repository struct {
	lg      logger.Logger
	dialect Dialect
	ex      migration.Executor
}

var _ database.Repository = (*Repository)(nil)

type recordRow struct {
	Migration string `db:"migration"`
	Batch     uint   `db:"batch"`
}

func NewRepository(d Dialect, lg logger.Logger) (*Repository, error) {
	if !tableNameRegexp.MatchString(d.Table()) {
		return nil, errors.Wrapf(ErrInvalidTableName, "[%s]", d.Table())
	}

	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &Repository{dialect: d, lg: lg}, nil
}

func (r *Repository) SetLogger(lg logger.Logger) {
	r.lg = lg
}

func (r *Repository) SetConnection(ex migration.Executor) {
	r.ex = ex
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

func (r *Repository) Exists(ctx context.Context) (bool, error) {
	if r.ex == nil {
		return false, database.ErrConnectionNotSet
	}

	q, args := r.dialect.ExistsQuery()
	q = r.ex.Rebind(q)
	r.lg.SQL(q, args...)

	var count int
	if err := r.ex.QueryRowxContext(ctx, q, args...).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "could not check if table [%s] exists", r.dialect.Table())
	}

	return count > 0, nil
}

func (r *Repository) Create(ctx context.Context) error {
	return r.exec(ctx, r.dialect.CreateQuery(), "could not create migrations table")
}

func (r *Repository) Drop(ctx context.Context) error {
	return r.exec(ctx, r.dialect.DropQuery(), "could not drop migrations table")
}

func (r *Repository) GetRanMigrations(ctx context.Context, f database.Filter) ([]string, error) {
	if r.ex == nil {
		return nil, database.ErrConnectionNotSet
	}

	if f.Batch != 0 {
		q := fmt.Sprintf("SELECT migration FROM %s WHERE batch = ? ORDER BY migration ASC", r.dialect.Table())
		return r.readNames(ctx, q, f.Batch)
	}

	if f.Steps > 0 {
		minBatch, found, err := r.minBatchOfLast(ctx, f.Steps)
		if err != nil || !found {
			return nil, err
		}

		q := fmt.Sprintf(
			"SELECT migration FROM %s WHERE batch >= ? ORDER BY batch ASC, migration ASC",
			r.dialect.Table(),
		)

		return r.readNames(ctx, q, minBatch)
	}

	q := fmt.Sprintf("SELECT migration FROM %s ORDER BY batch ASC, migration ASC", r.dialect.Table())

	return r.readNames(ctx, q)
}

func (r *Repository) GetNextBatchNumber(ctx context.Context) (migration.Batch, error) {
	if r.ex == nil {
		return 0, database.ErrConnectionNotSet
	}

	q := fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s", r.dialect.Table())
	r.lg.SQL(q)

	var last int64
	if err := r.ex.QueryRowxContext(ctx, q).Scan(&last); err != nil {
		return 0, errors.Wrap(err, "could not read the last batch number")
	}

	return migration.Batch(last + 1), nil
}

func (r *Repository) Records(ctx context.Context) ([]migration.Record, error) {
	if r.ex == nil {
		return nil, database.ErrConnectionNotSet
	}

	q := fmt.Sprintf("SELECT migration, batch FROM %s ORDER BY batch ASC, migration ASC", r.dialect.Table())
	r.lg.SQL(q)

	rows, err := r.ex.QueryxContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "could not read migration records")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.lg.Error(closeErr)
		}
	}()

	var result []migration.Record
	for rows.Next() {
		var row recordRow
		if err := rows.StructScan(&row); err != nil {
			return result, errors.Wrap(err, "could not scan migration record")
		}

		result = append(result, migration.Record{Name: row.Migration, Batch: migration.Batch(row.Batch)})
	}

	if err := rows.Err(); err != nil {
		return result, errors.Wrap(err, "migration records iteration failed")
	}

	return result, nil
}

func (r *Repository) InsertRecord(ctx context.Context, ex migration.Executor, name string, batch migration.Batch) error {
	if ex == nil {
		return database.ErrConnectionNotSet
	}

	q := ex.Rebind(fmt.Sprintf("INSERT INTO %s (migration, batch) VALUES (?, ?)", r.dialect.Table()))
	r.lg.SQL(q, name, batch)

	if _, err := ex.ExecContext(ctx, q, name, uint64(batch)); err != nil {
		return errors.Wrapf(err, "could not insert migration record %s batch %d", name, batch)
	}

	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, ex migration.Executor, name string) error {
	if ex == nil {
		return database.ErrConnectionNotSet
	}

	q := ex.Rebind(fmt.Sprintf("DELETE FROM %s WHERE migration = ?", r.dialect.Table()))
	r.lg.SQL(q, name)

	if _, err := ex.ExecContext(ctx, q, name); err != nil {
		return errors.Wrapf(err, "could not delete migration record %s", name)
	}

	return nil
}

// minBatchOfLast finds the oldest of the given number of most recent batches.
// MySQL does not allow LIMIT inside an IN subquery, hence two round trips.
func (r *Repository) minBatchOfLast(ctx context.Context, steps int) (migration.Batch, bool, error) {
	q := fmt.Sprintf("SELECT DISTINCT batch FROM %s ORDER BY batch DESC LIMIT %d", r.dialect.Table(), steps)
	r.lg.SQL(q)

	rows, err := r.ex.QueryxContext(ctx, q)
	if err != nil {
		return 0, false, errors.Wrap(err, "could not read recent batches")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.lg.Error(closeErr)
		}
	}()

	var oldest int64
	found := false
	for rows.Next() {
		if err := rows.Scan(&oldest); err != nil {
			return 0, false, errors.Wrap(err, "could not scan batch")
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return 0, false, errors.Wrap(err, "recent batches iteration failed")
	}

	return migration.Batch(oldest), found, nil
}

func (r *Repository) readNames(ctx context.Context, q string, args ...interface{}) ([]string, error) {
	q = r.ex.Rebind(q)
	args = normalizeArgs(args)
	r.lg.SQL(q, args...)

	rows, err := r.ex.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "could not read ran migrations")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.lg.Error(closeErr)
		}
	}()

	var result []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return result, errors.Wrap(err, "could not scan migration name")
		}

		result = append(result, name)
	}

	if err := rows.Err(); err != nil {
		if err != sql.ErrNoRows {
			return nil, errors.Wrap(err, "ran migrations iteration failed")
		}
	}

	return result, nil
}

func (r *Repository) exec(ctx context.Context, q, msg string) error {
	if r.ex == nil {
		return database.ErrConnectionNotSet
	}

	r.lg.SQL(q)

	if _, err := r.ex.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "%s [%s]", msg, r.dialect.Table())
	}

	return nil
}

// ShowTables lists the tables of the connected database, mostly for tooling and tests
func (r *Repository) ShowTables(ctx context.Context) ([]string, error) {
	if r.ex == nil {
		return nil, database.ErrConnectionNotSet
	}

	var result []string
	rows, err := r.ex.QueryxContext(ctx, r.dialect.ShowTablesQuery())
	if err != nil {
		return nil, errors.Wrap(err, "could not list all tables")
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.lg.Error(closeErr)
		}
	}()

	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return result, err
		}

		result = append(result, table)
	}

	return result, rows.Err()
}

// driver values must not be custom integer types for every driver
func normalizeArgs(args []interface{}) []interface{} {
	for i := range args {
		if b, ok := args[i].(migration.Batch); ok {
			args[i] = uint64(b)
		}
	}

	return args
}

var _ migration.Executor = (*sqlx.Conn)(nil)
var _ migration.Executor = (*sqlx.Tx)(nil)
