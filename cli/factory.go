package cli

import (
	"github.com/denismitr/batchmig"
	"github.com/denismitr/batchmig/internal/config"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
	"strings"
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "pgx"
	driverSqlite   = "sqlite3"
)

type (
	databaseOptionFactory    func(db *sqlx.DB, d config.Database) batchmig.OptionFunc
	databaseOptionFactoryMap map[string]databaseOptionFactory
)

var factoryMap = databaseOptionFactoryMap{
	driverMySQL:    createMySQLOption,
	driverPostgres: createPostgresOption,
	driverSqlite:   createSqliteOption,
}

func createMySQLOption(db *sqlx.DB, d config.Database) batchmig.OptionFunc {
	var opts []batchmig.MySQLOptionFunc
	if d.Table != "" {
		opts = append(opts, batchmig.WithMySQLMigrationTable(d.Table))
	}

	if d.NoLock {
		opts = append(opts, batchmig.WithMySQLNoLock())
	}

	return batchmig.UseMySQL(db, opts...)
}

func createPostgresOption(db *sqlx.DB, d config.Database) batchmig.OptionFunc {
	var opts []batchmig.PostgresOptionFunc
	if d.Table != "" {
		opts = append(opts, batchmig.WithPostgresMigrationTable(d.Table))
	}

	if d.NoLock {
		opts = append(opts, batchmig.WithPostgresNoLock())
	}

	return batchmig.UsePostgres(db, opts...)
}

func createSqliteOption(db *sqlx.DB, d config.Database) batchmig.OptionFunc {
	var opts []batchmig.SqliteOptionFunc
	if d.Table != "" {
		opts = append(opts, batchmig.WithSqliteMigrationTable(d.Table))
	}

	return batchmig.UseSqlite(db, opts...)
}

// parseDatabaseURL turns a database url into the registered sql driver name
// and the DSN that driver understands. An explicit driver in the config wins.
func parseDatabaseURL(d config.Database) (string, string, error) {
	u, err := dburl.Parse(d.URL)
	if err != nil {
		return "", "", errors.Wrapf(err, "could not parse database url [%s]", d.URL)
	}

	driver := normalizeDriver(u.Driver)
	if d.Driver != "" {
		driver = normalizeDriver(d.Driver)
	}

	if _, ok := factoryMap[driver]; !ok {
		return "", "", errors.Errorf("unknown database driver [%s]", driver)
	}

	if driver == driverMySQL {
		if _, err := mysql.ParseDSN(u.DSN); err != nil {
			return "", "", errors.Wrapf(err, "invalid mysql database url [%s]", d.URL)
		}
	}

	return driver, u.DSN, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg", driverPostgres:
		return driverPostgres
	case "sqlite", driverSqlite:
		return driverSqlite
	default:
		return strings.ToLower(driver)
	}
}

func openDatabase(d config.Database) (*sqlx.DB, batchmig.OptionFunc, error) {
	driver, dsn, err := parseDatabaseURL(d)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open %s database", driver)
	}

	return db, factoryMap[driver](db, d), nil
}
