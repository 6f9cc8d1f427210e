package mysql

import (
	"fmt"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
)

const DefaultCharset = "utf8mb4"

type Dialect struct {
	migrationsTable, charset string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable, charset string) *Dialect {
	if migrationsTable == "" {
		migrationsTable = database.DefaultMigrationsTable
	}

	if charset == "" {
		charset = DefaultCharset
	}

	return &Dialect{migrationsTable: migrationsTable, charset: charset}
}

func (d Dialect) Name() string {
	return "mysql"
}

func (d Dialect) Table() string {
	return d.migrationsTable
}

func (d Dialect) CreateQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			migration VARCHAR(255) NOT NULL,
			batch INT NOT NULL,
			UNIQUE KEY %s_migration_unique (migration)
		) ENGINE=InnoDB CHARACTER SET=%s
	`

	return fmt.Sprintf(createSQL, d.migrationsTable, d.migrationsTable, d.charset)
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.migrationsTable)
}

func (d Dialect) ExistsQuery() (string, []interface{}) {
	const existsSQL = `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`

	return existsSQL, []interface{}{d.migrationsTable}
}

func (d Dialect) ShowTablesQuery() string {
	return "SHOW TABLES;"
}

func (d Dialect) UnitSavepoints() bool {
	return false
}
