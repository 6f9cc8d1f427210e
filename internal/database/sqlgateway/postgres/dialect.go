package postgres

import (
	"fmt"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/database/sqlgateway"
	"strings"
)

type Dialect struct {
	migrationsTable string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable string) *Dialect {
	if migrationsTable == "" {
		migrationsTable = database.DefaultMigrationsTable
	}

	return &Dialect{migrationsTable: migrationsTable}
}

func (d Dialect) Name() string {
	return "pgx"
}

func (d Dialect) Table() string {
	return d.migrationsTable
}

func (d Dialect) CreateQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			migration VARCHAR(255) NOT NULL UNIQUE,
			batch INTEGER NOT NULL
		);
	`

	return fmt.Sprintf(createSQL, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.migrationsTable)
}

// ExistsQuery honours a schema qualified table name, falling back to the current schema
func (d Dialect) ExistsQuery() (string, []interface{}) {
	if i := strings.Index(d.migrationsTable, "."); i > 0 {
		return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
			[]interface{}{d.migrationsTable[:i], d.migrationsTable[i+1:]}
	}

	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
		[]interface{}{d.migrationsTable}
}

func (d Dialect) ShowTablesQuery() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name;"
}

func (d Dialect) UnitSavepoints() bool {
	return true
}
