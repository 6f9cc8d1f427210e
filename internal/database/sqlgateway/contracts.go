package sqlgateway

import (
	"github.com/pkg/errors"
)

var ErrInvalidTableName = errors.New("invalid migrations table name")
var ErrLockNotAcquired = errors.New("could not acquire migrations lock")

// Dialect renders the statements that differ between database engines.
// Everything else is written with ? placeholders and rebound per connection.
type Dialect interface {
	Name() string
	Table() string
	CreateQuery() string
	DropQuery() string
	ExistsQuery() (string, []interface{})
	ShowTablesQuery() string
	// UnitSavepoints is true for engines where a failed statement poisons
	// the rest of the transaction, so every unit needs its own savepoint
	UnitSavepoints() bool
}
