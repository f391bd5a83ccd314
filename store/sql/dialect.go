package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	authmigrations "github.com/goliatone/go-authsessions/migrations"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Dialect pairs a migration dialect name with its sql driver and bun schema
// dialect. The names follow the migration registry so one configuration knob
// selects the driver, the dialect and the migration tree.
type Dialect struct {
	Name       string
	DriverName string
	dialect    func() schema.Dialect
}

var dialects = map[string]Dialect{
	authmigrations.DialectSQLite: {
		Name:       authmigrations.DialectSQLite,
		DriverName: "sqlite3",
		dialect:    func() schema.Dialect { return sqlitedialect.New() },
	},
	authmigrations.DialectPostgres: {
		Name:       authmigrations.DialectPostgres,
		DriverName: "postgres",
		dialect:    func() schema.Dialect { return pgdialect.New() },
	},
}

// ResolveDialect maps a dialect name to its driver pairing. Driver names are
// accepted as aliases so config can carry either.
func ResolveDialect(name string) (Dialect, error) {
	key := strings.TrimSpace(strings.ToLower(name))
	if d, ok := dialects[key]; ok {
		return d, nil
	}
	for _, d := range dialects {
		if d.DriverName == key {
			return d, nil
		}
	}
	return Dialect{}, fmt.Errorf("sqlstore: unsupported dialect %q", name)
}

// Schema returns a fresh bun schema dialect for the pairing.
func (d Dialect) Schema() schema.Dialect {
	if d.dialect == nil {
		return sqlitedialect.New()
	}
	return d.dialect()
}

// OpenDatabase opens a database handle for the named dialect and wraps it in
// a bun DB with the matching schema dialect.
func OpenDatabase(dialectName, dsn string) (*bun.DB, error) {
	d, err := ResolveDialect(dialectName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	sqlDB, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", d.Name, err)
	}
	return bun.NewDB(sqlDB, d.Schema()), nil
}
