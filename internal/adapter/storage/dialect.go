package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
)

// dialect holds the SQL that differs between the supported databases.
// Queries are written with ? placeholders and rebound when needed.
type dialect struct {
	name       string
	driverName string
	numbered   bool // $1, $2 placeholders
	forUpdate  string

	insertCart   string
	upsertItem   string
	insertMirror string

	prepareDSN      func(dsn string) (string, error)
	configure       func(db *sql.DB, maxOpenConns int)
	migrationDriver func(db *sql.DB) (database.Driver, error)
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case "mysql":
		return mysqlDialect, nil
	case "postgres":
		return postgresDialect, nil
	case "sqlite":
		return sqliteDialect, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", driver)
}

func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *dialect) lockCartQuery() string {
	return d.rebind(`SELECT id, user_id, currency, total_price_cents, updated_at FROM carts WHERE user_id = ?` + d.forUpdate)
}
