package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
)

var mysqlDialect = &dialect{
	name:       "mysql",
	driverName: "mysql",
	forUpdate:  " FOR UPDATE",

	insertCart: `
		INSERT IGNORE INTO carts (id, user_id, currency, total_price_cents, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`,
	upsertItem: `
		INSERT INTO cart_items (id, cart_id, product_id, sku, name, unit_price_cents, quantity, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			sku = VALUES(sku), name = VALUES(name),
			unit_price_cents = VALUES(unit_price_cents), quantity = VALUES(quantity)`,
	insertMirror: `
		INSERT IGNORE INTO catalog_mirror (external_id, name, price_cents, stock, description, image, sku, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,

	prepareDSN: prepareMySQLDSN,
	configure: func(db *sql.DB, maxOpenConns int) {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	},
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratemysql.WithInstance(db, &migratemysql.Config{})
	},
}

// prepareMySQLDSN forces the options the store depends on: time.Time scanning
// in UTC and multi statement migrations.
func prepareMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
