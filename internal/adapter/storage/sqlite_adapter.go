package storage

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"
)

// sqliteDialect serializes every statement through a single connection, which
// gives cart transactions the same exclusion FOR UPDATE gives elsewhere.
var sqliteDialect = &dialect{
	name:       "sqlite",
	driverName: "sqlite",

	insertCart: `
		INSERT INTO carts (id, user_id, currency, total_price_cents, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
	upsertItem: `
		INSERT INTO cart_items (id, cart_id, product_id, sku, name, unit_price_cents, quantity, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET
			sku = excluded.sku, name = excluded.name,
			unit_price_cents = excluded.unit_price_cents, quantity = excluded.quantity`,
	insertMirror: `
		INSERT INTO catalog_mirror (external_id, name, price_cents, stock, description, image, sku, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING`,

	prepareDSN: func(dsn string) (string, error) { return dsn, nil },
	configure: func(db *sql.DB, _ int) {
		db.SetMaxOpenConns(1)
	},
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	},
}
