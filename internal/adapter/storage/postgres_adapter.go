package storage

import (
	"database/sql"
	"time"

	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

var postgresDialect = &dialect{
	name:       "postgres",
	driverName: "postgres",
	numbered:   true,
	forUpdate:  " FOR UPDATE",

	insertCart: `
		INSERT INTO carts (id, user_id, currency, total_price_cents, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
	upsertItem: `
		INSERT INTO cart_items (id, cart_id, product_id, sku, name, unit_price_cents, quantity, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name,
			unit_price_cents = EXCLUDED.unit_price_cents, quantity = EXCLUDED.quantity`,
	insertMirror: `
		INSERT INTO catalog_mirror (external_id, name, price_cents, stock, description, image, sku, category, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO NOTHING`,

	prepareDSN: func(dsn string) (string, error) { return dsn, nil },
	configure: func(db *sql.DB, maxOpenConns int) {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	},
	migrationDriver: func(db *sql.DB) (database.Driver, error) {
		return migratepostgres.WithInstance(db, &migratepostgres.Config{})
	},
}
