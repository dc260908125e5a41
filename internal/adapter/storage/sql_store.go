package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations
var migrationsFS embed.FS

type Options struct {
	Driver       string // sqlite, mysql or postgres
	DSN          string
	MaxOpenConns int
	Currency     string // assigned to newly created carts
}

// SQLStore is the durable cart and catalog mirror store. One implementation
// serves every supported database; the driver is chosen once at startup.
type SQLStore struct {
	db       *sql.DB
	dialect  *dialect
	currency string
}

// Open connects, applies pending migrations and returns a ready store.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := d.prepareDSN(opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	d.configure(db, maxOpen)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	store := NewSQLStore(db, d, opts.Currency)
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("driver", d.name).Msg("connected to storage")
	return store, nil
}

func NewSQLStore(db *sql.DB, d *dialect, currency string) *SQLStore {
	if currency == "" {
		currency = "EUR"
	}
	return &SQLStore{db: db, dialect: d, currency: currency}
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.dialect.name)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := s.dialect.migrationDriver(s.db)
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.name, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
