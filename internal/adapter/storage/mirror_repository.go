package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const mirrorColumns = `id, external_id, name, price_cents, stock, description, image, sku, category, updated_at`

// UpsertProduct writes a webhook product into catalog_mirror. The row is
// matched by external id first, then by name among rows that have no external
// id yet, and inserted otherwise. Replaying the same product converges on the
// same row.
func (s *SQLStore) UpsertProduct(ctx context.Context, p domain.Product) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	rowID, found, err := s.findMirrorRow(ctx, tx, `SELECT id FROM catalog_mirror WHERE external_id = ?`+s.dialect.forUpdate, p.ID)
	if err != nil {
		return false, err
	}
	if !found {
		rowID, found, err = s.findMirrorRow(ctx, tx, `
			SELECT id FROM catalog_mirror WHERE external_id IS NULL AND name = ?
			ORDER BY id LIMIT 1`+s.dialect.forUpdate, p.Name)
		if err != nil {
			return false, err
		}
	}

	inserted := false
	if found {
		if err := s.updateMirrorRow(ctx, tx, `id = ?`, rowID, p, now); err != nil {
			return false, err
		}
	} else {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(s.dialect.insertMirror),
			p.ID, p.Name, p.Price, p.Stock, p.Description, p.Image, p.SKU, p.Category, now)
		if err != nil {
			return false, fmt.Errorf("insert mirror product: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("insert mirror product: %w", err)
		}
		inserted = n > 0
		// lost a race with a concurrent delivery of the same product
		if !inserted {
			if err := s.updateMirrorRow(ctx, tx, `external_id = ?`, p.ID, p, now); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit mirror product: %w", err)
	}
	return inserted, nil
}

func (s *SQLStore) findMirrorRow(ctx context.Context, tx *sql.Tx, query string, arg string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, s.dialect.rebind(query), arg).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find mirror product: %w", err)
	}
	return id, true, nil
}

func (s *SQLStore) updateMirrorRow(ctx context.Context, tx *sql.Tx, where string, key any, p domain.Product, now time.Time) error {
	_, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE catalog_mirror SET
			external_id = ?, name = ?, price_cents = ?, stock = ?,
			description = ?, image = ?, sku = ?, category = ?, updated_at = ?
		WHERE `+where),
		p.ID, p.Name, p.Price, p.Stock, p.Description, p.Image, p.SKU, p.Category, now, key)
	if err != nil {
		return fmt.Errorf("update mirror product: %w", err)
	}
	return nil
}

func (s *SQLStore) GetByExternalID(ctx context.Context, externalID string) (*domain.MirrorProduct, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+mirrorColumns+` FROM catalog_mirror WHERE external_id = ?`), externalID)
	mp, err := scanMirror(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mirror product %s: %w", externalID, port.ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query mirror product: %w", err)
	}
	return mp, nil
}

// ListProducts returns every mirrored product that carries an external id.
func (s *SQLStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+mirrorColumns+` FROM catalog_mirror WHERE external_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query mirror products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		mp, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror product: %w", err)
		}
		products = append(products, mp.Product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mirror products: %w", err)
	}
	return products, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMirror(row scanner) (*domain.MirrorProduct, error) {
	var mp domain.MirrorProduct
	var externalID sql.NullString
	err := row.Scan(&mp.RowID, &externalID, &mp.Name, &mp.Price, &mp.Stock,
		&mp.Description, &mp.Image, &mp.SKU, &mp.Category, &mp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	mp.ID = externalID.String
	return &mp, nil
}
