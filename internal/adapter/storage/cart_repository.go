package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	return s.loadCart(ctx, `
		SELECT id, user_id, currency, total_price_cents, updated_at
		FROM carts WHERE user_id = ?`, userID)
}

func (s *SQLStore) GetCartByID(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.loadCart(ctx, `
		SELECT id, user_id, currency, total_price_cents, updated_at
		FROM carts WHERE id = ?`, cartID)
}

func (s *SQLStore) loadCart(ctx context.Context, query, arg string) (*domain.Cart, error) {
	var cart domain.Cart
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), arg).
		Scan(&cart.ID, &cart.UserID, &cart.Currency, &cart.TotalPrice, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}

	items, err := s.listItems(ctx, s.db, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return &cart, nil
}

// WithCart runs fn under the cart row lock. A missing cart is created first in
// its own statement, so no transaction holds a gap lock while it inserts.
func (s *SQLStore) WithCart(ctx context.Context, userID string, create bool, fn func(tx port.CartTx) error) error {
	tx, cart, err := s.beginLocked(ctx, userID)
	if errors.Is(err, port.ErrCartNotFound) && create {
		now := time.Now().UTC()
		_, err = s.db.ExecContext(ctx, s.dialect.rebind(s.dialect.insertCart),
			uuid.NewString(), userID, s.currency, now, now)
		if err != nil {
			return fmt.Errorf("create cart: %w", err)
		}
		tx, cart, err = s.beginLocked(ctx, userID)
	}
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked := &cartTx{store: s, tx: tx, cart: cart}
	if err := fn(locked); err != nil {
		return err
	}

	if !locked.deleted {
		_, err = tx.ExecContext(ctx, s.dialect.rebind(`
			UPDATE carts SET
				total_price_cents = (SELECT COALESCE(SUM(unit_price_cents * quantity), 0) FROM cart_items WHERE cart_id = ?),
				updated_at = ?
			WHERE id = ?`), cart.ID, time.Now().UTC(), cart.ID)
		if err != nil {
			return fmt.Errorf("update cart total: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cart: %w", err)
	}
	return nil
}

// beginLocked opens a transaction and locks the user's cart row. The
// transaction is rolled back when the row cannot be locked.
func (s *SQLStore) beginLocked(ctx context.Context, userID string) (*sql.Tx, domain.Cart, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Cart{}, fmt.Errorf("begin tx: %w", err)
	}
	cart, err := s.lockCart(ctx, tx, userID)
	if err != nil {
		tx.Rollback()
		return nil, domain.Cart{}, err
	}
	return tx, cart, nil
}

// lockCart reads the cart row, holding its lock until tx ends.
func (s *SQLStore) lockCart(ctx context.Context, tx *sql.Tx, userID string) (domain.Cart, error) {
	var cart domain.Cart
	err := tx.QueryRowContext(ctx, s.dialect.lockCartQuery(), userID).
		Scan(&cart.ID, &cart.UserID, &cart.Currency, &cart.TotalPrice, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return cart, port.ErrCartNotFound
	}
	if err != nil {
		return cart, fmt.Errorf("lock cart: %w", err)
	}
	return cart, nil
}

func (s *SQLStore) listItems(ctx context.Context, q queryer, cartID string) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, cart_id, product_id, sku, name, unit_price_cents, quantity, added_at
		FROM cart_items WHERE cart_id = ?
		ORDER BY added_at, product_id`), cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.SKU, &it.Name, &it.UnitPrice, &it.Quantity, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

// cartTx operates on a cart row locked by WithCart.
type cartTx struct {
	store   *SQLStore
	tx      *sql.Tx
	cart    domain.Cart
	deleted bool
}

func (c *cartTx) Cart() domain.Cart {
	return c.cart
}

func (c *cartTx) Items(ctx context.Context) ([]domain.CartItem, error) {
	return c.store.listItems(ctx, c.tx, c.cart.ID)
}

func (c *cartTx) Item(ctx context.Context, productID string) (*domain.CartItem, error) {
	var it domain.CartItem
	err := c.tx.QueryRowContext(ctx, c.store.dialect.rebind(`
		SELECT id, cart_id, product_id, sku, name, unit_price_cents, quantity, added_at
		FROM cart_items WHERE cart_id = ? AND product_id = ?`), c.cart.ID, productID).
		Scan(&it.ID, &it.CartID, &it.ProductID, &it.SKU, &it.Name, &it.UnitPrice, &it.Quantity, &it.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart item: %w", err)
	}
	return &it, nil
}

func (c *cartTx) PutItem(ctx context.Context, item domain.CartItem) error {
	if item.Quantity < 1 {
		return c.DeleteItem(ctx, item.ProductID)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	_, err := c.tx.ExecContext(ctx, c.store.dialect.rebind(c.store.dialect.upsertItem),
		item.ID, c.cart.ID, item.ProductID, item.SKU, item.Name, item.UnitPrice, item.Quantity, item.AddedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

func (c *cartTx) DeleteItem(ctx context.Context, productID string) error {
	_, err := c.tx.ExecContext(ctx, c.store.dialect.rebind(`
		DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`), c.cart.ID, productID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (c *cartTx) ClearItems(ctx context.Context) error {
	_, err := c.tx.ExecContext(ctx, c.store.dialect.rebind(`DELETE FROM cart_items WHERE cart_id = ?`), c.cart.ID)
	if err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

func (c *cartTx) DeleteCart(ctx context.Context) error {
	if err := c.ClearItems(ctx); err != nil {
		return err
	}
	_, err := c.tx.ExecContext(ctx, c.store.dialect.rebind(`DELETE FROM carts WHERE id = ?`), c.cart.ID)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	c.deleted = true
	return nil
}
