package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// runStoreContract exercises behaviour every dialect must share. Ids are random
// so the suite can run against a long lived database.
func runStoreContract(t *testing.T, store *SQLStore) {
	t.Run("missing cart", func(t *testing.T) { testMissingCart(t, store) })
	t.Run("put and read items", func(t *testing.T) { testPutAndRead(t, store) })
	t.Run("rollback on error", func(t *testing.T) { testRollback(t, store) })
	t.Run("concurrent increments", func(t *testing.T) { testConcurrentIncrements(t, store) })
	t.Run("concurrent first adds", func(t *testing.T) { testConcurrentFirstAdds(t, store) })
	t.Run("clear and delete", func(t *testing.T) { testClearAndDelete(t, store) })
	t.Run("mirror upsert by identity", func(t *testing.T) { testMirrorUpsert(t, store) })
	t.Run("mirror upsert adopts by name", func(t *testing.T) { testMirrorAdoptByName(t, store) })
}

func testMissingCart(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	_, err := store.GetCart(ctx, user)
	assert.ErrorIs(t, err, port.ErrCartNotFound)

	called := false
	err = store.WithCart(ctx, user, false, func(tx port.CartTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, port.ErrCartNotFound)
	assert.False(t, called)

	_, err = store.GetCartByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, port.ErrCartNotFound)
}

func testPutAndRead(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	err := store.WithCart(ctx, user, true, func(tx port.CartTx) error {
		assert.Equal(t, user, tx.Cart().UserID)
		assert.Equal(t, "EUR", tx.Cart().Currency)
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p1", Name: "Mug", SKU: "MUG", UnitPrice: 1999, Quantity: 3}); err != nil {
			return err
		}
		return tx.PutItem(ctx, domain.CartItem{ProductID: "p2", Name: "Cap", UnitPrice: 500, Quantity: 1})
	})
	require.NoError(t, err)

	err = store.WithCart(ctx, user, true, func(tx port.CartTx) error {
		item, err := tx.Item(ctx, "p1")
		if err != nil {
			return err
		}
		require.NotNil(t, item)
		item.Quantity = 7
		return tx.PutItem(ctx, *item)
	})
	require.NoError(t, err)

	cart, err := store.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	byID := map[string]domain.CartItem{}
	for _, it := range cart.Items {
		byID[it.ProductID] = it
	}
	assert.Equal(t, 7, byID["p1"].Quantity)
	assert.Equal(t, "MUG", byID["p1"].SKU)
	assert.Equal(t, int64(1999), byID["p1"].UnitPrice)
	assert.Equal(t, int64(7*1999+500), cart.TotalPrice)
	assert.WithinDuration(t, time.Now(), cart.UpdatedAt, time.Minute)

	same, err := store.GetCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, same.ID)
	assert.Len(t, same.Items, 2)

	err = store.WithCart(ctx, user, false, func(tx port.CartTx) error {
		missing, err := tx.Item(ctx, "nope")
		assert.Nil(t, missing)
		return err
	})
	require.NoError(t, err)
}

var errAbort = errors.New("abort")

func testRollback(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	require.NoError(t, store.WithCart(ctx, user, true, func(tx port.CartTx) error {
		return tx.PutItem(ctx, domain.CartItem{ProductID: "p1", Name: "Mug", UnitPrice: 100, Quantity: 2})
	}))

	err := store.WithCart(ctx, user, false, func(tx port.CartTx) error {
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p1", Name: "Mug", UnitPrice: 100, Quantity: 9}); err != nil {
			return err
		}
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p2", Name: "Cap", UnitPrice: 100, Quantity: 1}); err != nil {
			return err
		}
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	cart, err := store.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, int64(200), cart.TotalPrice)
}

func testConcurrentIncrements(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()
	require.NoError(t, store.WithCart(ctx, user, true, func(tx port.CartTx) error { return nil }))

	const workers = 20
	incrementConcurrently(t, store, user, workers)

	cart, err := store.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, workers, cart.Items[0].Quantity)
}

// testConcurrentFirstAdds races the creation of a cart that does not exist yet.
func testConcurrentFirstAdds(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	const workers = 10
	incrementConcurrently(t, store, user, workers)

	cart, err := store.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, workers, cart.Items[0].Quantity)

	var carts int
	require.NoError(t, store.db.QueryRowContext(ctx,
		store.dialect.rebind(`SELECT COUNT(*) FROM carts WHERE user_id = ?`), user).Scan(&carts))
	assert.Equal(t, 1, carts)
}

func incrementConcurrently(t *testing.T, store *SQLStore, user string, workers int) {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.WithCart(ctx, user, true, func(tx port.CartTx) error {
				item, err := tx.Item(ctx, "p1")
				if err != nil {
					return err
				}
				next := domain.CartItem{ProductID: "p1", Name: "Mug", UnitPrice: 10, Quantity: 1}
				if item != nil {
					next = *item
					next.Quantity++
				}
				return tx.PutItem(ctx, next)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func testClearAndDelete(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	require.NoError(t, store.WithCart(ctx, user, true, func(tx port.CartTx) error {
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p1", Name: "Mug", UnitPrice: 100, Quantity: 1}); err != nil {
			return err
		}
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p2", Name: "Cap", UnitPrice: 100, Quantity: 1}); err != nil {
			return err
		}
		return tx.DeleteItem(ctx, "p2")
	}))

	cart, err := store.GetCart(ctx, user)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	require.NoError(t, store.WithCart(ctx, user, false, func(tx port.CartTx) error {
		return tx.ClearItems(ctx)
	}))
	cart, err = store.GetCart(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.TotalPrice)

	require.NoError(t, store.WithCart(ctx, user, false, func(tx port.CartTx) error {
		if err := tx.PutItem(ctx, domain.CartItem{ProductID: "p1", Name: "Mug", UnitPrice: 100, Quantity: 1}); err != nil {
			return err
		}
		return tx.DeleteCart(ctx)
	}))
	_, err = store.GetCart(ctx, user)
	assert.ErrorIs(t, err, port.ErrCartNotFound)
}

func testMirrorUpsert(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	id := "ext-" + uuid.NewString()
	p := domain.Product{ID: id, Name: "Lamp " + id, Price: 2550, Stock: 3, SKU: "LMP"}

	inserted, err := store.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.False(t, inserted)

	p.Price = 2000
	p.Stock = 1
	_, err = store.UpsertProduct(ctx, p)
	require.NoError(t, err)

	row, err := store.GetByExternalID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), row.Price)
	assert.Equal(t, 1, row.Stock)
	assert.Equal(t, "LMP", row.SKU)

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		store.dialect.rebind(`SELECT COUNT(*) FROM catalog_mirror WHERE external_id = ?`), id).Scan(&count))
	assert.Equal(t, 1, count)

	_, err = store.GetByExternalID(ctx, "ext-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, port.ErrProductNotFound)
}

func testMirrorAdoptByName(t *testing.T, store *SQLStore) {
	ctx := context.Background()
	name := "Legacy " + uuid.NewString()

	_, err := store.db.ExecContext(ctx, store.dialect.rebind(`
		INSERT INTO catalog_mirror (external_id, name, price_cents, stock, updated_at)
		VALUES (NULL, ?, 100, 1, ?)`), name, time.Now().UTC())
	require.NoError(t, err)

	before, err := store.ListProducts(ctx)
	require.NoError(t, err)
	for _, p := range before {
		assert.NotEqual(t, name, p.Name)
	}

	id := "ext-" + uuid.NewString()
	inserted, err := store.UpsertProduct(ctx, domain.Product{ID: id, Name: name, Price: 900, Stock: 4})
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx,
		store.dialect.rebind(`SELECT COUNT(*) FROM catalog_mirror WHERE name = ?`), name).Scan(&count))
	assert.Equal(t, 1, count)

	after, err := store.ListProducts(ctx)
	require.NoError(t, err)
	found := false
	for _, p := range after {
		if p.ID == id {
			found = true
			assert.Equal(t, int64(900), p.Price)
		}
	}
	assert.True(t, found)
}
