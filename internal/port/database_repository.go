package port

import (
	"context"
	"errors"

	"github.com/rl1809/storefront/internal/core/domain"
)

var ErrCartNotFound = errors.New("cart not found")

type CartRepository interface {
	// GetCart loads the user's cart with its items, ErrCartNotFound when absent
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)

	// GetCartByID loads a cart by its own identity
	GetCartByID(ctx context.Context, cartID string) (*domain.Cart, error)

	// WithCart runs fn in one transaction holding the lock on the user's cart row.
	// The cart is created first when create is true, otherwise a missing cart
	// yields ErrCartNotFound. Returning an error from fn rolls everything back.
	WithCart(ctx context.Context, userID string, create bool, fn func(tx CartTx) error) error

	Ping(ctx context.Context) error
}

// CartTx is the view of a locked cart inside WithCart.
type CartTx interface {
	Cart() domain.Cart
	Items(ctx context.Context) ([]domain.CartItem, error)
	// Item returns nil when the product is not in the cart
	Item(ctx context.Context, productID string) (*domain.CartItem, error)
	// PutItem inserts or updates the line keyed by (cart, product)
	PutItem(ctx context.Context, item domain.CartItem) error
	DeleteItem(ctx context.Context, productID string) error
	ClearItems(ctx context.Context) error
	DeleteCart(ctx context.Context) error
}

type MirrorRepository interface {
	// UpsertProduct matches by external id, then by name, else inserts
	UpsertProduct(ctx context.Context, product domain.Product) (inserted bool, err error)

	GetByExternalID(ctx context.Context, externalID string) (*domain.MirrorProduct, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
}
